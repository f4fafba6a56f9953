package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

var (
	scheduleFrom  uint64
	scheduleCount int
)

func init() {
	LeaderScheduleCmd.Flags().Uint64Var(&scheduleFrom, "from", 0, "first block (0 = the block after the genesis initial height)")
	LeaderScheduleCmd.Flags().IntVar(&scheduleCount, "count", 10, "number of blocks to print")
}

// LeaderScheduleCmd 按创世文件推演之后若干块的 leader
// 所有节点从同一个创世状态出发, 得到的结果必须相同
var LeaderScheduleCmd = &cobra.Command{
	Use:     "leader-schedule",
	Aliases: []string{"leader_schedule"},
	Short:   "Print the round leaders derived from the genesis validator set",
	PreRun:  deprecateSnakeCase,
	RunE:    leaderSchedule,
}

func leaderSchedule(cmd *cobra.Command, args []string) error {
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return err
	}
	vals := genDoc.ValidatorSet()

	from := scheduleFrom
	if from <= genDoc.InitialHeight {
		from = genDoc.InitialHeight + 1
	}
	names := make(map[p2p.ID]string, len(genDoc.Validators))
	for _, v := range genDoc.Validators {
		names[v.PeerID] = v.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tLEADER\tNAME")
	for i := 0; i < scheduleCount; i++ {
		height := from + uint64(i)
		leader := vals.ChooseProposer(height)
		fmt.Fprintf(w, "%d\t%s\t%s\n", height, leader, names[leader])
	}
	return w.Flush()
}
