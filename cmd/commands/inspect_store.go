package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"strom_bft/store"
)

var (
	inspectFrom uint64
	inspectTo   uint64
)

func init() {
	InspectStoreCmd.Flags().Uint64Var(&inspectFrom, "from", 0, "first block to print")
	InspectStoreCmd.Flags().Uint64Var(&inspectTo, "to", 0, "last block to print (0 = latest)")
}

// InspectStoreCmd 打印 store 中保存的提案, 空块声明和选举状态
// 节点运行时数据库被锁住, 需要先停止节点
var InspectStoreCmd = &cobra.Command{
	Use:     "inspect-store",
	Aliases: []string{"inspect_store"},
	Short:   "Print finalized proposals and attestations kept by a stopped node",
	PreRun:  deprecateSnakeCase,
	RunE:    inspectStore,
}

func inspectStore(cmd *cobra.Command, args []string) error {
	kv, err := store.NewKVStore("strom", config.DBDir(), logger)
	if err != nil {
		return err
	}
	defer kv.Close()

	latest := kv.LatestHeight()
	fmt.Printf("latest height: %d (proposal %d, attestation %d)\n",
		latest, kv.LatestProposalHeight(), kv.LatestAttestationHeight())

	if vals, err := kv.LoadLeaderState(); err == nil {
		fmt.Printf("leader state: block %d, last leader %v, %d validators\n",
			vals.BlockNumber, vals.LastProposer, vals.Size())
	}

	to := inspectTo
	if to == 0 {
		to = latest
	}
	for h := inspectFrom; h <= to; h++ {
		if p, err := kv.LoadProposal(h); err == nil {
			bz, err := tmjson.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Printf("%d proposal %v %s\n", h, p.Hash(), bz)
			continue
		}
		if a, err := kv.LoadAttestation(h); err == nil {
			fmt.Printf("%d attestation %v source %v\n", h, a.Hash(), a.Source)
		}
	}
	return nil
}
