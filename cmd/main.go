package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "strom_bft/cmd/commands"
	cfg "strom_bft/config"
	nm "strom_bft/node"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.GenValidatorCmd,
		cmd.GenGenesisCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowValidatorCmd,
		cmd.LeaderScheduleCmd,
		cmd.InspectStoreCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// 需要外部签名或者别的数据库时, 换掉 DefaultNewNode 即可
	nodeFunc := nm.DefaultNewNode
	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	cmd := cli.PrepareBaseCmd(rootCmd, "STROM", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultStromDir)))
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
