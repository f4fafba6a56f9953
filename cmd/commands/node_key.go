package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/privval"
)

// 节点有两套身份: p2p 连接用的 node key, 共识消息签名用的验证者 peer id

var GenNodeKeyCmd = &cobra.Command{
	Use:     "gen-node-key",
	Aliases: []string{"gen_node_key"},
	Short:   "Generate the p2p node key of this node and print its ID",
	PreRun:  deprecateSnakeCase,
	RunE:    genNodeKey,
}

var ShowNodeIDCmd = &cobra.Command{
	Use:     "show-node-id",
	Aliases: []string{"show_node_id"},
	Short:   "Show the p2p node ID and, if present, the validator peer ID",
	PreRun:  deprecateSnakeCase,
	RunE:    showNodeID,
}

var forceNodeKey bool

func init() {
	GenNodeKeyCmd.Flags().BoolVar(&forceNodeKey, "force", false, "overwrite an existing node key")
}

func genNodeKey(cmd *cobra.Command, args []string) error {
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		if !forceNodeKey {
			return fmt.Errorf("node key at %s already exists, use --force to replace it", nodeKeyFile)
		}
		if err := os.Remove(nodeKeyFile); err != nil {
			return err
		}
	}

	nodeKey, err := p2p.LoadOrGenNodeKey(nodeKeyFile)
	if err != nil {
		return err
	}
	fmt.Println(nodeKey.ID())
	return nil
}

func showNodeID(cmd *cobra.Command, args []string) error {
	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		return err
	}
	fmt.Printf("node:      %s\n", nodeKey.ID())

	keyFile := config.PrivValidatorKeyFile()
	if !tmos.FileExists(keyFile) {
		return nil
	}
	pv, err := privval.LoadFilePVEmptyState(keyFile, config.PrivValidatorStateFile())
	if err != nil {
		return err
	}
	fmt.Printf("validator: %s\n", pv.GetPeerID())
	return nil
}
