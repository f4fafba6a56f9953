package commands

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "strom_bft/config"
	"strom_bft/privval"
	"strom_bft/types"
)

// InitFilesCmd 初始化单节点的开发网络, 本节点同时负责出块
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a single validator strom node",
	RunE:  initFiles,
}

var initialHeight uint64

func init() {
	InitFilesCmd.Flags().Uint64Var(&initialHeight, "initial-height", 0, "dev chain block number the first round starts after")
}

func initFiles(cmd *cobra.Command, args []string) error {
	config.Strom.BlockProducer = true
	if err := cfg.WriteConfigFile(filepath.Join(config.RootDir, "config", "config.toml"), config); err != nil {
		return err
	}
	pv, err := initFilesWithConfig(config)
	if err != nil {
		return err
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	pubKey, err := pv.GetPubKey()
	if err != nil {
		return errors.Wrap(err, "can't get pubkey")
	}
	genDoc := types.GenesisDoc{
		ChainID:       fmt.Sprintf("strom-chain-%v", tmrand.Str(6)),
		GenesisTime:   tmtime.Now(),
		InitialHeight: initialHeight,
		Validators: []types.GenesisValidator{{
			PeerID: pv.GetPeerID(),
			PubKey: pubKey,
			Power:  1,
			Name:   config.Moniker,
		}},
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)
	return nil
}

// initFilesWithConfig 生成验证者密钥和节点密钥, 已存在时直接加载
func initFilesWithConfig(config *cfg.Config) (*privval.FilePV, error) {
	// private validator
	privValKeyFile := config.PrivValidatorKeyFile()
	privValStateFile := config.PrivValidatorStateFile()

	var (
		pv  *privval.FilePV
		err error
	)
	if tmos.FileExists(privValKeyFile) {
		pv, err = privval.LoadFilePV(privValKeyFile, privValStateFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Found private validator", "keyFile", privValKeyFile,
			"stateFile", privValStateFile)
	} else {
		pv = privval.GenFilePV(privValKeyFile, privValStateFile)
		if err := pv.Save(); err != nil {
			return nil, err
		}
		logger.Info("Generated private validator", "keyFile", privValKeyFile,
			"stateFile", privValStateFile)
	}

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return nil, err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}
	return pv, nil
}
