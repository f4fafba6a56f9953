package commands

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "strom_bft/config"
	"strom_bft/types"
)

var (
	nValidators       int
	outputDir         string
	nodeDirPrefix     string
	chainID           string
	hostnamePrefix    string
	startingIPAddress string
	p2pPort           int
	genesisHeight     uint64
	validatorPower    int64
)

const (
	nodeDirPerm = 0755
)

func init() {
	GenGenesisCmd.Flags().IntVar(&nValidators, "v", 4,
		"Number of validators to initialize the testnet with")
	GenGenesisCmd.Flags().StringVar(&outputDir, "o", "./mytestnet",
		"Directory to store initialization data for the testnet")
	GenGenesisCmd.Flags().StringVar(&nodeDirPrefix, "node-dir-prefix", "node",
		"Prefix the directory name for each node with (node results in node0, node1, ...)")
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "", "链名，不指定则随机生成")
	GenGenesisCmd.Flags().StringVar(&hostnamePrefix, "hostname-prefix", "node",
		"Hostname prefix (\"node\" results in persistent peers list ID0@node0:26656, ID1@node1:26656, ...)")
	GenGenesisCmd.Flags().StringVar(&startingIPAddress, "starting-ip-address", "",
		"Starting IP address (\"192.168.0.1\" results in persistent peers list ID0@192.168.0.1:26656, ID1@192.168.0.2:26656, ...)")
	GenGenesisCmd.Flags().IntVar(&p2pPort, "p2p-port", 26656, "P2P Port")
	GenGenesisCmd.Flags().Uint64Var(&genesisHeight, "initial-height", 0, "dev chain block number the first round starts after")
	GenGenesisCmd.Flags().Int64Var(&validatorPower, "power", 1, "voting power of every validator")
}

// GenGenesisCmd 为多节点开发网络生成各节点的目录, 所有节点共享同一个创世文件
// 第一个节点负责开发链出块
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis", "testnet"},
	Short:   "Initialize files for a strom testnet",
	Long: `gen-genesis will create "v" number of directories and populate each with
necessary files (private validator, node key, genesis, config, etc.).

Example:

	strom gen-genesis --v 4 --o ./output --starting-ip-address 192.168.10.2
	`,
	PreRun: deprecateSnakeCase,
	RunE:   genGenesisFiles,
}

func genGenesisFiles(cmd *cobra.Command, args []string) error {
	if nValidators <= 0 {
		return errors.New("testnet needs at least one validator")
	}
	conf := cfg.DefaultConfig()

	genVals := make([]types.GenesisValidator, nValidators)
	for i := 0; i < nValidators; i++ {
		nodeDirName := fmt.Sprintf("%s%d", nodeDirPrefix, i)
		nodeDir := filepath.Join(outputDir, nodeDirName)
		conf.SetRoot(nodeDir)

		for _, dir := range []string{"config", "data"} {
			if err := os.MkdirAll(filepath.Join(nodeDir, dir), nodeDirPerm); err != nil {
				_ = os.RemoveAll(outputDir)
				return err
			}
		}

		pv, err := initFilesWithConfig(conf)
		if err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		pubKey, err := pv.GetPubKey()
		if err != nil {
			return errors.Wrap(err, "can't get pubkey")
		}
		genVals[i] = types.GenesisValidator{
			PeerID: pv.GetPeerID(),
			PubKey: pubKey,
			Power:  validatorPower,
			Name:   nodeDirName,
		}
	}

	if chainID == "" {
		chainID = "strom-chain-" + tmrand.Str(6)
	}
	genDoc := &types.GenesisDoc{
		ChainID:       chainID,
		GenesisTime:   tmtime.Now(),
		InitialHeight: genesisHeight,
		Validators:    genVals,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		_ = os.RemoveAll(outputDir)
		return err
	}

	// Write genesis file.
	for i := 0; i < nValidators; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("%s%d", nodeDirPrefix, i))
		conf.SetRoot(nodeDir)
		if err := genDoc.SaveAs(conf.GenesisFile()); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
	}

	persistentPeers, err := persistentPeersString(conf)
	if err != nil {
		_ = os.RemoveAll(outputDir)
		return err
	}

	// Overwrite default config.
	for i := 0; i < nValidators; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("%s%d", nodeDirPrefix, i))
		conf.SetRoot(nodeDir)
		conf.P2P.AddrBookStrict = false
		conf.P2P.AllowDuplicateIP = true
		conf.P2P.PersistentPeers = persistentPeers
		conf.Moniker = fmt.Sprintf("%s%d", hostnamePrefix, i)
		conf.Strom.BlockProducer = i == 0

		if err := cfg.WriteConfigFile(filepath.Join(nodeDir, "config", "config.toml"), conf); err != nil {
			return err
		}
	}

	fmt.Printf("Successfully initialized %v node directories\n", nValidators)
	return nil
}

func hostnameOrIP(i int) (string, error) {
	if startingIPAddress == "" {
		return fmt.Sprintf("%s%d", hostnamePrefix, i), nil
	}
	ip := net.ParseIP(startingIPAddress).To4()
	if ip == nil {
		return "", fmt.Errorf("%v: non ipv4 address", startingIPAddress)
	}
	for j := 0; j < i; j++ {
		ip[3]++
	}
	return ip.String(), nil
}

func persistentPeersString(conf *cfg.Config) (string, error) {
	persistentPeers := make([]string, nValidators)
	for i := 0; i < nValidators; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("%s%d", nodeDirPrefix, i))
		conf.SetRoot(nodeDir)
		nodeKey, err := p2p.LoadNodeKey(conf.NodeKeyFile())
		if err != nil {
			return "", err
		}
		host, err := hostnameOrIP(i)
		if err != nil {
			return "", err
		}
		persistentPeers[i] = p2p.IDAddressString(nodeKey.ID(), fmt.Sprintf("%s:%d", host, p2pPort))
	}
	return strings.Join(persistentPeers, ","), nil
}
