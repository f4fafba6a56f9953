package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "strom_bft/config"
	"strom_bft/privval"
	"strom_bft/types"
)

func TestGenGenesisFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "strom_testnet")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	outputDir = filepath.Join(dir, "net")
	nValidators = 3
	chainID = "strom-test"
	genesisHeight = 7
	require.NoError(t, genGenesisFiles(GenGenesisCmd, nil))

	var genDocs []*types.GenesisDoc
	for i := 0; i < nValidators; i++ {
		conf := cfg.DefaultConfig()
		conf.SetRoot(filepath.Join(outputDir, "node"+string(rune('0'+i))))

		genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
		require.NoError(t, err)
		genDocs = append(genDocs, genDoc)

		pv, err := privval.LoadFilePV(conf.PrivValidatorKeyFile(), conf.PrivValidatorStateFile())
		require.NoError(t, err)
		assert.Equal(t, pv.GetPeerID(), genDoc.Validators[i].PeerID)

		v := viper.New()
		v.SetConfigFile(filepath.Join(conf.RootDir, "config", "config.toml"))
		require.NoError(t, v.ReadInConfig())
		strom := cfg.DefaultStromConfig()
		require.NoError(t, v.UnmarshalKey("strom", strom))
		assert.Equal(t, i == 0, strom.BlockProducer, "node%d", i)
		assert.Equal(t, nValidators, len(strings.Split(v.GetString("p2p.persistent_peers"), ",")))
	}

	assert.Equal(t, "strom-test", genDocs[0].ChainID)
	assert.Equal(t, uint64(7), genDocs[0].InitialHeight)
	assert.Len(t, genDocs[0].Validators, 3)
	for _, g := range genDocs[1:] {
		assert.Equal(t, genDocs[0].Validators, g.Validators)
	}
}
