package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	cfg.SetRoot("/foo")
	assert.Equal(t, "/foo/config/pools.yaml", cfg.Strom.PoolsPath())
	cfg.Strom.PoolsFile = "/abs/pools.yaml"
	assert.Equal(t, "/abs/pools.yaml", cfg.Strom.PoolsPath())

	assert.True(t, cfg.Strom.Workers() > 0)
	cfg.Strom.MatchingWorkers = 3
	assert.Equal(t, 3, cfg.Strom.Workers())
}

func TestStromConfigValidateBasic(t *testing.T) {
	cfg := DefaultStromConfig()
	cfg.SubmissionPollInterval = 0
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultStromConfig()
	cfg.MatchingWorkers = -1
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultStromConfig()
	cfg.DevBlockInterval = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestWriteConfigFileRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "strom_config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := DefaultConfig()
	cfg.Strom.ConsensusWaitDuration = 750 * time.Millisecond
	cfg.Strom.BlockProducer = true
	cfg.Strom.MatchingWorkers = 5

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, WriteConfigFile(path, cfg))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	got := DefaultStromConfig()
	require.NoError(t, v.UnmarshalKey("strom", got))
	assert.Equal(t, 750*time.Millisecond, got.ConsensusWaitDuration)
	assert.True(t, got.BlockProducer)
	assert.Equal(t, 5, got.MatchingWorkers)
	assert.Equal(t, cfg.Strom.SubmissionTimeoutBlocks, got.SubmissionTimeoutBlocks)

	// tendermint 部分仍然可读
	assert.Equal(t, cfg.P2P.ListenAddress, v.GetString("p2p.laddr"))
}
