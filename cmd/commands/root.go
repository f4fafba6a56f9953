package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/cli"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"

	cfg "strom_bft/config"
)

var (
	config = cfg.DefaultConfig()
	logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log_level", config.LogLevel, "log level")
}

// stromFlags 命令行上可以覆盖的 [strom] 配置项
var stromFlags = []string{
	"strom.consensus_wait_duration",
	"strom.dev_block_interval",
	"strom.block_producer",
	"strom.prometheus",
	"strom.matching_workers",
}

// ParseConfig retrieves the default environment configuration,
// sets up the root and ensures that the root exists
func ParseConfig() (*cfg.Config, error) {
	conf := cfg.DefaultConfig()
	if err := viper.Unmarshal(conf.Config); err != nil {
		return nil, err
	}
	if err := viper.UnmarshalKey("strom", conf.Strom); err != nil {
		return nil, errors.Wrap(err, "error in [strom] section")
	}
	// 命令行上的 strom.xxx 不会合并进 strom 段
	for _, key := range stromFlags {
		if !viper.IsSet(key) {
			continue
		}
		if err := overrideStromFlag(conf.Strom, key); err != nil {
			return nil, err
		}
	}

	conf.SetRoot(conf.RootDir)
	if err := cfg.EnsureRoot(conf.RootDir, conf); err != nil {
		return nil, err
	}
	if err := conf.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "error in config file")
	}
	return conf, nil
}

func overrideStromFlag(strom *cfg.StromConfig, key string) error {
	switch key {
	case "strom.consensus_wait_duration":
		strom.ConsensusWaitDuration = viper.GetDuration(key)
	case "strom.dev_block_interval":
		strom.DevBlockInterval = viper.GetDuration(key)
	case "strom.block_producer":
		strom.BlockProducer = viper.GetBool(key)
	case "strom.prometheus":
		strom.Prometheus = viper.GetBool(key)
	case "strom.matching_workers":
		strom.MatchingWorkers = viper.GetInt(key)
	default:
		return fmt.Errorf("unknown flag %s", key)
	}
	return nil
}

// RootCmd is the root command for the strom node.
var RootCmd = &cobra.Command{
	Use:   "strom",
	Short: "BFT batch auction consensus over AMM pools",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		config, err = ParseConfig()
		if err != nil {
			return err
		}

		if config.LogFormat == tmcfg.LogFormatJSON {
			logger = log.NewTMJSONLogger(log.NewSyncWriter(os.Stdout))
		}

		logger, err = tmflags.ParseLogLevel(config.LogLevel, logger, tmcfg.DefaultLogLevel)
		if err != nil {
			return err
		}

		if viper.GetBool(cli.TraceFlag) {
			logger = log.NewTracingLogger(logger)
		}

		logger = logger.With("module", "main")
		return nil
	},
}

// deprecateSnakeCase is a util function for 0.34.1. Should be removed in 0.35
func deprecateSnakeCase(cmd *cobra.Command, args []string) {
	if strings.Contains(cmd.CalledAs(), "_") {
		fmt.Println("Deprecated: snake_case commands will be replaced by hyphen-case commands in the next major release")
	}
}
