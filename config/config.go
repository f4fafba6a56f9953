package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	tmcfg "github.com/tendermint/tendermint/config"
)

const (
	// DefaultStromDir 默认的节点根目录
	DefaultStromDir = ".strom"

	defaultPoolsFile = "config/pools.yaml"
)

// Config tendermint 的基础配置(p2p, rpc, mempool) 加上 [strom] 段
// 两部分分别由 viper.Unmarshal 和 viper.UnmarshalKey("strom") 读取
type Config struct {
	*tmcfg.Config

	Strom *StromConfig
}

func DefaultConfig() *Config {
	return &Config{
		Config: tmcfg.DefaultConfig(),
		Strom:  DefaultStromConfig(),
	}
}

// TestConfig 用于测试, 时间参数都很短
func TestConfig() *Config {
	return &Config{
		Config: tmcfg.TestConfig(),
		Strom:  TestStromConfig(),
	}
}

func (cfg *Config) SetRoot(root string) *Config {
	cfg.Config.SetRoot(root)
	cfg.Strom.SetRoot(root)
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.Config.ValidateBasic(); err != nil {
		return err
	}
	return errors.Wrap(cfg.Strom.ValidateBasic(), "error in [strom] section")
}

//-----------------------------------------------------------------------------

// StromConfig 共识轮次, 链上提交与撮合相关的参数
type StromConfig struct {
	RootDir string `mapstructure:"home"`

	// BidAggregation 阶段等待的时间
	ConsensusWaitDuration time.Duration `mapstructure:"consensus_wait_duration"`

	// 等待打包时检查链高度的间隔, 新块本身由订阅推送
	SubmissionPollInterval time.Duration `mapstructure:"submission_poll_interval"`
	// 超过目标块多少块仍未打包视为失败
	SubmissionTimeoutBlocks uint64 `mapstructure:"submission_timeout_blocks"`

	// 撮合时并行求解的池子数, 0 表示 CPU 个数
	MatchingWorkers int `mapstructure:"matching_workers"`

	PoolsFile string `mapstructure:"pools_file"`

	// 开发网络的出块间隔, 只有 BlockProducer 节点出块
	DevBlockInterval time.Duration `mapstructure:"dev_block_interval"`
	BlockProducer    bool          `mapstructure:"block_producer"`

	// 缓存等待处理的消息个数上限
	MaxBufferedMessages int `mapstructure:"max_buffered_messages"`

	Prometheus           bool   `mapstructure:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`
	Namespace            string `mapstructure:"namespace"`
}

func DefaultStromConfig() *StromConfig {
	return &StromConfig{
		ConsensusWaitDuration:   2 * time.Second,
		SubmissionPollInterval:  200 * time.Millisecond,
		SubmissionTimeoutBlocks: 2,
		MatchingWorkers:         0,
		PoolsFile:               defaultPoolsFile,
		DevBlockInterval:        12 * time.Second,
		BlockProducer:           false,
		MaxBufferedMessages:     1000,
		Prometheus:              false,
		PrometheusListenAddr:    ":26660",
		Namespace:               "strom",
	}
}

func TestStromConfig() *StromConfig {
	cfg := DefaultStromConfig()
	cfg.ConsensusWaitDuration = 50 * time.Millisecond
	cfg.SubmissionPollInterval = 10 * time.Millisecond
	cfg.DevBlockInterval = 200 * time.Millisecond
	cfg.MatchingWorkers = 2
	return cfg
}

func (cfg *StromConfig) SetRoot(root string) {
	cfg.RootDir = root
}

// PoolsPath 相对路径以节点根目录为基准
func (cfg *StromConfig) PoolsPath() string {
	if filepath.IsAbs(cfg.PoolsFile) {
		return cfg.PoolsFile
	}
	return filepath.Join(cfg.RootDir, cfg.PoolsFile)
}

// Workers 实际使用的并行度
func (cfg *StromConfig) Workers() int {
	if cfg.MatchingWorkers <= 0 {
		return runtime.NumCPU()
	}
	return cfg.MatchingWorkers
}

func (cfg *StromConfig) ValidateBasic() error {
	if cfg.ConsensusWaitDuration < 0 {
		return errors.New("consensus_wait_duration can't be negative")
	}
	if cfg.SubmissionPollInterval <= 0 {
		return errors.New("submission_poll_interval must be positive")
	}
	if cfg.MatchingWorkers < 0 {
		return errors.New("matching_workers can't be negative")
	}
	if cfg.DevBlockInterval <= 0 {
		return errors.New("dev_block_interval must be positive")
	}
	if cfg.MaxBufferedMessages < 0 {
		return errors.New("max_buffered_messages can't be negative")
	}
	return nil
}
