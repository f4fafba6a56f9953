package config

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	tmcfg "github.com/tendermint/tendermint/config"
	tmos "github.com/tendermint/tendermint/libs/os"
)

var stromTemplate *template.Template

func init() {
	var err error
	if stromTemplate, err = template.New("stromTemplate").Parse(stromConfigTemplate); err != nil {
		panic(err)
	}
}

// WriteConfigFile 先写 tendermint 的配置模板, 再追加 [strom] 段
func WriteConfigFile(configFilePath string, config *Config) error {
	tmcfg.WriteConfigFile(configFilePath, config.Config)

	var buffer bytes.Buffer
	if err := stromTemplate.Execute(&buffer, config.Strom); err != nil {
		return errors.Wrap(err, "render [strom] section")
	}
	f, err := os.OpenFile(configFilePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(buffer.Bytes())
	return err
}

const stromConfigTemplate = `

#######################################################
###           Strom Consensus Options               ###
#######################################################
[strom]

# How long a round collects orders before signing its pre-proposal
consensus_wait_duration = "{{ .ConsensusWaitDuration }}"

# Interval between chain height checks while waiting for inclusion
submission_poll_interval = "{{ .SubmissionPollInterval }}"

# Blocks past the target block after which a submission is treated as failed
submission_timeout_blocks = {{ .SubmissionTimeoutBlocks }}

# Number of pools solved in parallel (0 = number of CPUs)
matching_workers = {{ .MatchingWorkers }}

# AMM pool snapshots (yaml), relative to the home directory
pools_file = "{{ .PoolsFile }}"

# Dev chain block interval; only the block producer mines blocks
dev_block_interval = "{{ .DevBlockInterval }}"
block_producer = {{ .BlockProducer }}

# Upper bound of consensus messages kept for a later phase
max_buffered_messages = {{ .MaxBufferedMessages }}

prometheus = {{ .Prometheus }}
prometheus_listen_addr = "{{ .PrometheusListenAddr }}"
namespace = "{{ .Namespace }}"
`

// EnsureRoot 创建节点目录, 配置文件不存在时写入默认配置
func EnsureRoot(rootDir string, config *Config) error {
	for _, dir := range []string{rootDir, filepath.Join(rootDir, "config"), filepath.Join(rootDir, "data")} {
		if err := tmos.EnsureDir(dir, 0700); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	configFilePath := filepath.Join(rootDir, "config", "config.toml")
	if tmos.FileExists(configFilePath) {
		return nil
	}
	return WriteConfigFile(configFilePath, config)
}
