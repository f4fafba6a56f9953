package rpc

import (
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/consensus"
	"strom_bft/libs/metric"
	"strom_bft/mempool"
	"strom_bft/store"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

// Environment rpc 处理函数用到的节点组件, 由 node 在启动 rpc 之前设置
type Environment struct {
	Mempool   mempool.Mempool
	Consensus *consensus.ConsensusState
	Store     *store.KVStore

	MetricSet *metric.MetricSet

	Logger log.Logger
}
