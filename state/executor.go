package state

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/libs/signoff"
	"strom_bft/mempool"
)

// ParticipantMempool 订单池处理完一个块后在 barrier 上签到的名字
const ParticipantMempool = "mempool"

// BlockExecutor 把链上的新块应用到订单池:
// 删除已成交和过期的订单, 然后签到
type BlockExecutor struct {
	mempool mempool.Mempool
	barrier *signoff.Barrier

	logger log.Logger
}

func NewBlockExecutor(mempool mempool.Mempool, barrier *signoff.Barrier) *BlockExecutor {
	return &BlockExecutor{
		mempool: mempool,
		barrier: barrier,
		logger:  log.NewNopLogger(),
	}
}

func (exec *BlockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

func (exec *BlockExecutor) ApplyBlock(block *ChainBlock) error {
	// 更新mempool前先加锁, 防止 CheckOrder 与删除交错
	exec.mempool.Lock()
	err := exec.mempool.Update(block.Number, block.FilledOrders)
	exec.mempool.Unlock()
	if err != nil {
		return errors.Wrapf(err, "update mempool at block %d", block.Number)
	}
	exec.logger.Debug("Applied block", "block", block, "orders", exec.mempool.Size())

	if exec.barrier == nil {
		return nil
	}
	fired, err := exec.barrier.SignOff(ParticipantMempool, block.Number)
	if err != nil {
		return errors.Wrapf(err, "sign off block %d", block.Number)
	}
	if len(fired) > 0 {
		exec.logger.Debug("Block signed off", "heights", fired)
	}
	return nil
}
