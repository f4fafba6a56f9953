package slot

import (
	"time"

	"github.com/tendermint/tendermint/libs/service"

	"strom_bft/state"
)

// Slot 开发网络的出块时钟
// 每个 slot 出一个块, slot 编号就是链上块高
type Slot interface {
	// 获取当前的slot
	GetSlot() uint64

	// 每出一个块触发一次
	GetTimeOutChan() <-chan struct{}

	// 重置出块间隔, 从下一个块开始生效
	Reset(duration time.Duration)
}

// BlockClock 按固定间隔驱动 DevChain 出块, 只在出块节点上运行
type BlockClock struct {
	service.BaseService

	chain    *state.DevChain
	interval time.Duration
	resetCh  chan time.Duration
	tockCh   chan struct{}
}

var _ Slot = (*BlockClock)(nil)

func NewBlockClock(chain *state.DevChain, interval time.Duration) *BlockClock {
	c := &BlockClock{
		chain:    chain,
		interval: interval,
		resetCh:  make(chan time.Duration, 1),
		tockCh:   make(chan struct{}, 1),
	}
	c.BaseService = *service.NewBaseService(nil, "BlockClock", c)
	return c
}

func (c *BlockClock) OnStart() error {
	go c.timeoutRoutine()
	return nil
}

func (c *BlockClock) GetSlot() uint64 {
	return c.chain.BlockNumber()
}

func (c *BlockClock) GetTimeOutChan() <-chan struct{} {
	return c.tockCh
}

func (c *BlockClock) Reset(duration time.Duration) {
	select {
	case <-c.resetCh:
	default:
	}
	c.resetCh <- duration
}

func (c *BlockClock) timeoutRoutine() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case d := <-c.resetCh:
			c.Logger.Info("Reset block interval", "old", c.interval, "new", d)
			c.interval = d
			ticker.Reset(d)
		case <-ticker.C:
			block := c.chain.ProduceBlock()
			c.Logger.Info("Slot", "number", block.Number, "txs", len(block.Txs))
			// 没人读的时候不阻塞
			select {
			case c.tockCh <- struct{}{}:
			default:
			}
		case <-c.Quit():
			return
		}
	}
}
