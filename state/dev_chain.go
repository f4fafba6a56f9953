package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"strom_bft/types"
)

const (
	eventNewBlock = "NewChainBlock"

	watchBufferSize = 16
)

var ErrTargetPassed = errors.New("target block already mined")

// DevChain 开发网络使用的内存链
// 出块节点打包提交, 其他节点通过 ApplyBlock 同步出块节点的块, 并把自己的提交转发给出块节点
type DevChain struct {
	service.BaseService

	mtx      sync.RWMutex
	number   uint64
	included map[types.Hash]uint64
	pending  []*Submission

	producer bool
	forward  func(*Submission)

	evsw     events.EventSwitch
	watchers uint64
}

var _ ChainClient = (*DevChain)(nil)

type DevChainOption func(*DevChain)

// AsBlockProducer 由本节点出块
func AsBlockProducer() DevChainOption {
	return func(c *DevChain) {
		c.producer = true
	}
}

// WithForwarder 非出块节点的提交通过 forward 发给出块节点
func WithForwarder(forward func(*Submission)) DevChainOption {
	return func(c *DevChain) {
		c.forward = forward
	}
}

func NewDevChain(number uint64, options ...DevChainOption) *DevChain {
	c := &DevChain{
		number:   number,
		included: make(map[types.Hash]uint64),
		evsw:     events.NewEventSwitch(),
	}
	c.BaseService = *service.NewBaseService(nil, "DevChain", c)
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *DevChain) SetLogger(logger log.Logger) {
	c.Logger = logger
	c.evsw.SetLogger(logger)
}

func (c *DevChain) SetForwarder(forward func(*Submission)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.forward = forward
}

func (c *DevChain) OnStart() error {
	return c.evsw.Start()
}

func (c *DevChain) OnStop() {
	if err := c.evsw.Stop(); err != nil {
		c.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
}

func (c *DevChain) IsProducer() bool {
	return c.producer
}

func (c *DevChain) BlockNumber() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.number
}

func (c *DevChain) Submit(ctx context.Context, sub *Submission) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}
	if err := c.AddSubmission(sub); err != nil {
		return types.Hash{}, err
	}
	c.mtx.RLock()
	forward := c.forward
	c.mtx.RUnlock()
	if !c.producer && forward != nil {
		forward(sub)
	}
	return sub.Hash(), nil
}

// AddSubmission 保存等待打包的提交, 出块节点从 reactor 收到的转发也走这里
func (c *DevChain) AddSubmission(sub *Submission) error {
	if err := sub.ValidateBasic(); err != nil {
		return err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if sub.TargetBlock <= c.number {
		return errors.Wrapf(ErrTargetPassed, "target %d, head %d", sub.TargetBlock, c.number)
	}
	hash := sub.Hash()
	if _, ok := c.included[hash]; ok {
		return nil
	}
	for _, p := range c.pending {
		if p.Hash() == hash {
			return nil
		}
	}
	c.pending = append(c.pending, sub)
	return nil
}

// TxBlock 返回打包该交易的块高
func (c *DevChain) TxBlock(tx types.Hash) (uint64, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	h, ok := c.included[tx]
	return h, ok
}

// Pending 等待打包的提交
func (c *DevChain) Pending() []*Submission {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return append([]*Submission{}, c.pending...)
}

// ProduceBlock 打包目标为下一块的提交, 目标已经错过的提交被丢弃
func (c *DevChain) ProduceBlock() *ChainBlock {
	c.mtx.Lock()
	c.number++
	block := &ChainBlock{Number: c.number}
	var keep []*Submission
	for _, sub := range c.pending {
		switch {
		case sub.TargetBlock == c.number:
			hash := sub.Hash()
			block.Txs = append(block.Txs, hash)
			block.FilledOrders = append(block.FilledOrders, sub.FilledOrders()...)
			c.included[hash] = c.number
		case sub.TargetBlock > c.number:
			keep = append(keep, sub)
		default:
			c.Logger.Info("Dropped submission that missed its block", "sub", sub)
		}
	}
	c.pending = keep
	c.mtx.Unlock()

	c.Logger.Debug("Produced block", "block", block)
	c.evsw.FireEvent(eventNewBlock, block)
	return block
}

// ApplyBlock 同步出块节点的块, 不比当前高的块被忽略
func (c *DevChain) ApplyBlock(block *ChainBlock) bool {
	c.mtx.Lock()
	if block.Number <= c.number {
		c.mtx.Unlock()
		return false
	}
	c.number = block.Number
	for _, tx := range block.Txs {
		c.included[tx] = block.Number
	}
	var keep []*Submission
	for _, sub := range c.pending {
		if _, ok := c.included[sub.Hash()]; !ok && sub.TargetBlock > block.Number {
			keep = append(keep, sub)
		}
	}
	c.pending = keep
	c.mtx.Unlock()

	c.evsw.FireEvent(eventNewBlock, block)
	return true
}

// WatchBlocks ctx 结束后不再推送新块; channel 不会被关闭
// 消费太慢时丢弃新块
func (c *DevChain) WatchBlocks(ctx context.Context) <-chan *ChainBlock {
	id := fmt.Sprintf("watcher-%d", atomic.AddUint64(&c.watchers, 1))
	ch := make(chan *ChainBlock, watchBufferSize)

	err := c.evsw.AddListenerForEvent(id, eventNewBlock, func(data events.EventData) {
		select {
		case <-ctx.Done():
		case ch <- data.(*ChainBlock):
		default:
			c.Logger.Error("Block watcher is too slow, dropping block", "watcher", id)
		}
	})
	if err != nil {
		c.Logger.Error("failed to add block watcher", "err", err)
		return ch
	}

	go func() {
		<-ctx.Done()
		c.evsw.RemoveListener(id)
	}()
	return ch
}
