package mempool

import (
	"container/list"
	"sync"
	"sync/atomic"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/types"
)

func NewListMempool(config *cfg.MempoolConfig, height uint64, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		height: height,
		config: config,
		orders: clist.New(),
		bids:   make(map[types.Hash]*clist.CElement),
		asks:   make(map[types.Hash]*clist.CElement),
		metric: newMemMetric(),
		logger: log.NewNopLogger(),
	}

	if config.CacheSize > 0 {
		mem.cache = newMapOrderCache(config.CacheSize)
	} else {
		mem.cache = nopOrderCache{}
	}

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool 用 clist 保存订单, reactor 可以并发地遍历链表进行广播
type ListMempool struct {
	// Atomic integers
	height      uint64 // the last block Update()'d to
	ordersBytes int64

	config *cfg.MempoolConfig

	updateMtx sync.RWMutex
	preCheck  PreCheckFunc

	orders *clist.CList

	// 买卖两个索引, 同一个订单哈希不会同时出现在两个索引中
	idxMtx sync.RWMutex
	bids   map[types.Hash]*clist.CElement
	asks   map[types.Hash]*clist.CElement

	// 已经成交或者过期的订单
	cache orderCache

	metric *memMetric
	logger log.Logger
}

var _ Mempool = (*ListMempool)(nil)

type ListMempoolOption func(*ListMempool)

func SetPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

func (mem *ListMempool) Height() uint64 {
	return atomic.LoadUint64(&mem.height)
}

func (mem *ListMempool) CheckOrder(order types.Order, info OrderInfo) error {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if err := order.ValidateBasic(); err != nil {
		return err
	}
	bz, err := types.EncodeOrder(order)
	if err != nil {
		return err
	}
	if max := mem.config.MaxTxBytes; max > 0 && len(bz) > max {
		return ErrOrderTooLarge{Max: max, Actual: len(bz)}
	}
	if mem.config.Size > 0 && mem.Size() >= mem.config.Size {
		return ErrMempoolIsFull{NumOrders: mem.Size(), MaxOrders: mem.config.Size}
	}
	if mem.preCheck != nil {
		if err := mem.preCheck(order); err != nil {
			return err
		}
	}
	if expired(order, mem.Height()) {
		return ErrOrderExpired
	}

	hash := order.Hash()
	if e, ok := mem.lookup(hash); ok {
		// 记录新的来源, 不再向它广播
		e.Value.(*mempoolOrder).senders.Store(info.SenderID, struct{}{})
		return ErrOrderInPool
	}
	if !mem.cache.Push(hash) {
		return ErrOrderInCache
	}

	memOrder := &mempoolOrder{
		height: mem.Height(),
		hash:   hash,
		order:  order,
		bz:     bz,
	}
	memOrder.senders.Store(info.SenderID, struct{}{})
	if err := mem.addOrder(memOrder); err != nil {
		mem.cache.Remove(hash)
		return err
	}
	mem.logger.Debug("Added order", "order", hash, "peer", info.SenderP2PID, "total", mem.Size())
	return nil
}

func (mem *ListMempool) GetAllOrders() []*types.LimitOrder {
	orders := make([]*types.LimitOrder, 0, mem.orders.Len())
	for e := mem.orders.Front(); e != nil; e = e.Next() {
		if o, ok := e.Value.(*mempoolOrder).order.(*types.LimitOrder); ok {
			orders = append(orders, o)
		}
	}
	return orders
}

func (mem *ListMempool) GetSearcherOrders() map[types.Hash][]*types.SearcherOrder {
	out := make(map[types.Hash][]*types.SearcherOrder)
	for e := mem.orders.Front(); e != nil; e = e.Next() {
		if o, ok := e.Value.(*mempoolOrder).order.(*types.SearcherOrder); ok {
			out[o.Pool] = append(out[o.Pool], o)
		}
	}
	return out
}

func (mem *ListMempool) GetOrders(limit, searcher []types.Hash) ([]*types.LimitOrder, map[types.Hash][]*types.SearcherOrder) {
	orders := make([]*types.LimitOrder, 0, len(limit))
	for _, h := range limit {
		e, ok := mem.lookup(h)
		if !ok {
			continue
		}
		if o, ok := e.Value.(*mempoolOrder).order.(*types.LimitOrder); ok {
			orders = append(orders, o)
		}
	}
	searchers := make(map[types.Hash][]*types.SearcherOrder)
	for _, h := range searcher {
		e, ok := mem.lookup(h)
		if !ok {
			continue
		}
		if o, ok := e.Value.(*mempoolOrder).order.(*types.SearcherOrder); ok {
			searchers[o.Pool] = append(searchers[o.Pool], o)
		}
	}
	return orders, searchers
}

// Lock 锁定mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock 释放mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

func (mem *ListMempool) Update(height uint64, filled []types.Hash) error {
	atomic.StoreUint64(&mem.height, height)

	for _, h := range filled {
		// 已成交的订单留在 cache 中, 防止被重新广播回来
		_ = mem.cache.Push(h)
		if e, ok := mem.lookup(h); ok {
			mem.removeOrder(e)
		}
	}

	var stale []*clist.CElement
	for e := mem.orders.Front(); e != nil; e = e.Next() {
		if expired(e.Value.(*mempoolOrder).order, height) {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		mem.removeOrder(e)
	}
	if len(filled) > 0 || len(stale) > 0 {
		mem.logger.Info("Updated mempool", "height", height, "filled", len(filled),
			"expired", len(stale), "remaining", mem.Size())
	}
	mem.metric.MarkOrdersNum(mem.Size())
	mem.metric.MarkOrdersBytes(mem.OrdersBytes())
	return nil
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	mem.cache.Reset()
	for e := mem.orders.Front(); e != nil; e = e.Next() {
		mem.removeOrder(e)
	}
	atomic.StoreInt64(&mem.ordersBytes, 0)
}

func (mem *ListMempool) Size() int {
	return mem.orders.Len()
}

func (mem *ListMempool) OrdersBytes() int64 {
	return atomic.LoadInt64(&mem.ordersBytes)
}

// Metric 以 json 形式导出
func (mem *ListMempool) Metric() *memMetric {
	return mem.metric
}

// addOrder 将订单加入到 mempool 的双向链表;
// 并且更新买卖索引和 mempool 的总大小
func (mem *ListMempool) addOrder(memOrder *mempoolOrder) error {
	mem.idxMtx.Lock()
	defer mem.idxMtx.Unlock()

	_, inBids := mem.bids[memOrder.hash]
	_, inAsks := mem.asks[memOrder.hash]
	if inBids || inAsks {
		return ErrOrderInPool
	}

	e := mem.orders.PushBack(memOrder)
	if memOrder.order.IsBidOrder() {
		mem.bids[memOrder.hash] = e
	} else {
		mem.asks[memOrder.hash] = e
	}
	atomic.AddInt64(&mem.ordersBytes, int64(len(memOrder.bz)))
	mem.metric.MarkOrdersNum(mem.orders.Len())
	return nil
}

func (mem *ListMempool) removeOrder(e *clist.CElement) {
	memOrder := e.Value.(*mempoolOrder)

	mem.idxMtx.Lock()
	if _, ok := mem.bids[memOrder.hash]; ok {
		delete(mem.bids, memOrder.hash)
	} else if _, ok := mem.asks[memOrder.hash]; ok {
		delete(mem.asks, memOrder.hash)
	} else {
		mem.idxMtx.Unlock()
		return
	}
	mem.idxMtx.Unlock()

	mem.orders.Remove(e)
	e.DetachPrev()
	atomic.AddInt64(&mem.ordersBytes, -int64(len(memOrder.bz)))
}

func (mem *ListMempool) lookup(hash types.Hash) (*clist.CElement, bool) {
	mem.idxMtx.RLock()
	defer mem.idxMtx.RUnlock()

	if e, ok := mem.bids[hash]; ok {
		return e, true
	}
	e, ok := mem.asks[hash]
	return e, ok
}

// Has 订单是否在 mempool 中
func (mem *ListMempool) Has(hash types.Hash) bool {
	_, ok := mem.lookup(hash)
	return ok
}

func (mem *ListMempool) OrdersWaitChan() <-chan struct{} {
	return mem.orders.WaitChan()
}

func (mem *ListMempool) OrdersFront() *clist.CElement {
	return mem.orders.Front()
}

// expired 限价单 ValidUntil 不晚于 height, searcher 订单只对 ValidBlock 这一块有效
func expired(order types.Order, height uint64) bool {
	switch o := order.(type) {
	case *types.LimitOrder:
		return o.ValidUntil != 0 && o.ValidUntil <= height
	case *types.SearcherOrder:
		return o.ValidBlock != 0 && o.ValidBlock <= height
	}
	return false
}

// ------------------------------

type orderCache interface {
	Reset()
	Push(hash types.Hash) bool
	Remove(hash types.Hash)
}

// mapOrderCache 保存最近 size 个订单哈希, 超出时淘汰最早的
type mapOrderCache struct {
	mtx   sync.Mutex
	size  int
	cache map[types.Hash]*list.Element
	list  *list.List
}

func newMapOrderCache(size int) *mapOrderCache {
	return &mapOrderCache{
		size:  size,
		cache: make(map[types.Hash]*list.Element, size),
		list:  list.New(),
	}
}

func (c *mapOrderCache) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.cache = make(map[types.Hash]*list.Element, c.size)
	c.list.Init()
}

// Push 已存在时返回 false
func (c *mapOrderCache) Push(hash types.Hash) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if e, ok := c.cache[hash]; ok {
		c.list.MoveToBack(e)
		return false
	}
	if c.list.Len() >= c.size {
		front := c.list.Front()
		if front != nil {
			delete(c.cache, front.Value.(types.Hash))
			c.list.Remove(front)
		}
	}
	c.cache[hash] = c.list.PushBack(hash)
	return true
}

func (c *mapOrderCache) Remove(hash types.Hash) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if e, ok := c.cache[hash]; ok {
		c.list.Remove(e)
		delete(c.cache, hash)
	}
}

type nopOrderCache struct{}

func (nopOrderCache) Reset()               {}
func (nopOrderCache) Push(types.Hash) bool { return true }
func (nopOrderCache) Remove(types.Hash)    {}

type mempoolOrder struct {
	height uint64
	hash   types.Hash
	order  types.Order
	bz     []byte

	senders sync.Map
}

// Height returns the height for this order
func (memOrder *mempoolOrder) Height() uint64 {
	return atomic.LoadUint64(&memOrder.height)
}
