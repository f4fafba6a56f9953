package mempool

import (
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

// Mempool 保存尚未成交的限价单与 searcher 订单
// 共识在每一轮开始时读取快照, 撮合引擎只读
type Mempool interface {
	// CheckOrder 检验订单是否合法, 合法则加入 mempool
	CheckOrder(types.Order, OrderInfo) error

	// GetAllOrders 返回所有限价单, 按加入顺序
	GetAllOrders() []*types.LimitOrder

	// GetSearcherOrders 按池子分组返回 searcher 订单
	GetSearcherOrders() map[types.Hash][]*types.SearcherOrder

	// GetOrders 按哈希查找订单, 本地没有的订单被忽略
	GetOrders(limit, searcher []types.Hash) ([]*types.LimitOrder, map[types.Hash][]*types.SearcherOrder)

	// Lock 更新 mempool 前必须 lock
	Lock()

	Unlock()

	// Update 新块到达后删除已成交的订单和过期的订单
	// NOTE: caller 负责 Lock/Unlock
	Update(height uint64, filled []types.Hash) error

	// Flush 清空订单与 cache
	Flush()

	// Size 返回订单条数
	Size() int

	// OrdersBytes 返回所有订单编码后的大小
	OrdersBytes() int64
}

//--------------------------------------------------------------------------------

type PreCheckFunc func(types.Order) error

// OrderInfo 加入订单时附带的来源信息
type OrderInfo struct {
	// SenderID 是 mempool 内部给 peer 分配的 id, 0 表示来自 RPC
	SenderID uint16
	// SenderP2PID 只用于日志
	SenderP2PID p2p.ID
}
