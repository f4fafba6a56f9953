package mock

import (
	mempl "strom_bft/mempool"
	"strom_bft/types"
)

// Mempool is an empty implementation of a Mempool, useful for testing.
type Mempool struct{}

var _ mempl.Mempool = Mempool{}

func (Mempool) Lock()     {}
func (Mempool) Unlock()   {}
func (Mempool) Size() int { return 0 }
func (Mempool) CheckOrder(_ types.Order, _ mempl.OrderInfo) error {
	return nil
}
func (Mempool) GetAllOrders() []*types.LimitOrder { return nil }
func (Mempool) GetSearcherOrders() map[types.Hash][]*types.SearcherOrder {
	return map[types.Hash][]*types.SearcherOrder{}
}
func (Mempool) GetOrders(_, _ []types.Hash) ([]*types.LimitOrder, map[types.Hash][]*types.SearcherOrder) {
	return nil, map[types.Hash][]*types.SearcherOrder{}
}
func (Mempool) Update(
	_ uint64,
	_ []types.Hash,
) error {
	return nil
}
func (Mempool) Flush()             {}
func (Mempool) OrdersBytes() int64 { return 0 }
