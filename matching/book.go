package matching

import (
	"errors"
	"fmt"
	"sort"

	"strom_bft/amm"
	"strom_bft/types"
)

var ErrCrossedIndex = errors.New("order hash present in both bid and ask index")

// BookOrder 订单簿中的一个限价单, seq 是订单在输入中的位置, 价格相同时 seq 小的优先
// 共识中输入按订单哈希排序(见 types.OrderHashes), 所有验证者得到同样的顺序
type BookOrder struct {
	*types.LimitOrder
	ID  types.Hash
	seq int
}

// OrderBook 一个池子在一轮中的订单簿, 构造后不再修改
// Bids 按价格降序, Asks 按价格升序, 价格相同按 seq
type OrderBook struct {
	Pool types.Hash
	Bids []*BookOrder
	Asks []*BookOrder
	AMM  *amm.PoolSnapshot
}

// NewOrderBook 只收录属于 pool 的订单, 重复的订单只保留第一次出现的
func NewOrderBook(pool types.Hash, orders []*types.LimitOrder, snap *amm.PoolSnapshot) (*OrderBook, error) {
	book := &OrderBook{Pool: pool, AMM: snap}
	bidIdx := make(map[types.Hash]struct{})
	askIdx := make(map[types.Hash]struct{})

	for i, o := range orders {
		if o.Pool != pool {
			continue
		}
		if err := o.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("order #%d: %w", i, err)
		}
		id := o.Hash()
		bo := &BookOrder{LimitOrder: o, ID: id, seq: i}
		if o.IsBid {
			if _, ok := askIdx[id]; ok {
				return nil, ErrCrossedIndex
			}
			if _, ok := bidIdx[id]; ok {
				continue
			}
			bidIdx[id] = struct{}{}
			book.Bids = append(book.Bids, bo)
		} else {
			if _, ok := bidIdx[id]; ok {
				return nil, ErrCrossedIndex
			}
			if _, ok := askIdx[id]; ok {
				continue
			}
			askIdx[id] = struct{}{}
			book.Asks = append(book.Asks, bo)
		}
	}

	sort.Slice(book.Bids, func(i, j int) bool {
		if c := book.Bids[i].Price().Cmp(book.Bids[j].Price()); c != 0 {
			return c > 0
		}
		return book.Bids[i].seq < book.Bids[j].seq
	})
	sort.Slice(book.Asks, func(i, j int) bool {
		if c := book.Asks[i].Price().Cmp(book.Asks[j].Price()); c != 0 {
			return c < 0
		}
		return book.Asks[i].seq < book.Asks[j].seq
	})
	return book, nil
}

// HasAMM 快照存在且有流动性
func (b *OrderBook) HasAMM() bool {
	return b.AMM != nil && !b.AMM.IsEmpty()
}

func (b *OrderBook) Size() int { return len(b.Bids) + len(b.Asks) }

func (b *OrderBook) String() string {
	return fmt.Sprintf("OrderBook{%v bids:%d asks:%d amm:%v}", b.Pool, len(b.Bids), len(b.Asks), b.HasAMM())
}

// BuildBooks 按池子分组构造订单簿, 结果按池子 id 排序
// 没有限价单但有 searcher 订单的池子也会构造一个空订单簿
func BuildBooks(orders []*types.LimitOrder, searchers map[types.Hash][]*types.SearcherOrder,
	pools map[types.Hash]amm.PoolEntry) ([]*OrderBook, error) {
	ids := make(map[types.Hash]struct{})
	groups := make(map[types.Hash][]*types.LimitOrder)
	for _, o := range orders {
		ids[o.Pool] = struct{}{}
		groups[o.Pool] = append(groups[o.Pool], o)
	}
	for id, ss := range searchers {
		if len(ss) > 0 {
			ids[id] = struct{}{}
		}
	}

	sorted := make([]types.Hash, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	types.SortHashes(sorted)

	books := make([]*OrderBook, 0, len(sorted))
	for _, id := range sorted {
		var snap *amm.PoolSnapshot
		if e, ok := pools[id]; ok {
			snap = e.Snapshot
		}
		book, err := NewOrderBook(id, groups[id], snap)
		if err != nil {
			return nil, fmt.Errorf("pool %v: %w", id, err)
		}
		books = append(books, book)
	}
	return books, nil
}
