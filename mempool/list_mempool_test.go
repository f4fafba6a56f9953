package mempool

import (
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"

	"strom_bft/types"
)

type cleanupFunc func()

// ----- utility func -----

func newMempool() (*ListMempool, cleanupFunc) {
	return newMempoolWithConfig(cfg.ResetTestRoot("mempool_test"))
}

func newMempoolWithConfig(config *cfg.Config) (*ListMempool, cleanupFunc) {
	mempool := NewListMempool(config.Mempool, 0)
	mempool.SetLogger(log.TestingLogger())
	return mempool, func() { os.RemoveAll(config.RootDir) }
}

var testPool = types.BytesToHash([]byte("pool"))

func randLimitOrder() *types.LimitOrder {
	return &types.LimitOrder{
		Pool:        testPool,
		IsBid:       tmrand.Bool(),
		Quantity:    big.NewInt(int64(tmrand.Intn(1000000) + 1)),
		MinQuantity: new(big.Int),
		LimitPrice:  types.RayFromUnits(1).Int(),
		Nonce:       tmrand.Uint64(),
	}
}

// 随机生成一些订单，并对其CheckOrder
func checkOrders(t *testing.T, mempool Mempool, count int, peerID uint16) []types.Order {
	orders := make([]types.Order, count)
	info := OrderInfo{
		SenderID: peerID,
	}
	for i := 0; i < count; i++ {
		orders[i] = randLimitOrder()
		if err := mempool.CheckOrder(orders[i], info); err != nil {
			t.Fatalf("CheckOrder failed: %v while checking #%d order", err, i)
		}
	}
	return orders
}

// ----- tests -----

func TestBasicMempool(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	orders := checkOrders(t, mem, 10, UnknownPeerID)
	assert.Equal(t, 10, mem.Size())
	assert.True(t, mem.OrdersBytes() > 0)
	assert.Len(t, mem.GetAllOrders(), 10)

	mem.Flush()
	assert.Equal(t, 0, mem.Size())
	assert.Equal(t, int64(0), mem.OrdersBytes())

	// Flush 同时清空 cache
	require.NoError(t, mem.CheckOrder(orders[0], OrderInfo{SenderID: UnknownPeerID}))
	mem.Flush()
}

func TestCheckOrderDuplicate(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	orders := checkOrders(t, mem, 1, UnknownPeerID)
	err := mem.CheckOrder(orders[0], OrderInfo{SenderID: 3})
	assert.Equal(t, ErrOrderInPool, err)
	assert.Equal(t, 1, mem.Size())

	mem.Lock()
	require.NoError(t, mem.Update(1, []types.Hash{orders[0].Hash()}))
	mem.Unlock()
	assert.Equal(t, 0, mem.Size())

	// 已成交的订单不能再次加入
	err = mem.CheckOrder(orders[0], OrderInfo{SenderID: UnknownPeerID})
	assert.Equal(t, ErrOrderInCache, err)
}

func TestCheckOrderInvalid(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	o := randLimitOrder()
	o.Quantity = new(big.Int)
	assert.Equal(t, types.ErrOrderEmptyQuantity, mem.CheckOrder(o, OrderInfo{}))

	o = randLimitOrder()
	o.IsBid = false
	o.ExactIn = true
	assert.Equal(t, types.ErrOrderExactInAsk, mem.CheckOrder(o, OrderInfo{}))

	rejected := randLimitOrder()
	mem.preCheck = func(order types.Order) error { return ErrOrderExpired }
	assert.Error(t, mem.CheckOrder(rejected, OrderInfo{}))
	assert.Equal(t, 0, mem.Size())
}

func TestMempoolLimits(t *testing.T) {
	config := cfg.ResetTestRoot("mempool_test")
	config.Mempool.Size = 2
	mem, cleanup := newMempoolWithConfig(config)
	defer cleanup()

	checkOrders(t, mem, 2, UnknownPeerID)
	err := mem.CheckOrder(randLimitOrder(), OrderInfo{})
	assert.IsType(t, ErrMempoolIsFull{}, err)

	config.Mempool.Size = 100
	config.Mempool.MaxTxBytes = 10
	err = mem.CheckOrder(randLimitOrder(), OrderInfo{})
	assert.IsType(t, ErrOrderTooLarge{}, err)
}

func TestSearcherOrders(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	other := types.BytesToHash([]byte("other"))
	s1 := &types.SearcherOrder{Pool: testPool, IsBid: true, QuantityIn: big.NewInt(10), QuantityOut: big.NewInt(5), ValidBlock: 3}
	s2 := &types.SearcherOrder{Pool: other, QuantityIn: big.NewInt(10), QuantityOut: big.NewInt(5), ValidBlock: 3}
	require.NoError(t, mem.CheckOrder(s1, OrderInfo{}))
	require.NoError(t, mem.CheckOrder(s2, OrderInfo{}))
	limits := checkOrders(t, mem, 3, UnknownPeerID)

	assert.Len(t, mem.GetAllOrders(), 3)
	searchers := mem.GetSearcherOrders()
	require.Len(t, searchers, 2)
	assert.Equal(t, s1.Hash(), searchers[testPool][0].Hash())
	assert.Equal(t, s2.Hash(), searchers[other][0].Hash())

	unknown := types.BytesToHash([]byte("unknown"))
	got, gotSearchers := mem.GetOrders(
		[]types.Hash{limits[2].Hash(), unknown, s1.Hash()},
		[]types.Hash{s2.Hash(), unknown, limits[0].Hash()})
	require.Len(t, got, 1)
	assert.Equal(t, limits[2].Hash(), got[0].Hash())
	require.Len(t, gotSearchers[other], 1)
	assert.Len(t, gotSearchers[testPool], 0)
}

func TestUpdateRemovesExpired(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	short := randLimitOrder()
	short.ValidUntil = 5
	forever := randLimitOrder()
	searcher := &types.SearcherOrder{Pool: testPool, QuantityIn: big.NewInt(1), QuantityOut: big.NewInt(1), ValidBlock: 3}
	for _, o := range []types.Order{short, forever, searcher} {
		require.NoError(t, mem.CheckOrder(o, OrderInfo{}))
	}

	mem.Lock()
	require.NoError(t, mem.Update(3, nil))
	mem.Unlock()
	assert.Equal(t, 2, mem.Size())
	assert.False(t, mem.Has(searcher.Hash()))

	mem.Lock()
	require.NoError(t, mem.Update(5, nil))
	mem.Unlock()
	assert.Equal(t, 1, mem.Size())
	assert.True(t, mem.Has(forever.Hash()))

	late := randLimitOrder()
	late.ValidUntil = 4
	assert.Equal(t, ErrOrderExpired, mem.CheckOrder(late, OrderInfo{}))
}

func TestBidAskIndexDisjoint(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	orders := checkOrders(t, mem, 200, UnknownPeerID)
	bids := 0
	for _, o := range orders {
		if o.IsBidOrder() {
			bids++
		}
	}

	mem.idxMtx.RLock()
	defer mem.idxMtx.RUnlock()
	assert.Len(t, mem.bids, bids)
	assert.Len(t, mem.asks, len(orders)-bids)
	for h := range mem.bids {
		_, ok := mem.asks[h]
		assert.False(t, ok, "order %v in both indices", h)
	}
}

func TestOrderCache(t *testing.T) {
	cache := newMapOrderCache(2)
	a := types.BytesToHash([]byte("a"))
	b := types.BytesToHash([]byte("b"))
	c := types.BytesToHash([]byte("c"))

	assert.True(t, cache.Push(a))
	assert.False(t, cache.Push(a))
	assert.True(t, cache.Push(b))
	// 淘汰最早的 a
	assert.True(t, cache.Push(c))
	assert.True(t, cache.Push(a))

	cache.Remove(a)
	assert.True(t, cache.Push(a))
	cache.Reset()
	assert.True(t, cache.Push(b))
}

func TestMemMetricJSON(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	checkOrders(t, mem, 3, UnknownPeerID)
	assert.Contains(t, mem.Metric().JSONString(), `"orders_num":3`)
}
