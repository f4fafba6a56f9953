package matching

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"pgregory.net/rapid"

	"strom_bft/amm"
	"strom_bft/types"
)

var testPool = types.HexToHash("0xabcdef")

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func ratio(num, den int64) types.Ray {
	return types.RayFromRatio(big.NewInt(num), big.NewInt(den), false)
}

func limitOrder(isBid bool, kind types.OrderKind, qty *big.Int, price types.Ray, nonce uint64) *types.LimitOrder {
	return &types.LimitOrder{
		Pool:        testPool,
		IsBid:       isBid,
		Kind:        kind,
		Quantity:    qty,
		MinQuantity: new(big.Int),
		LimitPrice:  price.Int(),
		Nonce:       nonce,
	}
}

func testAMM(t require.TestingT) *amm.PoolSnapshot {
	snap, err := amm.NewPoolSnapshotAtPrice(
		[]amm.LiqRange{amm.NewLiqRange(-20000, 20000, e18(1000))}, types.RayFromUnits(1))
	require.NoError(t, err)
	return snap
}

func orderIndex(orders ...*types.LimitOrder) map[types.Hash]*types.LimitOrder {
	idx := make(map[types.Hash]*types.LimitOrder, len(orders))
	for _, o := range orders {
		idx[o.Hash()] = o
	}
	return idx
}

func solve(t *testing.T, snap *amm.PoolSnapshot, searchers []*types.SearcherOrder,
	orders ...*types.LimitOrder) *types.PoolSolution {
	book, err := NewOrderBook(testPool, orders, snap)
	require.NoError(t, err)
	sol, err := SolvePool(book, searchers)
	require.NoError(t, err)
	return sol
}

func requireOutcome(t *testing.T, sol *types.PoolSolution, o *types.LimitOrder,
	state types.FillState, filled int64) {
	out, ok := sol.Outcome(o.Hash())
	require.True(t, ok, "missing outcome for %v", o)
	assert.Equal(t, state, out.State, "order %v", o)
	if filled >= 0 {
		assert.Equal(t, big.NewInt(filled).String(), out.Filled.String(), "order %v", o)
	}
}

func TestBookOnlyScenario(t *testing.T) {
	p := types.RayFromUnits(2)
	pAsk := types.RayFromUnits(1)
	bid1 := limitOrder(true, types.PartialOrder, big.NewInt(5000), p, 1)
	bid2 := limitOrder(true, types.PartialOrder, big.NewInt(50000), p, 2)
	ask1 := limitOrder(false, types.PartialOrder, big.NewInt(1000), pAsk, 3)
	ask2 := limitOrder(false, types.PartialOrder, big.NewInt(10000), pAsk, 4)

	sol := solve(t, nil, nil, bid1, bid2, ask1, ask2)
	require.NotNil(t, sol)
	assert.Equal(t, 0, sol.UniformClearingPrice.Cmp(pAsk))
	assert.Nil(t, sol.AmmQuantity)
	assert.Len(t, sol.LimitOrders, 4)

	requireOutcome(t, sol, bid1, types.CompleteFill, 5000)
	requireOutcome(t, sol, bid2, types.PartialFill, 6000)
	requireOutcome(t, sol, ask1, types.CompleteFill, 1000)
	requireOutcome(t, sol, ask2, types.CompleteFill, 10000)
	assert.Equal(t, 0, sol.NetToken0(orderIndex(bid1, bid2, ask1, ask2)).Sign())
}

func TestNoCrossNoSolution(t *testing.T) {
	bid := limitOrder(true, types.PartialOrder, big.NewInt(100), types.RayFromUnits(1), 1)
	ask := limitOrder(false, types.PartialOrder, big.NewInt(100), types.RayFromUnits(2), 2)
	assert.Nil(t, solve(t, nil, nil, bid, ask))
}

func TestKillOrFill(t *testing.T) {
	kof := limitOrder(true, types.KillOrFillOrder, big.NewInt(5000), types.RayFromUnits(3), 1)
	bid := limitOrder(true, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(2), 2)
	ask := limitOrder(false, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(1), 3)

	sol := solve(t, nil, nil, kof, bid, ask)
	require.NotNil(t, sol)
	requireOutcome(t, sol, kof, types.Killed, 0)
	requireOutcome(t, sol, bid, types.CompleteFill, 1000)
	requireOutcome(t, sol, ask, types.CompleteFill, 1000)
	assert.Equal(t, 0, sol.UniformClearingPrice.Cmp(types.RayFromUnits(1)))
	assert.Equal(t, 0, sol.NetToken0(orderIndex(kof, bid, ask)).Sign())

	// 能够全部成交的 KillOrFill
	kof = limitOrder(true, types.KillOrFillOrder, big.NewInt(1000), types.RayFromUnits(3), 4)
	sol = solve(t, nil, nil, kof, ask)
	require.NotNil(t, sol)
	requireOutcome(t, sol, kof, types.CompleteFill, 1000)
}

func TestMinQuantity(t *testing.T) {
	bid := limitOrder(true, types.PartialOrder, big.NewInt(5000), types.RayFromUnits(2), 1)
	bid.MinQuantity = big.NewInt(3000)
	ask := limitOrder(false, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(1), 2)
	assert.Nil(t, solve(t, nil, nil, bid, ask))

	bid.MinQuantity = big.NewInt(1000)
	sol := solve(t, nil, nil, bid, ask)
	require.NotNil(t, sol)
	requireOutcome(t, sol, bid, types.PartialFill, 1000)
}

func TestPartialBidAgainstAMM(t *testing.T) {
	snap := testAMM(t)
	limit := ratio(101, 100)
	bid := limitOrder(true, types.PartialOrder, e18(10), limit, 1)

	sol := solve(t, snap, nil, bid)
	require.NotNil(t, sol)
	require.NotNil(t, sol.AmmQuantity)

	out, ok := sol.Outcome(bid.Hash())
	require.True(t, ok)
	assert.Equal(t, types.PartialFill, out.State)
	// L * (1 - 1/sqrt(1.01)) ~ 4.96e18
	assert.True(t, out.Filled.Int().Cmp(e18(4)) > 0)
	assert.True(t, out.Filled.Int().Cmp(e18(5)) < 0)
	assert.Equal(t, 0, sol.AmmQuantity.Cmp(out.Filled))

	assert.True(t, sol.UniformClearingPrice.Cmp(limit) <= 0)
	assert.True(t, sol.UniformClearingPrice.Cmp(ratio(1009, 1000)) > 0)
	assert.Equal(t, 0, sol.NetToken0(orderIndex(bid)).Sign())
}

func TestAskAgainstAMM(t *testing.T) {
	snap := testAMM(t)
	ask := limitOrder(false, types.PartialOrder, e18(1), ratio(99, 100), 1)

	sol := solve(t, snap, nil, ask)
	require.NotNil(t, sol)
	out, ok := sol.Outcome(ask.Hash())
	require.True(t, ok)
	assert.Equal(t, types.CompleteFill, out.State)
	assert.Equal(t, 0, sol.AmmQuantity.Int().Cmp(new(big.Int).Neg(e18(1))))
	assert.True(t, sol.UniformClearingPrice.Cmp(ratio(99, 100)) >= 0)
	assert.True(t, sol.UniformClearingPrice.Cmp(types.RayFromUnits(1)) < 0)
	assert.Equal(t, 0, sol.NetToken0(orderIndex(ask)).Sign())
}

func TestExactInBidAgainstAMM(t *testing.T) {
	snap := testAMM(t)
	budget := e18(2)
	bid := limitOrder(true, types.PartialOrder, budget, ratio(101, 100), 1)
	bid.ExactIn = true

	sol := solve(t, snap, nil, bid)
	require.NotNil(t, sol)
	out, ok := sol.Outcome(bid.Hash())
	require.True(t, ok)
	assert.Equal(t, types.CompleteFill, out.State)
	assert.True(t, out.Filled.Int().Cmp(new(big.Int).Div(e18(19), big.NewInt(10))) > 0)
	assert.True(t, out.Filled.Int().Cmp(budget) < 0)

	// 按清算价格正好花完 token1
	spent := sol.UniformClearingPrice.MulQuantity(out.Filled.Int(), false)
	spentF, _ := new(big.Float).SetInt(spent).Float64()
	budgetF, _ := new(big.Float).SetInt(budget).Float64()
	assert.InEpsilon(t, budgetF, spentF, 1e-9)
	assert.Equal(t, 0, sol.NetToken0(orderIndex(bid)).Sign())
}

func TestExactInBidAgainstBookAsks(t *testing.T) {
	bid := limitOrder(true, types.PartialOrder, big.NewInt(2000), types.RayFromUnits(2), 1)
	bid.ExactIn = true
	ask1 := limitOrder(false, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(1), 2)
	ask2 := limitOrder(false, types.PartialOrder, big.NewInt(5000), types.RayFromUnits(1), 3)

	sol := solve(t, nil, nil, bid, ask1, ask2)
	require.NotNil(t, sol)
	assert.Equal(t, 0, sol.UniformClearingPrice.Cmp(types.RayFromUnits(1)))
	// 2000 个 token1 按清算价格全部换成 token0
	requireOutcome(t, sol, bid, types.CompleteFill, 2000)
	requireOutcome(t, sol, ask1, types.CompleteFill, 1000)
	requireOutcome(t, sol, ask2, types.PartialFill, 1000)
	assert.Equal(t, 0, sol.NetToken0(orderIndex(bid, ask1, ask2)).Sign())
}

func TestExactInBidClearsAtUniformPrice(t *testing.T) {
	bid := limitOrder(true, types.PartialOrder, big.NewInt(3000), types.RayFromUnits(2), 1)
	bid.ExactIn = true
	cheap := limitOrder(false, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(1), 2)
	dear := limitOrder(false, types.PartialOrder, big.NewInt(1000), types.RayFromUnits(2), 3)

	sol := solve(t, nil, nil, bid, cheap, dear)
	require.NotNil(t, sol)
	assert.Equal(t, 0, sol.UniformClearingPrice.Cmp(types.RayFromUnits(2)))
	requireOutcome(t, sol, bid, types.CompleteFill, 1500)
	requireOutcome(t, sol, cheap, types.CompleteFill, 1000)
	requireOutcome(t, sol, dear, types.PartialFill, 500)

	out, _ := sol.Outcome(bid.Hash())
	spent := sol.UniformClearingPrice.MulQuantity(out.Filled.Int(), true)
	assert.Equal(t, "3000", spent.String())
}

func TestBookPriceTimePriority(t *testing.T) {
	first := limitOrder(false, types.PartialOrder, big.NewInt(100), types.RayFromUnits(1), 1)
	second := limitOrder(false, types.PartialOrder, big.NewInt(100), types.RayFromUnits(1), 2)
	cheap := limitOrder(false, types.PartialOrder, big.NewInt(100), ratio(1, 2), 3)
	bid := limitOrder(true, types.PartialOrder, big.NewInt(150), types.RayFromUnits(1), 4)

	book, err := NewOrderBook(testPool, []*types.LimitOrder{first, second, cheap, bid}, nil)
	require.NoError(t, err)
	require.Len(t, book.Asks, 3)
	assert.Equal(t, cheap.Hash(), book.Asks[0].ID)
	assert.Equal(t, first.Hash(), book.Asks[1].ID)
	assert.Equal(t, second.Hash(), book.Asks[2].ID)

	// 同价的卖单先到先成交
	sol := solve(t, nil, nil, first, second, cheap, bid)
	requireOutcome(t, sol, cheap, types.CompleteFill, 100)
	requireOutcome(t, sol, first, types.PartialFill, 50)
	requireOutcome(t, sol, second, types.Unfilled, -1)
}

func TestExactInQuantityFollowsCounterparty(t *testing.T) {
	o := limitOrder(true, types.PartialOrder, big.NewInt(2000), types.RayFromUnits(2), 1)
	o.ExactIn = true
	bo := &BookOrder{LimitOrder: o, ID: o.Hash()}

	st := newOrderState(bo, nil)
	assert.Equal(t, "2000", st.Quantity(types.RayFromUnits(1)).String())
	assert.Equal(t, "1000", st.Quantity(types.RayFromUnits(2)).String())
	// 高于限价不成交
	assert.Zero(t, st.Quantity(types.RayFromUnits(3)).Sign())

	token1, err := st.Fill(big.NewInt(500), types.RayFromUnits(1))
	require.NoError(t, err)
	assert.Equal(t, "500", token1.String())
	assert.Equal(t, "1500", st.Quantity(types.RayFromUnits(1)).String())
	assert.False(t, st.complete())
	assert.True(t, st.satisfied())

	fixed := newOrderState(bo, big.NewInt(700))
	assert.Equal(t, "700", fixed.Quantity(types.RayFromUnits(1)).String())
	_, err = fixed.Fill(big.NewInt(701), types.RayFromUnits(1))
	assert.ErrorIs(t, err, errOverfill)
	_, err = fixed.Fill(big.NewInt(700), types.RayFromUnits(1))
	require.NoError(t, err)
	assert.True(t, fixed.complete())
}

func TestCompositeContainer(t *testing.T) {
	snap := testAMM(t)
	pp := snap.Vector()
	budget := e18(2)
	cc := newCompositeContainer(NewDebt(ExactIn, budget, new(big.Int)), pp)
	assert.True(t, cc.IsAMM())
	assert.False(t, cc.IsBid())

	target := ratio(101, 100)
	qi, err := cc.Intersection()
	require.NoError(t, err)
	qa := (&ammContainer{pp: pp}).Quantity(target)
	q := cc.Quantity(target)
	assert.True(t, q.Cmp(qa) <= 0)
	assert.Equal(t, 0, q.Cmp(qi))

	token1, err := cc.Fill(q, target)
	require.NoError(t, err)
	assert.Equal(t, 0, cc.Debt().Token0().Cmp(q))
	assert.True(t, token1.Cmp(budget) <= 0)
	spentF, _ := new(big.Float).SetInt(token1).Float64()
	budgetF, _ := new(big.Float).SetInt(budget).Float64()
	assert.InEpsilon(t, budgetF, spentF, 1e-2)
	assert.True(t, pp.Price().Cmp(types.RayFromUnits(1)) > 0)
}

func TestDebtKinds(t *testing.T) {
	three := types.RayFromUnits(3)
	in := NewDebtAtPrice(ExactIn, big.NewInt(10), three)
	out := NewDebtAtPrice(ExactOut, big.NewInt(10), three)
	assert.Equal(t, "3", in.Token0().String())
	assert.Equal(t, "4", out.Token0().String())
	assert.True(t, in.Price().Cmp(ratio(10, 3)) > 0)
	assert.Equal(t, 0, out.Price().Cmp(ratio(5, 2)))

	drained := out.PartialFill(big.NewInt(5), false)
	assert.Zero(t, drained.Token0().Sign())
	assert.Equal(t, 0, drained.Price().Cmp(types.MaxRay()))
	assert.Contains(t, drained.String(), "ExactOut")
}

func TestBookAndAMMConservation(t *testing.T) {
	snap := testAMM(t)
	orders := []*types.LimitOrder{
		limitOrder(true, types.PartialOrder, e18(3), ratio(102, 100), 1),
		limitOrder(true, types.KillOrFillOrder, e18(1), ratio(101, 100), 2),
		limitOrder(false, types.PartialOrder, e18(2), ratio(100, 100), 3),
		limitOrder(false, types.PartialOrder, e18(2), ratio(103, 100), 4),
	}
	sol := solve(t, snap, nil, orders...)
	require.NotNil(t, sol)
	idx := orderIndex(orders...)
	assert.Equal(t, 0, sol.NetToken0(idx).Sign())
	for _, out := range sol.LimitOrders {
		if idx[out.ID].IsKillOrFill() {
			assert.NotEqual(t, types.PartialFill, out.State)
		}
	}
}

func TestSearcherSelection(t *testing.T) {
	snap := testAMM(t)
	low := &types.SearcherOrder{Pool: testPool, IsBid: true, QuantityIn: e18(2), QuantityOut: e18(1)}
	high := &types.SearcherOrder{Pool: testPool, IsBid: true, QuantityIn: e18(3), QuantityOut: e18(1)}
	negative := &types.SearcherOrder{Pool: testPool, IsBid: true, QuantityIn: big.NewInt(1000), QuantityOut: e18(1)}

	sol := solve(t, snap, []*types.SearcherOrder{low, high, negative})
	require.NotNil(t, sol)
	require.NotNil(t, sol.Searcher)
	assert.Equal(t, high.Hash(), sol.Searcher.Hash())
	assert.Equal(t, 0, sol.SearcherQuantity.Int().Cmp(e18(1)))
	require.NotNil(t, sol.AmmQuantity)
	assert.Equal(t, 0, sol.AmmQuantity.Int().Cmp(e18(1)))
	assert.Equal(t, 0, sol.NetToken0(nil).Sign())

	// 奖励约为 3e18 - 1.001e18
	assert.True(t, sol.SearcherReward.Int().Cmp(new(big.Int).Div(e18(19), big.NewInt(10))) > 0)
	require.NotNil(t, sol.Donation)
	assert.Equal(t, 0, amm.DonationSum(*sol.Donation).Cmp(sol.SearcherReward.Int()))

	// 只有奖励为负的订单
	assert.Nil(t, solve(t, snap, []*types.SearcherOrder{negative}))
}

func TestSearcherTieBreak(t *testing.T) {
	snap := testAMM(t)
	a := &types.SearcherOrder{Pool: testPool, QuantityIn: e18(1), QuantityOut: big.NewInt(1000)}
	b := &types.SearcherOrder{Pool: testPool, QuantityIn: e18(1), QuantityOut: big.NewInt(1000), ValidBlock: 7}
	want := a
	if b.Hash().Less(a.Hash()) {
		want = b
	}
	for _, order := range [][]*types.SearcherOrder{{a, b}, {b, a}} {
		f := pickSearcher(order, snap)
		require.NotNil(t, f)
		assert.Equal(t, want.Hash(), f.id)
		assert.Equal(t, 0, f.quantity.Cmp(new(big.Int).Neg(e18(1))))
	}
}

func TestSearcherShiftsStartPrice(t *testing.T) {
	snap := testAMM(t)
	searcher := &types.SearcherOrder{Pool: testPool, IsBid: true, QuantityIn: e18(10), QuantityOut: e18(4)}
	limit := ratio(101, 100)
	bid := limitOrder(true, types.PartialOrder, e18(10), limit, 1)

	plain := solve(t, snap, nil, bid)
	withSearcher := solve(t, snap, []*types.SearcherOrder{searcher}, bid)
	require.NotNil(t, plain)
	require.NotNil(t, withSearcher)

	a, _ := plain.Outcome(bid.Hash())
	b, _ := withSearcher.Outcome(bid.Hash())
	// searcher 先把价格推高, 留给买单的数量更少
	assert.True(t, b.Filled.Int().Cmp(a.Filled.Int()) < 0)
	assert.Equal(t, 0, withSearcher.NetToken0(orderIndex(bid)).Sign())
}

func TestDebtIntersection(t *testing.T) {
	liq := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	snap, err := amm.NewPoolSnapshot([]amm.LiqRange{amm.NewLiqRange(-60000, 60000, liq)}, types.Q96)
	require.NoError(t, err)
	t0 := new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

	// 价格相等
	q, _, err := IntersectWithDebt(NewDebt(ExactIn, t0, t0), snap.Vector())
	require.NoError(t, err)
	assert.Equal(t, 0, q.Sign())

	for _, m := range []*big.Int{
		new(big.Int).Div(new(big.Int).Mul(t0, big.NewInt(101)), big.NewInt(100)),
		new(big.Int).Div(new(big.Int).Mul(t0, big.NewInt(99)), big.NewInt(100)),
	} {
		d := NewDebt(ExactIn, m, t0)
		pp := snap.Vector()
		q, ammSells, err := IntersectWithDebt(d, pp)
		require.NoError(t, err)
		require.True(t, q.Sign() > 0)
		assert.Equal(t, m.Cmp(t0) > 0, ammSells)

		if ammSells {
			_, err = pp.SellToken0(q)
		} else {
			_, err = pp.BuyToken0(q)
		}
		require.NoError(t, err)
		d = d.PartialFill(q, ammSells)
		assert.InEpsilon(t, d.Price().Float(), pp.Price().Float(), 1e-15)
	}
}

func TestDebtIntersectionAcrossRanges(t *testing.T) {
	snap, err := amm.NewPoolSnapshotAtPrice([]amm.LiqRange{
		amm.NewLiqRange(-60, 60, e18(10)),
		amm.NewLiqRange(600, 6000, e18(10000)),
	}, types.RayFromUnits(1))
	require.NoError(t, err)

	// 隐含价格 1.2, 需要穿过空隙
	d := NewDebt(ExactIn, e18(12), e18(10))
	pp := snap.Vector()
	q, ammSells, err := IntersectWithDebt(d, pp)
	require.NoError(t, err)
	require.True(t, ammSells)
	_, err = pp.SellToken0(q)
	require.NoError(t, err)
	d = d.PartialFill(q, true)
	assert.InEpsilon(t, d.Price().Float(), pp.Price().Float(), 1e-12)
}

func TestConservationProperty(t *testing.T) {
	snap := testAMM(t)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n").(int)
		orders := make([]*types.LimitOrder, 0, n)
		for i := 0; i < n; i++ {
			isBid := rapid.Bool().Draw(t, "bid").(bool)
			kind := types.PartialOrder
			if rapid.Bool().Draw(t, "kof").(bool) {
				kind = types.KillOrFillOrder
			}
			qty := new(big.Int).Mul(big.NewInt(rapid.Int64Range(1, 5000).Draw(t, "qty").(int64)),
				big.NewInt(1e15))
			price := ratio(rapid.Int64Range(950, 1050).Draw(t, "price").(int64), 1000)
			o := limitOrder(isBid, kind, qty, price, uint64(i))
			if isBid && rapid.Bool().Draw(t, "exactIn").(bool) {
				o.ExactIn = true
			}
			orders = append(orders, o)
		}
		var s *amm.PoolSnapshot
		if rapid.Bool().Draw(t, "amm").(bool) {
			s = snap
		}

		book, err := NewOrderBook(testPool, orders, s)
		if err != nil {
			t.Fatalf("book: %v", err)
		}
		sol, err := SolvePool(book, nil)
		if err != nil {
			t.Fatalf("solve: %v", err)
		}
		if sol == nil {
			return
		}
		idx := orderIndex(orders...)
		if net := sol.NetToken0(idx); net.Sign() != 0 {
			t.Fatalf("token0 not conserved: %v", net)
		}
		for _, out := range sol.LimitOrders {
			o := idx[out.ID]
			if o.IsKillOrFill() && out.State == types.PartialFill {
				t.Fatalf("kill-or-fill order partially filled: %v", out)
			}
			if !o.ExactIn && out.Filled.Int().Cmp(o.Quantity) > 0 {
				t.Fatalf("order overfilled: %v", out)
			}
		}
	})
}

func TestEngineSolve(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	other := types.HexToHash("0x1234")
	snap := testAMM(t)
	orders := []*types.LimitOrder{
		limitOrder(true, types.PartialOrder, big.NewInt(5000), types.RayFromUnits(2), 1),
		limitOrder(false, types.PartialOrder, big.NewInt(5000), types.RayFromUnits(1), 2),
	}
	onAMM := limitOrder(true, types.PartialOrder, e18(1), ratio(101, 100), 3)
	onAMM.Pool = other
	orders = append(orders, onAMM)

	pools := map[types.Hash]amm.PoolEntry{other: {Snapshot: snap}}
	e := NewEngine(2, log.TestingLogger())
	sols, gas, err := e.Solve(context.Background(), orders, nil, pools)
	require.NoError(t, err)
	require.Len(t, sols, 2)
	// 按池子 id 排序
	assert.Equal(t, other, sols[0].Pool)
	assert.Equal(t, testPool, sols[1].Pool)
	assert.EqualValues(t, gasBase+2*gasPerPool+3*gasPerOrder, gas.Total)
	require.Len(t, gas.PerPool, 2)
	assert.EqualValues(t, 1, e.SolveTimer().Count())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = e.Solve(ctx, orders, nil, pools)
	assert.Error(t, err)
}
