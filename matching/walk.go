package matching

import (
	"math/big"
	"sort"

	"strom_bft/amm"
	"strom_bft/libs/utils"
	"strom_bft/types"
)

type stepKind uint8

const (
	stepNone = stepKind(iota)
	stepBook
	stepAMM
)

// walkResult 一次价格推进的结果
type walkResult struct {
	states map[types.Hash]*orderState
	// ammNet AMM 卖出的 token0 净量, 买入为负
	ammNet *big.Int
	pp     *amm.PoolPrice

	last      stepKind
	lastBid   *orderState
	lastAsk   *orderState
	askFilled bool // 最后一步用完了卖单
}

// walk 从最优买卖价开始逐步撮合, 每一步选择最便宜的卖方(订单或 AMM)与最贵的买方(订单或 AMM)成交
// 被 killed 标记的订单不参与. pp 为 nil 表示没有 AMM.
// fixed 为 nil 时 ExactIn 买单以 token1 预算按对手价成交, 否则按 fixed 中的 token0 数量成交
func walk(book *OrderBook, pp *amm.PoolPrice, killed map[types.Hash]bool,
	fixed map[types.Hash]*big.Int) (*walkResult, error) {
	res := &walkResult{
		states: make(map[types.Hash]*orderState, book.Size()),
		ammNet: new(big.Int),
		pp:     pp,
	}
	bids := activeStates(book.Bids, killed, fixed, res.states)
	asks := activeStates(book.Asks, killed, fixed, res.states)

	maxSteps := 10 * (book.Size() + 10)
	if book.AMM != nil {
		maxSteps += 10 * len(book.AMM.Ranges())
	}

	bi, ai := 0, 0
	for step := 0; ; step++ {
		if step > maxSteps {
			return nil, ErrNoSolution
		}
		for bi < len(bids) && bids[bi].exhausted() {
			bi++
		}
		for ai < len(asks) && asks[ai].exhausted() {
			ai++
		}
		var bid, ask *orderState
		if bi < len(bids) {
			bid = bids[bi]
		}
		if ai < len(asks) {
			ask = asks[ai]
		}

		if pp != nil {
			s := pp.SqrtPrice()
			if bid != nil && s.Cmp(sqrtDown(bid)) < 0 && (ask == nil || s.Cmp(sqrtDown(ask)) < 0) {
				if err := res.ammSells(bid, ask); err != nil {
					return nil, err
				}
				continue
			}
			if ask != nil && s.Cmp(sqrtUp(ask)) > 0 && (bid == nil || s.Cmp(sqrtUp(bid)) > 0) {
				if err := res.ammBuys(bid, ask); err != nil {
					return nil, err
				}
				continue
			}
		}

		if bid == nil || ask == nil || bid.Price().Cmp(ask.Price()) < 0 {
			break
		}
		// 订单之间按卖单限价成交
		q, err := res.exchange(bid, ask, ask.Price())
		if err != nil {
			return nil, err
		}
		if q.Sign() == 0 {
			// 剩余的 token1 不够买一个单位
			bid.settle()
			continue
		}
		res.lastBid, res.lastAsk = bid, ask
		res.askFilled = ask.exhausted()
	}
	return res, nil
}

func activeStates(orders []*BookOrder, killed map[types.Hash]bool, fixed map[types.Hash]*big.Int,
	all map[types.Hash]*orderState) []*orderState {
	out := make([]*orderState, 0, len(orders))
	for _, o := range orders {
		var q *big.Int
		if o.ExactIn && fixed != nil {
			q = fixed[o.ID]
			if q == nil {
				q = new(big.Int)
			}
		}
		st := newOrderState(o, q)
		all[o.ID] = st
		if killed[o.ID] {
			continue
		}
		out = append(out, st)
	}
	return out
}

func sqrtDown(s *orderState) *big.Int { return s.Price().SqrtPriceX96(false) }

func sqrtUp(s *orderState) *big.Int { return s.Price().SqrtPriceX96(true) }

// exchange 以 price 成交 bid 与 ask 在该价格下都能交换的 token0
func (r *walkResult) exchange(bid, ask OrderContainer, price types.Ray) (*big.Int, error) {
	q := utils.Min(bid.Quantity(price), ask.Quantity(price))
	if q.Sign() == 0 {
		return q, nil
	}
	if _, err := ask.Fill(q, price); err != nil {
		return nil, err
	}
	if _, err := bid.Fill(q, price); err != nil {
		return nil, err
	}
	r.last = stepBook
	switch {
	case ask.IsAMM():
		r.ammNet.Add(r.ammNet, q)
		r.last = stepAMM
	case bid.IsAMM():
		r.ammNet.Sub(r.ammNet, q)
		r.last = stepAMM
	}
	return q, nil
}

// ammSells AMM 作为卖方成交给 bid, 价格不超过 bid 与 ask 中较低的限价
func (r *walkResult) ammSells(bid, ask *orderState) error {
	target := bid.Price()
	if ask != nil {
		target = types.MinRay(target, ask.Price())
	}
	side := &ammContainer{pp: r.pp}
	if side.Quantity(target).Sign() == 0 {
		side.MoveTo(target)
		r.last = stepAMM
		return nil
	}
	r.lastBid = bid
	if !bid.budget {
		_, err := r.exchange(bid, side, target)
		return err
	}

	// ExactIn 买单沿曲线买入, 与 AMM 价格相交时按 AMM 的价格用完全部 token1
	cc := newCompositeContainer(NewDebt(ExactIn, bid.remaining, new(big.Int)), r.pp)
	qi, err := cc.Intersection()
	if err != nil {
		return err
	}
	q := cc.Quantity(target)
	if q.Sign() > 0 {
		token1, err := cc.Fill(q, target)
		if err != nil {
			return err
		}
		bid.pay(q, token1)
		r.ammNet.Add(r.ammNet, q)
	}
	if qi.Cmp(q) <= 0 {
		bid.settle()
	}
	r.last = stepAMM
	return nil
}

// ammBuys AMM 作为买方成交给 ask, 价格不低于 ask 与 bid 中较高的限价
func (r *walkResult) ammBuys(bid, ask *orderState) error {
	target := ask.Price()
	if bid != nil {
		target = types.MaxOfRay(target, bid.Price())
	}
	side := &ammContainer{pp: r.pp, bid: true}
	if side.Quantity(target).Sign() == 0 {
		side.MoveTo(target)
		r.last = stepAMM
		return nil
	}
	r.lastAsk = ask
	_, err := r.exchange(side, ask, target)
	return err
}

// clearingPrice 成交价格: AMM 是边际对手方时取 AMM 的最终价格,
// 否则最后一个卖单被用完或者最后一个买单是 ExactIn 时取卖单限价, 其余情况取最后一个买单的限价.
// 结果被限制在所有已成交订单的限价之间
func (r *walkResult) clearingPrice() types.Ray {
	var price types.Ray
	switch r.last {
	case stepAMM:
		price = r.pp.Price()
	case stepBook:
		if r.askFilled || r.lastBid.exactIn() {
			price = r.lastAsk.Price()
		} else {
			price = r.lastBid.Price()
		}
	default:
		if r.pp != nil {
			return r.pp.Price()
		}
		return types.Ray{}
	}

	var lo, hi *types.Ray
	for _, st := range r.states {
		if !st.IsFragment() {
			continue
		}
		p := st.Price()
		if st.IsBid() {
			if hi == nil || p.Cmp(*hi) < 0 {
				hi = &p
			}
		} else if lo == nil || p.Cmp(*lo) > 0 {
			lo = &p
		}
	}
	if lo != nil && (hi == nil || lo.Cmp(*hi) <= 0) && price.Cmp(*lo) < 0 {
		price = *lo
	}
	if hi != nil && (lo == nil || lo.Cmp(*hi) <= 0) && price.Cmp(*hi) > 0 {
		price = *hi
	}
	return price
}

// outcomes 按订单哈希排序
func (r *walkResult) outcomes(killed map[types.Hash]bool) []types.OrderOutcome {
	out := make([]types.OrderOutcome, 0, len(r.states))
	for id, st := range r.states {
		o := types.OrderOutcome{ID: id, State: types.Unfilled, Filled: types.NewAmountFromInt64(0)}
		switch {
		case killed[id]:
			o.State = types.Killed
		case st.filled.Sign() == 0:
		case st.complete():
			o.State = types.CompleteFill
			o.Filled = types.NewAmount(st.filled)
		default:
			o.State = types.PartialFill
			o.Filled = types.NewAmount(st.filled)
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// unsatisfied 返回不满足自身约束的订单: 没有全部成交的 KillOrFill 订单, 成交量低于最小值的订单
// filled 表示其中是否有已经参与成交的订单, 需要重新撮合
func (r *walkResult) unsatisfied(killed map[types.Hash]bool) (ids []types.Hash, filled bool) {
	for id, st := range r.states {
		if killed[id] || st.satisfied() {
			continue
		}
		ids = append(ids, id)
		if st.IsFragment() {
			filled = true
		}
	}
	return ids, filled
}

// exactInFilled 是否有 ExactIn 买单按预算成交
func (r *walkResult) exactInFilled() bool {
	for _, st := range r.states {
		if st.budget && st.IsFragment() {
			return true
		}
	}
	return false
}

func (r *walkResult) hasFills() bool {
	for _, st := range r.states {
		if st.IsFragment() {
			return true
		}
	}
	return false
}
