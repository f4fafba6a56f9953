package matching

import (
	"errors"
	"math/big"

	"strom_bft/amm"
	"strom_bft/libs/utils"
	"strom_bft/types"
)

var errOverfill = errors.New("fill exceeds available quantity")

// OrderContainer 撮合中的交易对手: 完整订单、部分成交的订单片段、AMM 或者债务与 AMM 的组合
// Quantity 返回在 target 价格下还能交换的 token0 数量,
// Fill 以 price 成交 q 个 token0 并返回对应的 token1
type OrderContainer interface {
	IsBid() bool
	IsAMM() bool
	Price() types.Ray
	Quantity(target types.Ray) *big.Int
	Fill(q *big.Int, price types.Ray) (*big.Int, error)
}

var (
	_ OrderContainer = (*orderState)(nil)
	_ OrderContainer = (*ammContainer)(nil)
	_ OrderContainer = (*compositeContainer)(nil)
)

//-----------------------------------------------------------------------------

// orderState 订单在一次撮合中的可变状态
// 寻价阶段的 ExactIn 买单(budget)记录剩余的 token1, 数量由对手价决定;
// 其他订单以及按清算价格换算过的 ExactIn 买单记录剩余的 token0
type orderState struct {
	order     *BookOrder
	budget    bool
	total     *big.Int
	remaining *big.Int
	filled    *big.Int
}

// newOrderState fixed 不为 nil 时 ExactIn 买单按 fixed 个 token0 参与撮合
func newOrderState(o *BookOrder, fixed *big.Int) *orderState {
	s := &orderState{order: o, filled: new(big.Int)}
	switch {
	case fixed != nil:
		s.total = new(big.Int).Set(fixed)
	case o.ExactIn:
		s.budget = true
		s.total = new(big.Int).Set(o.Quantity)
	default:
		s.total = new(big.Int).Set(o.Quantity)
	}
	s.remaining = new(big.Int).Set(s.total)
	return s
}

func (s *orderState) IsBid() bool { return s.order.IsBid }

func (s *orderState) IsAMM() bool { return false }

func (s *orderState) Price() types.Ray { return s.order.Price() }

// IsFragment 已经部分成交
func (s *orderState) IsFragment() bool { return s.filled.Sign() > 0 }

func (s *orderState) exactIn() bool { return s.order.ExactIn }

// debt 剩余 token1 在 price 下对应的债务
func (s *orderState) debt(price types.Ray) *Debt {
	return NewDebtAtPrice(ExactIn, s.remaining, price)
}

// exhausted 剩余的 token1 按自身限价已经换不到 token0
func (s *orderState) exhausted() bool {
	if s.budget {
		return s.debt(s.Price()).Token0().Sign() == 0
	}
	return s.remaining.Sign() == 0
}

func (s *orderState) Quantity(target types.Ray) *big.Int {
	limit := s.Price()
	if s.IsBid() && target.Cmp(limit) > 0 {
		return new(big.Int)
	}
	if !s.IsBid() && target.Cmp(limit) < 0 {
		return new(big.Int)
	}
	if s.budget {
		return s.debt(target).Token0()
	}
	return new(big.Int).Set(s.remaining)
}

// Fill 以 price 成交 q 个 token0, 买方支付的 token1 向上取整, 卖方收到的向下取整
func (s *orderState) Fill(q *big.Int, price types.Ray) (*big.Int, error) {
	token1 := price.MulQuantity(q, s.IsBid())
	if s.budget {
		s.pay(q, token1)
		return token1, nil
	}
	if q.Cmp(s.remaining) > 0 {
		return nil, errOverfill
	}
	s.remaining = new(big.Int).Sub(s.remaining, q)
	s.filled = new(big.Int).Add(s.filled, q)
	return token1, nil
}

// pay ExactIn 买单用 token1 换到 q 个 token0, AMM 取整带来的差额从剩余中扣到 0 为止
func (s *orderState) pay(q, token1 *big.Int) {
	s.remaining = new(big.Int).Sub(s.remaining, token1)
	if s.remaining.Sign() < 0 {
		s.remaining.SetInt64(0)
	}
	s.filled = new(big.Int).Add(s.filled, q)
}

// settle ExactIn 买单的 token1 全部用完
func (s *orderState) settle() {
	s.remaining = new(big.Int)
}

// complete 是否满足订单要求的全部数量
func (s *orderState) complete() bool {
	if s.budget {
		return s.filled.Sign() > 0 && s.exhausted()
	}
	return s.filled.Sign() > 0 && s.filled.Cmp(s.total) == 0
}

// satisfied 已成交的数量是否满足订单类型的约束
func (s *orderState) satisfied() bool {
	if s.filled.Sign() == 0 {
		return !s.order.IsKillOrFill()
	}
	if s.order.IsKillOrFill() {
		return s.complete()
	}
	if s.exactIn() {
		return true
	}
	return s.filled.Cmp(s.order.MinQuantity) >= 0
}

//-----------------------------------------------------------------------------

// ammContainer AMM 作为买方(价格下降)或卖方(价格上升)
type ammContainer struct {
	pp  *amm.PoolPrice
	bid bool
}

func (c *ammContainer) IsBid() bool { return c.bid }

func (c *ammContainer) IsAMM() bool { return true }

func (c *ammContainer) Price() types.Ray { return c.pp.Price() }

// targetSqrt 卖方向上移动不越过 target(向下取整), 买方向下移动不越过 target(向上取整)
func (c *ammContainer) targetSqrt(target types.Ray) *big.Int {
	return target.SqrtPriceX96(c.bid)
}

func (c *ammContainer) Quantity(target types.Ray) *big.Int {
	ts := c.targetSqrt(target)
	if c.bid && c.pp.SqrtPrice().Cmp(ts) <= 0 {
		return new(big.Int)
	}
	if !c.bid && c.pp.SqrtPrice().Cmp(ts) >= 0 {
		return new(big.Int)
	}
	return c.pp.Token0To(ts)
}

// Fill 沿曲线成交, price 不参与计算, 返回 AMM 实际收付的 token1
func (c *ammContainer) Fill(q *big.Int, _ types.Ray) (*big.Int, error) {
	if c.bid {
		return c.pp.BuyToken0(q)
	}
	return c.pp.SellToken0(q)
}

// MoveTo 不交换代币直接移动到 target
func (c *ammContainer) MoveTo(target types.Ray) {
	c.pp.MoveTo(c.targetSqrt(target))
}

//-----------------------------------------------------------------------------

// compositeContainer 债务与 AMM 的组合, 成交数量为二者价格相交处
// 用于 ExactIn 买单直接从 AMM 买入: 债务随 AMM 卖出的 token0 增加, 隐含价格下降
type compositeContainer struct {
	debt *Debt
	amm  *ammContainer
}

func newCompositeContainer(d *Debt, pp *amm.PoolPrice) *compositeContainer {
	return &compositeContainer{debt: d, amm: &ammContainer{pp: pp}}
}

func (c *compositeContainer) IsBid() bool { return false }

func (c *compositeContainer) IsAMM() bool { return true }

func (c *compositeContainer) Price() types.Ray { return c.amm.Price() }

func (c *compositeContainer) Debt() *Debt { return c.debt }

// Intersection 债务与 AMM 价格相交所需的 token0
func (c *compositeContainer) Intersection() (*big.Int, error) {
	q, ammSells, err := IntersectWithDebt(c.debt, c.amm.pp)
	if err != nil {
		return nil, err
	}
	if !ammSells {
		return new(big.Int), nil
	}
	return q, nil
}

// Quantity 不超过 target 时 AMM 能卖出的数量与相交数量中较小者
func (c *compositeContainer) Quantity(target types.Ray) *big.Int {
	qa := c.amm.Quantity(target)
	qi, err := c.Intersection()
	if err != nil {
		return qa
	}
	return utils.Min(qa, qi)
}

func (c *compositeContainer) Fill(q *big.Int, price types.Ray) (*big.Int, error) {
	token1, err := c.amm.Fill(q, price)
	if err != nil {
		return nil, err
	}
	c.debt = c.debt.PartialFill(q, true)
	return token1, nil
}
