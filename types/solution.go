package types

import (
	"fmt"
	"math/big"

	tmjson "github.com/tendermint/tendermint/libs/json"
)

// FillState 限价单的成交结果
type FillState uint8

const (
	Unfilled     = FillState(0)
	Killed       = FillState(1)
	CompleteFill = FillState(2)
	PartialFill  = FillState(3)
)

func (f FillState) String() string {
	switch f {
	case Unfilled:
		return "Unfilled"
	case Killed:
		return "Killed"
	case CompleteFill:
		return "CompleteFill"
	case PartialFill:
		return "PartialFill"
	default:
		return "UnknownFillState"
	}
}

// OrderOutcome Filled 是 token0 的成交量, 只有 CompleteFill 和 PartialFill 非零
type OrderOutcome struct {
	ID     Hash      `json:"id"`
	State  FillState `json:"state"`
	Filled Amount    `json:"filled"`
}

func (o OrderOutcome) IsFilled() bool {
	return o.State == CompleteFill || o.State == PartialFill
}

func (o OrderOutcome) String() string {
	if o.State == PartialFill {
		return fmt.Sprintf("%v:%v(%v)", o.ID, o.State, o.Filled)
	}
	return fmt.Sprintf("%v:%v", o.ID, o.State)
}

// TickDonation 捐赠给某个流动性区间的 token1 数量
type TickDonation struct {
	LowerTick int32  `json:"lower_tick"`
	UpperTick int32  `json:"upper_tick"`
	Amount    Amount `json:"amount"`
}

// Donation searcher 奖励分配给 LP 的明细
type Donation struct {
	Ranges      []TickDonation `json:"ranges"`
	CurrentTick int32          `json:"current_tick"`
	Current     Amount         `json:"current"`
	Total       Amount         `json:"total"`
}

// PoolSolution 一个池子的撮合结果
//
// AmmQuantity 是 AMM 付出的 token0 净量(订单簿和 searcher 两部分之和), 负数表示 AMM 买入
// SearcherQuantity 是 searcher 订单从 AMM 得到的 token0, 卖单为负
type PoolSolution struct {
	Pool                 Hash           `json:"pool"`
	UniformClearingPrice Ray            `json:"uniform_clearing_price"`
	Searcher             *SearcherOrder `json:"searcher,omitempty"`
	SearcherQuantity     Amount         `json:"searcher_quantity"`
	SearcherReward       Amount         `json:"searcher_reward"`
	AmmQuantity          *Amount        `json:"amm_quantity,omitempty"`
	LimitOrders          []OrderOutcome `json:"limit_orders"`
	Donation             *Donation      `json:"donation,omitempty"`
}

// Bytes 用于计算 merkle 根
func (s *PoolSolution) Bytes() []byte {
	bz, err := tmjson.Marshal(s)
	if err != nil {
		panic(err)
	}
	return bz
}

// NetToken0 返回所有参与方 token0 变化之和, 守恒时为 0
// 买单得到 token0 记为正, 卖单付出记为负, AMM 付出记为负
func (s *PoolSolution) NetToken0(orders map[Hash]*LimitOrder) *big.Int {
	sum := new(big.Int)
	for _, out := range s.LimitOrders {
		if !out.IsFilled() {
			continue
		}
		o, ok := orders[out.ID]
		if !ok {
			continue
		}
		if o.IsBid {
			sum.Add(sum, out.Filled.Int())
		} else {
			sum.Sub(sum, out.Filled.Int())
		}
	}
	sum.Add(sum, s.SearcherQuantity.Int())
	if s.AmmQuantity != nil {
		sum.Sub(sum, s.AmmQuantity.Int())
	}
	return sum
}

// Outcome 按订单哈希查找成交结果
func (s *PoolSolution) Outcome(id Hash) (OrderOutcome, bool) {
	for _, out := range s.LimitOrders {
		if out.ID == id {
			return out, true
		}
	}
	return OrderOutcome{}, false
}

func (s *PoolSolution) String() string {
	return fmt.Sprintf("PoolSolution{%v price:%v orders:%d searcher:%v}",
		s.Pool, s.UniformClearingPrice, len(s.LimitOrders), s.Searcher != nil)
}
