package amm

import (
	"fmt"
	"math/big"
	"sort"

	"strom_bft/libs/utils"
	"strom_bft/types"
)

// LiqRange 一段 [LowerTick, UpperTick) 上的集中流动性
type LiqRange struct {
	LowerTick int
	UpperTick int
	Liquidity *big.Int

	sqrtLower *big.Int
	sqrtUpper *big.Int
}

func NewLiqRange(lower, upper int, liquidity *big.Int) LiqRange {
	return LiqRange{LowerTick: lower, UpperTick: upper, Liquidity: liquidity}
}

func (r LiqRange) SqrtLower() *big.Int { return new(big.Int).Set(r.sqrtLower) }

func (r LiqRange) SqrtUpper() *big.Int { return new(big.Int).Set(r.sqrtUpper) }

func (r LiqRange) String() string {
	return fmt.Sprintf("LiqRange{[%d,%d) L:%v}", r.LowerTick, r.UpperTick, r.Liquidity)
}

// PoolSnapshot 某一块高时 AMM 池子的只读快照
// 区间按 tick 升序排列且互不重叠, 区间之间可以有空隙(流动性为 0)
type PoolSnapshot struct {
	ranges      []LiqRange
	sqrtPrice   *big.Int
	currentTick int
}

func NewPoolSnapshot(ranges []LiqRange, sqrtPrice *big.Int) (*PoolSnapshot, error) {
	if sqrtPrice == nil || sqrtPrice.Cmp(MinSqrtRatio) < 0 || sqrtPrice.Cmp(MaxSqrtRatio) > 0 {
		return nil, ErrPriceOutOfRange
	}
	rs := make([]LiqRange, len(ranges))
	copy(rs, ranges)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].LowerTick < rs[j].LowerTick })

	for i := range rs {
		r := &rs[i]
		if r.LowerTick >= r.UpperTick {
			return nil, fmt.Errorf("invalid range [%d, %d)", r.LowerTick, r.UpperTick)
		}
		if r.Liquidity == nil || r.Liquidity.Sign() < 0 {
			return nil, fmt.Errorf("invalid liquidity in range [%d, %d)", r.LowerTick, r.UpperTick)
		}
		if i > 0 && rs[i-1].UpperTick > r.LowerTick {
			return nil, fmt.Errorf("range [%d, %d) overlaps [%d, %d)",
				rs[i-1].LowerTick, rs[i-1].UpperTick, r.LowerTick, r.UpperTick)
		}
		var err error
		if r.sqrtLower, err = SqrtPriceAtTick(r.LowerTick); err != nil {
			return nil, err
		}
		if r.sqrtUpper, err = SqrtPriceAtTick(r.UpperTick); err != nil {
			return nil, err
		}
		r.Liquidity = new(big.Int).Set(r.Liquidity)
	}

	tick, err := TickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return nil, err
	}
	return &PoolSnapshot{
		ranges:      rs,
		sqrtPrice:   new(big.Int).Set(sqrtPrice),
		currentTick: tick,
	}, nil
}

// NewPoolSnapshotAtPrice 以 Ray 价格构造快照
func NewPoolSnapshotAtPrice(ranges []LiqRange, price types.Ray) (*PoolSnapshot, error) {
	return NewPoolSnapshot(ranges, price.SqrtPriceX96(false))
}

func (s *PoolSnapshot) Ranges() []LiqRange {
	rs := make([]LiqRange, len(s.ranges))
	copy(rs, s.ranges)
	return rs
}

func (s *PoolSnapshot) SqrtPrice() *big.Int { return new(big.Int).Set(s.sqrtPrice) }

func (s *PoolSnapshot) Price() types.Ray { return types.RayFromSqrtPriceX96(s.sqrtPrice, false) }

func (s *PoolSnapshot) CurrentTick() int { return s.currentTick }

// IsEmpty 没有任何流动性
func (s *PoolSnapshot) IsEmpty() bool {
	for _, r := range s.ranges {
		if r.Liquidity.Sign() > 0 {
			return false
		}
	}
	return true
}

// Vector 返回从快照价格开始的可变价格向量
func (s *PoolSnapshot) Vector() *PoolPrice {
	return &PoolPrice{snap: s, sqrt: new(big.Int).Set(s.sqrtPrice)}
}

// SegmentUp 从 sqrt 向上移动时的流动性以及下一个边界
// ok 为 false 表示上方已经没有区间
func (s *PoolSnapshot) SegmentUp(sqrt *big.Int) (liq *big.Int, next *big.Int, ok bool) {
	idx := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].sqrtUpper.Cmp(sqrt) > 0
	})
	if idx == len(s.ranges) {
		return utils.Zero, nil, false
	}
	r := s.ranges[idx]
	if sqrt.Cmp(r.sqrtLower) < 0 {
		return utils.Zero, r.sqrtLower, true
	}
	return r.Liquidity, r.sqrtUpper, true
}

// SegmentDown 从 sqrt 向下移动时的流动性以及下一个边界
func (s *PoolSnapshot) SegmentDown(sqrt *big.Int) (liq *big.Int, next *big.Int, ok bool) {
	idx := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].sqrtLower.Cmp(sqrt) >= 0
	}) - 1
	if idx < 0 {
		return utils.Zero, nil, false
	}
	r := s.ranges[idx]
	if sqrt.Cmp(r.sqrtUpper) > 0 {
		return utils.Zero, r.sqrtUpper, true
	}
	return r.Liquidity, r.sqrtLower, true
}

// rangeAt 返回包含 sqrt 的区间下标, 不存在时返回 -1
func (s *PoolSnapshot) rangeAt(sqrt *big.Int) int {
	for i, r := range s.ranges {
		if sqrt.Cmp(r.sqrtLower) >= 0 && sqrt.Cmp(r.sqrtUpper) < 0 {
			return i
		}
	}
	return -1
}
