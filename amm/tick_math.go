package amm

import (
	"fmt"
	"math/big"
	"sort"

	"strom_bft/types"
)

const (
	MinTick = -887272
	MaxTick = 887272

	floatPrec = 256
)

var (
	// sqrt(1.0001)
	sqrtTickBase *big.Float

	MinSqrtRatio *big.Int
	MaxSqrtRatio *big.Int
)

func init() {
	base, _, err := big.ParseFloat("1.0001", 10, floatPrec, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	sqrtTickBase = new(big.Float).SetPrec(floatPrec).Sqrt(base)

	MinSqrtRatio = mustSqrtPriceAtTick(MinTick)
	MaxSqrtRatio = mustSqrtPriceAtTick(MaxTick)
}

// SqrtPriceAtTick 返回 floor(sqrt(1.0001^tick) * 2^96)
func SqrtPriceAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range [%d, %d]", tick, MinTick, MaxTick)
	}
	abs := tick
	if abs < 0 {
		abs = -abs
	}

	result := new(big.Float).SetPrec(floatPrec).SetInt64(1)
	base := new(big.Float).SetPrec(floatPrec).Set(sqrtTickBase)
	for abs > 0 {
		if abs&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		abs >>= 1
	}
	if tick < 0 {
		one := new(big.Float).SetPrec(floatPrec).SetInt64(1)
		result = one.Quo(one, result)
	}

	scaled := new(big.Float).SetPrec(floatPrec).SetMantExp(result, 96)
	out, _ := scaled.Int(nil)
	return out, nil
}

func mustSqrtPriceAtTick(tick int) *big.Int {
	s, err := SqrtPriceAtTick(tick)
	if err != nil {
		panic(err)
	}
	return s
}

// TickAtSqrtPrice 返回满足 SqrtPriceAtTick(tick) <= s 的最大 tick, 二分查找
func TickAtSqrtPrice(s *big.Int) (int, error) {
	if s.Cmp(MinSqrtRatio) < 0 || s.Cmp(MaxSqrtRatio) > 0 {
		return 0, fmt.Errorf("sqrt price %v out of range", s)
	}
	n := MaxTick - MinTick + 1
	idx := sort.Search(n, func(i int) bool {
		return mustSqrtPriceAtTick(MinTick+i).Cmp(s) > 0
	})
	return MinTick + idx - 1, nil
}

// TickAtPrice 价格所在的 tick
func TickAtPrice(p types.Ray) (int, error) {
	return TickAtSqrtPrice(p.SqrtPriceX96(false))
}
