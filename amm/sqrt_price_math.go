package amm

import (
	"errors"
	"math/big"

	"strom_bft/libs/utils"
	"strom_bft/types"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrPriceOutOfRange       = errors.New("sqrt price out of range")
)

// Amount0Delta 在 [sa, sb] 区间内流动性 liq 对应的 token0 数量
// liq * 2^96 * (sb - sa) / sb / sa
func Amount0Delta(sa, sb, liq *big.Int, roundUp bool) *big.Int {
	if sa.Cmp(sb) > 0 {
		sa, sb = sb, sa
	}
	if sa.Sign() == 0 {
		return new(big.Int)
	}
	num1 := new(big.Int).Lsh(liq, 96)
	num2 := new(big.Int).Sub(sb, sa)
	if roundUp {
		return utils.DivRoundingUp(utils.MulDivRoundingUp(num1, num2, sb), sa)
	}
	t := utils.MulDiv(num1, num2, sb)
	return t.Quo(t, sa)
}

// Amount1Delta 在 [sa, sb] 区间内流动性 liq 对应的 token1 数量
// liq * (sb - sa) / 2^96
func Amount1Delta(sa, sb, liq *big.Int, roundUp bool) *big.Int {
	if sa.Cmp(sb) > 0 {
		sa, sb = sb, sa
	}
	diff := new(big.Int).Sub(sb, sa)
	if roundUp {
		return utils.MulDivRoundingUp(liq, diff, types.Q96)
	}
	return utils.MulDiv(liq, diff, types.Q96)
}

// NextSqrtFromAmount0 加入(add)或取出 amount 的 token0 之后的价格, 向上取整
func NextSqrtFromAmount0(s, liq, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(s), nil
	}
	num1 := new(big.Int).Lsh(liq, 96)
	product := new(big.Int).Mul(amount, s)
	if add {
		denom := new(big.Int).Add(num1, product)
		return utils.MulDivRoundingUp(num1, s, denom), nil
	}
	if num1.Cmp(product) <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	denom := new(big.Int).Sub(num1, product)
	return utils.MulDivRoundingUp(num1, s, denom), nil
}

// NextSqrtFromAmount1 加入(add)或取出 amount 的 token1 之后的价格, 向下取整
func NextSqrtFromAmount1(s, liq, amount *big.Int, add bool) (*big.Int, error) {
	if liq.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	shifted := new(big.Int).Lsh(amount, 96)
	if add {
		q := new(big.Int).Quo(shifted, liq)
		return q.Add(q, s), nil
	}
	q := utils.DivRoundingUp(shifted, liq)
	if s.Cmp(q) <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return new(big.Int).Sub(s, q), nil
}
