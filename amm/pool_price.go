package amm

import (
	"math/big"

	"strom_bft/libs/utils"
	"strom_bft/types"
)

// PoolPrice 是撮合过程中 AMM 的当前价格, 在快照的流动性曲线上移动
// 快照本身不会被修改
type PoolPrice struct {
	snap *PoolSnapshot
	sqrt *big.Int
}

func (p *PoolPrice) Clone() *PoolPrice {
	return &PoolPrice{snap: p.snap, sqrt: new(big.Int).Set(p.sqrt)}
}

func (p *PoolPrice) Snapshot() *PoolSnapshot { return p.snap }

func (p *PoolPrice) SqrtPrice() *big.Int { return new(big.Int).Set(p.sqrt) }

// Price 向下取整
func (p *PoolPrice) Price() types.Ray { return types.RayFromSqrtPriceX96(p.sqrt, false) }

// MoveTo 不交换任何代币直接移动价格, 只在两者之间没有可交换的 token0 时使用
func (p *PoolPrice) MoveTo(target *big.Int) {
	p.sqrt = clampSqrt(target)
}

// Token0To 价格移动到 target 时 AMM 交换的 token0 数量
// 向上移动是 AMM 卖出 token0(向下取整), 向下移动是 AMM 买入 token0(向上取整)
func (p *PoolPrice) Token0To(target *big.Int) *big.Int {
	target = clampSqrt(target)
	total := new(big.Int)
	cur := p.sqrt
	switch p.sqrt.Cmp(target) {
	case -1:
		for cur.Cmp(target) < 0 {
			liq, next, ok := p.snap.SegmentUp(cur)
			if !ok {
				break
			}
			end := utils.Min(next, target)
			if liq.Sign() > 0 {
				total.Add(total, Amount0Delta(cur, end, liq, false))
			}
			cur = end
		}
	case 1:
		for cur.Cmp(target) > 0 {
			liq, next, ok := p.snap.SegmentDown(cur)
			if !ok {
				break
			}
			end := utils.Max(next, target)
			if liq.Sign() > 0 {
				total.Add(total, Amount0Delta(end, cur, liq, true))
			}
			cur = end
		}
	}
	return total
}

// SellToken0 AMM 卖出 q 个 token0, 价格上升, 返回需要支付的 token1(向上取整)
func (p *PoolPrice) SellToken0(q *big.Int) (*big.Int, error) {
	cur := new(big.Int).Set(p.sqrt)
	remaining := new(big.Int).Set(q)
	token1 := new(big.Int)
	for remaining.Sign() > 0 {
		liq, next, ok := p.snap.SegmentUp(cur)
		if !ok {
			return nil, ErrInsufficientLiquidity
		}
		if liq.Sign() == 0 {
			cur = next
			continue
		}
		maxOut := Amount0Delta(cur, next, liq, false)
		if remaining.Cmp(maxOut) < 0 {
			end, err := NextSqrtFromAmount0(cur, liq, remaining, false)
			if err != nil {
				return nil, err
			}
			end = utils.Min(end, next)
			token1.Add(token1, Amount1Delta(cur, end, liq, true))
			cur = end
			remaining.SetInt64(0)
			break
		}
		token1.Add(token1, Amount1Delta(cur, next, liq, true))
		remaining.Sub(remaining, maxOut)
		cur = next
	}
	p.sqrt = cur
	return token1, nil
}

// BuyToken0 AMM 买入 q 个 token0, 价格下降, 返回付出的 token1(向下取整)
func (p *PoolPrice) BuyToken0(q *big.Int) (*big.Int, error) {
	cur := new(big.Int).Set(p.sqrt)
	remaining := new(big.Int).Set(q)
	token1 := new(big.Int)
	for remaining.Sign() > 0 {
		liq, next, ok := p.snap.SegmentDown(cur)
		if !ok {
			return nil, ErrInsufficientLiquidity
		}
		if liq.Sign() == 0 {
			cur = next
			continue
		}
		maxIn := Amount0Delta(next, cur, liq, true)
		if remaining.Cmp(maxIn) < 0 {
			end, err := NextSqrtFromAmount0(cur, liq, remaining, true)
			if err != nil {
				return nil, err
			}
			end = utils.Max(end, next)
			token1.Add(token1, Amount1Delta(end, cur, liq, false))
			cur = end
			remaining.SetInt64(0)
			break
		}
		token1.Add(token1, Amount1Delta(next, cur, liq, false))
		remaining.Sub(remaining, maxIn)
		cur = next
	}
	p.sqrt = cur
	return token1, nil
}

func clampSqrt(s *big.Int) *big.Int {
	if s.Cmp(MinSqrtRatio) < 0 {
		return new(big.Int).Set(MinSqrtRatio)
	}
	if s.Cmp(MaxSqrtRatio) > 0 {
		return new(big.Int).Set(MaxSqrtRatio)
	}
	return new(big.Int).Set(s)
}
