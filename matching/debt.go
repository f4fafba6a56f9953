package matching

import (
	"fmt"
	"math/big"

	"strom_bft/amm"
	"strom_bft/libs/utils"
	"strom_bft/types"
)

type DebtKind uint8

const (
	// ExactIn 固定支付 Magnitude 的 token1, 换取的 token0 随价格浮动
	ExactIn = DebtKind(0)
	// ExactOut 固定得到 Magnitude 的 token1, 付出的 token0 随价格浮动
	ExactOut = DebtKind(1)
)

func (k DebtKind) String() string {
	if k == ExactIn {
		return "ExactIn"
	}
	return "ExactOut"
}

// Debt 以浮动价格交换固定数量 token1 的义务
// 隐含价格 = Magnitude / Token0, 每次部分成交后重新计算
type Debt struct {
	kind      DebtKind
	magnitude *big.Int
	token0    *big.Int
}

func NewDebt(kind DebtKind, magnitude, token0 *big.Int) *Debt {
	return &Debt{
		kind:      kind,
		magnitude: utils.Clone(magnitude),
		token0:    utils.Clone(token0),
	}
}

// NewDebtAtPrice 以初始价格 price 构造, token0 按方向取整
func NewDebtAtPrice(kind DebtKind, magnitude *big.Int, price types.Ray) *Debt {
	return NewDebt(kind, magnitude, price.InverseQuantity(magnitude, kind == ExactOut))
}

func (d *Debt) Kind() DebtKind { return d.kind }

func (d *Debt) Magnitude() *big.Int { return new(big.Int).Set(d.magnitude) }

func (d *Debt) Token0() *big.Int { return new(big.Int).Set(d.token0) }

// Price 当前隐含价格, token0 为 0 时价格无穷大
func (d *Debt) Price() types.Ray {
	if d.token0.Sign() == 0 {
		return types.MaxRay()
	}
	return types.RayFromRatio(d.magnitude, d.token0, d.kind == ExactIn)
}

// PartialFill 返回成交 q 个 token0 之后的新债务
// increase 为 true 表示债务持有的 token0 增加(AMM 卖出 token0)
func (d *Debt) PartialFill(q *big.Int, increase bool) *Debt {
	t0 := new(big.Int).Set(d.token0)
	if increase {
		t0.Add(t0, q)
	} else {
		t0.Sub(t0, q)
		if t0.Sign() < 0 {
			t0.SetInt64(0)
		}
	}
	return &Debt{kind: d.kind, magnitude: d.magnitude, token0: t0}
}

func (d *Debt) String() string {
	return fmt.Sprintf("Debt{%v M:%v T0:%v}", d.kind, d.magnitude, d.token0)
}

// cmpAMM 比较 AMM 价格 s^2/2^192 与债务价格 M/T0
func (d *Debt) cmpAMM(s *big.Int) int {
	lhs := new(big.Int).Mul(s, s)
	lhs.Mul(lhs, d.token0)
	rhs := new(big.Int).Lsh(d.magnitude, 192)
	return lhs.Cmp(rhs)
}

// IntersectWithDebt 返回使 AMM 价格与债务隐含价格相等所需交换的 token0 数量
// ammSells 为 true 表示 AMM 卖出 token0(价格上升), 债务的 token0 随之增加
//
// 设 AMM 从 x0 移动到 x (x 为实数平方根价格), 在流动性 L 的区间内 AMM 交换
// |L/x0 - L/x| 个 token0, 要求 x^2 = M / (T0 ± q), 整理得
//
//	(T0 + L/x0) x^2 - L x - M = 0
//
// 以 2^96 定点数表示并同乘 x0 * 2^192:
//
//	A = T0*S0 + L*2^96, B = L*2^96*S0, C = M*2^192*S0
//	S = (B + sqrt(B^2 + 4AC)) / 2A
//
// 解超出区间边界时移动到边界, 更新 T0 后在下一个区间继续求解
func IntersectWithDebt(d *Debt, pp *amm.PoolPrice) (q *big.Int, ammSells bool, err error) {
	cur := pp.SqrtPrice()
	cmp := d.cmpAMM(cur)
	total := new(big.Int)
	if cmp == 0 {
		return total, false, nil
	}
	ammSells = cmp < 0
	snap := pp.Snapshot()
	t0 := d.Token0()
	dd := &Debt{kind: d.kind, magnitude: d.magnitude, token0: t0}

	for i := 0; i < maxSegments; i++ {
		var liq, next *big.Int
		var ok bool
		if ammSells {
			liq, next, ok = snap.SegmentUp(cur)
		} else {
			liq, next, ok = snap.SegmentDown(cur)
		}
		if !ok {
			return total, ammSells, nil
		}

		if liq.Sign() == 0 {
			// 空隙中 token0 不变, 债务价格落在空隙内则结束
			c := dd.cmpAMM(next)
			if (ammSells && c >= 0) || (!ammSells && c <= 0) {
				return total, ammSells, nil
			}
			cur = next
			continue
		}

		s := solveDebtQuadratic(dd.token0, dd.magnitude, liq, cur)
		inside := (ammSells && s.Cmp(next) < 0) || (!ammSells && s.Cmp(next) > 0)
		if inside {
			total.Add(total, amm.Amount0Delta(cur, s, liq, !ammSells))
			return total, ammSells, nil
		}

		step := amm.Amount0Delta(cur, next, liq, !ammSells)
		total.Add(total, step)
		if ammSells {
			dd.token0 = new(big.Int).Add(dd.token0, step)
		} else {
			dd.token0 = new(big.Int).Sub(dd.token0, step)
			if dd.token0.Sign() <= 0 {
				return total, ammSells, nil
			}
		}
		cur = next
	}
	return nil, ammSells, ErrNoSolution
}

// maxSegments 求解时最多跨越的区间数
const maxSegments = 4096

func solveDebtQuadratic(t0, m, liq, s0 *big.Int) *big.Int {
	lq := new(big.Int).Lsh(liq, 96)

	a := new(big.Int).Mul(t0, s0)
	a.Add(a, lq)

	b := new(big.Int).Mul(lq, s0)

	c := new(big.Int).Lsh(m, 192)
	c.Mul(c, s0)

	disc := new(big.Int).Mul(b, b)
	disc.Add(disc, new(big.Int).Lsh(new(big.Int).Mul(a, c), 2))
	disc.Sqrt(disc)

	num := disc.Add(disc, b)
	return num.Quo(num, new(big.Int).Lsh(a, 1))
}
