package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"strom_bft/libs/utils"
)

var (
	// RayScale 价格定点数的分母 10^27
	RayScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

	// Q96 AMM 平方根价格的定点数分母 2^96
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Ray 表示 token1/token0 的价格, 分母固定为 10^27
// 零值表示价格 0, Ray 是不可变的
type Ray struct {
	v *big.Int
}

func NewRay(v *big.Int) Ray {
	return Ray{v: utils.Clone(v)}
}

// RayFromUnits 返回整数价格 n
func RayFromUnits(n int64) Ray {
	return Ray{v: new(big.Int).Mul(big.NewInt(n), RayScale)}
}

// RayFromRatio 返回 num/den, 按方向取整
func RayFromRatio(num, den *big.Int, roundUp bool) Ray {
	if den.Sign() == 0 {
		return MaxRay()
	}
	if roundUp {
		return Ray{v: utils.MulDivRoundingUp(num, RayScale, den)}
	}
	return Ray{v: utils.MulDiv(num, RayScale, den)}
}

func MaxRay() Ray { return Ray{v: new(big.Int).Set(maxUint256)} }

func (r Ray) int() *big.Int {
	if r.v == nil {
		return utils.Zero
	}
	return r.v
}

func (r Ray) Int() *big.Int { return new(big.Int).Set(r.int()) }

func (r Ray) Cmp(other Ray) int { return r.int().Cmp(other.int()) }

func (r Ray) IsZero() bool { return r.int().Sign() == 0 }

func (r Ray) Add(other Ray) Ray { return Ray{v: new(big.Int).Add(r.int(), other.int())} }

func (r Ray) Sub(other Ray) Ray { return Ray{v: new(big.Int).Sub(r.int(), other.int())} }

// MulQuantity 把 token0 数量 q 换算成 token1 数量
func (r Ray) MulQuantity(q *big.Int, roundUp bool) *big.Int {
	if roundUp {
		return utils.MulDivRoundingUp(q, r.int(), RayScale)
	}
	return utils.MulDiv(q, r.int(), RayScale)
}

// InverseQuantity 把 token1 数量换算成 token0 数量
func (r Ray) InverseQuantity(t1 *big.Int, roundUp bool) *big.Int {
	if r.IsZero() {
		return new(big.Int).Set(maxUint256)
	}
	if roundUp {
		return utils.MulDivRoundingUp(t1, RayScale, r.int())
	}
	return utils.MulDiv(t1, RayScale, r.int())
}

// RayFromSqrtPriceX96 price = s^2 / 2^192
func RayFromSqrtPriceX96(s *big.Int, roundUp bool) Ray {
	sq := new(big.Int).Mul(s, s)
	if roundUp {
		return Ray{v: utils.MulDivRoundingUp(sq, RayScale, q192)}
	}
	return Ray{v: utils.MulDiv(sq, RayScale, q192)}
}

// SqrtPriceX96 是 RayFromSqrtPriceX96 的逆运算
func (r Ray) SqrtPriceX96(roundUp bool) *big.Int {
	if roundUp {
		return utils.SqrtRoundingUp(utils.MulDivRoundingUp(r.int(), q192, RayScale))
	}
	return new(big.Int).Sqrt(utils.MulDiv(r.int(), q192, RayScale))
}

func MinRay(a, b Ray) Ray {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func MaxOfRay(a, b Ray) Ray {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func (r Ray) String() string { return r.int().String() }

// Float 只用于日志和 RPC 展示
func (r Ray) Float() float64 {
	f, _ := new(big.Rat).SetFrac(r.int(), RayScale).Float64()
	return f
}

func (r Ray) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.int().String())
}

func (r *Ray) UnmarshalJSON(bz []byte) error {
	v, err := unmarshalBigString(bz)
	if err != nil {
		return err
	}
	r.v = v
	return nil
}

//-----------------------------------------------------------------------------

// Amount 是带符号的代币数量, 用于共识消息中的 PoolSolution
type Amount struct {
	v *big.Int
}

func NewAmount(v *big.Int) Amount { return Amount{v: utils.Clone(v)} }

func NewAmountFromInt64(n int64) Amount { return Amount{v: big.NewInt(n)} }

func (a Amount) Int() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

func (a Amount) Cmp(other Amount) int { return a.Int().Cmp(other.Int()) }

func (a Amount) String() string { return a.Int().String() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Int().String())
}

func (a *Amount) UnmarshalJSON(bz []byte) error {
	v, err := unmarshalBigString(bz)
	if err != nil {
		return err
	}
	a.v = v
	return nil
}

func unmarshalBigString(bz []byte) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(bz, &s); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
