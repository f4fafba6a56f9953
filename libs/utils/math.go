package utils

import (
	"math/big"
)

// 以下函数的参数都要求非负, 返回值总是新分配的 big.Int, 不修改参数

var (
	Zero = big.NewInt(0)
	One  = big.NewInt(1)
)

// MulDiv 返回 floor(a*b/d)
func MulDiv(a, b, d *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, d)
}

// MulDivRoundingUp 返回 ceil(a*b/d)
func MulDivRoundingUp(a, b, d *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return DivRoundingUp(p, d)
}

// DivRoundingUp 返回 ceil(a/d)
func DivRoundingUp(a, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, One)
	}
	return q
}

// SqrtRoundingUp 返回 ceil(sqrt(x))
func SqrtRoundingUp(x *big.Int) *big.Int {
	s := new(big.Int).Sqrt(x)
	if new(big.Int).Mul(s, s).Cmp(x) != 0 {
		s.Add(s, One)
	}
	return s
}

func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Clone nil 返回 0
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
