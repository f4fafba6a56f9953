package amm

import (
	"math/big"

	"strom_bft/libs/utils"
	"strom_bft/types"
)

// Donate 把 reward(token1)分配给净交换经过的流动性区间
//
// 从交换后的价格向外逐个区间分配, 每个区间按其经过部分的 token1 交易量占比获得份额,
// 取整剩下的部分以及没有经过任何区间时的全部奖励都捐给当前 tick 所在区间
func Donate(snap *PoolSnapshot, from, to *big.Int, reward *big.Int) types.Donation {
	d := types.Donation{
		CurrentTick: int32(snap.CurrentTick()),
		Total:       types.NewAmount(reward),
	}
	if tick, err := TickAtSqrtPrice(to); err == nil {
		d.CurrentTick = int32(tick)
	}
	if reward.Sign() <= 0 {
		d.Current = types.NewAmountFromInt64(0)
		return d
	}

	lo, hi := from, to
	outward := -1 // 价格上升时从上往下分配
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
		outward = 1
	}

	type crossed struct {
		r      LiqRange
		volume *big.Int
	}
	var cs []crossed
	total := new(big.Int)
	for _, r := range snap.ranges {
		if r.Liquidity.Sign() == 0 {
			continue
		}
		a := utils.Max(lo, r.sqrtLower)
		b := utils.Min(hi, r.sqrtUpper)
		if a.Cmp(b) >= 0 {
			continue
		}
		vol := Amount1Delta(a, b, r.Liquidity, false)
		if vol.Sign() == 0 {
			continue
		}
		cs = append(cs, crossed{r: r, volume: vol})
		total.Add(total, vol)
	}
	if outward < 0 {
		for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
			cs[i], cs[j] = cs[j], cs[i]
		}
	}

	remaining := new(big.Int).Set(reward)
	for _, c := range cs {
		if remaining.Sign() == 0 {
			break
		}
		share := utils.Min(utils.MulDiv(reward, c.volume, total), remaining)
		if share.Sign() == 0 {
			continue
		}
		remaining = new(big.Int).Sub(remaining, share)
		d.Ranges = append(d.Ranges, types.TickDonation{
			LowerTick: int32(c.r.LowerTick),
			UpperTick: int32(c.r.UpperTick),
			Amount:    types.NewAmount(share),
		})
	}
	d.Current = types.NewAmount(remaining)
	return d
}

// DonationSum 所有区间与当前 tick 的捐赠之和
func DonationSum(d types.Donation) *big.Int {
	sum := d.Current.Int()
	for _, r := range d.Ranges {
		sum.Add(sum, r.Amount.Int())
	}
	return sum
}
