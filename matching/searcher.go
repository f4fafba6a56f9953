package matching

import (
	"math/big"

	"strom_bft/amm"
	"strom_bft/types"
)

// searcherFill searcher 订单与 AMM 交换的结果
type searcherFill struct {
	order  *types.SearcherOrder
	id     types.Hash
	reward *big.Int
	// quantity searcher 得到的 token0, 卖单为负
	quantity *big.Int
	pp       *amm.PoolPrice
}

// applySearcher 在 pp 上执行 searcher 订单, 返回奖励(token1)
// 买单的奖励是出价超过 AMM 要价的部分, 卖单的奖励是 AMM 付出超过最低要求的部分
func applySearcher(o *types.SearcherOrder, pp *amm.PoolPrice) (*searcherFill, error) {
	if err := o.ValidateBasic(); err != nil {
		return nil, err
	}
	f := &searcherFill{order: o, id: o.Hash(), pp: pp}
	if o.IsBid {
		required, err := pp.SellToken0(o.QuantityOut)
		if err != nil {
			return nil, err
		}
		f.reward = new(big.Int).Sub(o.QuantityIn, required)
		f.quantity = new(big.Int).Set(o.QuantityOut)
	} else {
		out, err := pp.BuyToken0(o.QuantityIn)
		if err != nil {
			return nil, err
		}
		f.reward = new(big.Int).Sub(out, o.QuantityOut)
		f.quantity = new(big.Int).Neg(o.QuantityIn)
	}
	return f, nil
}

// pickSearcher 从 AMM 的起始价格分别模拟每个订单, 选出奖励最高的
// 奖励为负或者流动性不足的订单被忽略, 奖励相同时选哈希最小的
func pickSearcher(orders []*types.SearcherOrder, snap *amm.PoolSnapshot) *searcherFill {
	var best *searcherFill
	for _, o := range orders {
		f, err := applySearcher(o, snap.Vector())
		if err != nil || f.reward.Sign() < 0 {
			continue
		}
		if best == nil {
			best = f
			continue
		}
		switch f.reward.Cmp(best.reward) {
		case 1:
			best = f
		case 0:
			if f.id.Less(best.id) {
				best = f
			}
		}
	}
	return best
}
