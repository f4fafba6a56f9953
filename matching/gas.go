package matching

import (
	"strom_bft/types"
)

const (
	gasBase     = 50000
	gasPerPool  = 30000
	gasPerOrder = 20000
	gasSearcher = 40000
)

type PoolGas struct {
	Pool types.Hash `json:"pool"`
	Gas  uint64     `json:"gas"`
}

// GasDetails 提交 bundle 的 gas 估计
type GasDetails struct {
	Total   uint64    `json:"total"`
	PerPool []PoolGas `json:"per_pool"`
}

// EstimateGas 只计算实际成交的订单
func EstimateGas(solutions []*types.PoolSolution) GasDetails {
	d := GasDetails{Total: gasBase}
	for _, sol := range solutions {
		g := uint64(gasPerPool)
		for _, o := range sol.LimitOrders {
			if o.IsFilled() {
				g += gasPerOrder
			}
		}
		if sol.Searcher != nil {
			g += gasSearcher
		}
		d.PerPool = append(d.PerPool, PoolGas{Pool: sol.Pool, Gas: g})
		d.Total += g
	}
	return d
}
