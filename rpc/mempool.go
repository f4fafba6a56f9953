package rpc

import (
	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	mempl "strom_bft/mempool"
	"strom_bft/types"
)

type ResultBroadcastOrder struct {
	Hash types.Hash `json:"hash"`
}

type ResultNumOrders struct {
	Count      int   `json:"n_orders"`
	TotalBytes int64 `json:"total_bytes"`
}

// BroadcastOrder 订单经过 CheckOrder 后放入 mempool, 由 mempool reactor 广播
// order 是 types.EncodeOrder 的结果
func BroadcastOrder(ctx *rpctypes.Context, order tmbytes.HexBytes) (*ResultBroadcastOrder, error) {
	o, err := types.DecodeOrder(order)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode order")
	}
	if err := env.Mempool.CheckOrder(o, mempl.OrderInfo{}); err != nil {
		return nil, err
	}
	return &ResultBroadcastOrder{Hash: o.Hash()}, nil
}

func NumOrders(ctx *rpctypes.Context) (*ResultNumOrders, error) {
	return &ResultNumOrders{
		Count:      env.Mempool.Size(),
		TotalBytes: env.Mempool.OrdersBytes(),
	}, nil
}
