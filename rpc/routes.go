package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// mempool
	"broadcast_order": rpc.NewRPCFunc(BroadcastOrder, "order"),
	"num_orders":      rpc.NewRPCFunc(NumOrders, ""),

	// consensus
	"leader":      rpc.NewRPCFunc(Leader, ""),
	"validators":  rpc.NewRPCFunc(Validators, ""),
	"round_state": rpc.NewRPCFunc(RoundState, ""),
	"proposal":    rpc.NewRPCFunc(Proposal, "height"),
	"attestation": rpc.NewRPCFunc(Attestation, "height"),

	"metrics": rpc.NewRPCFunc(JSONMetrics, "label"),
}
