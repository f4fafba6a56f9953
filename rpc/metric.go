package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics label 为空时返回所有模块的 metric
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	if label == "" {
		return &ResultMetrics{Metrics: env.MetricSet.Snapshot()}, nil
	}
	return &ResultMetrics{Metrics: env.MetricSet.Snapshot(label)}, nil
}
