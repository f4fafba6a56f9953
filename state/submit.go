package state

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"strom_bft/types"
)

// SubmitResult 提交成功后交易所在的块
type SubmitResult struct {
	Tx    types.Hash
	Block uint64
}

// SubmitAndWait 提交后观察新块, 直到某个块包含该交易
// 链高度超过 TargetBlock+timeoutBlocks 仍未打包返回 ErrSubmissionTimeout.
// 订阅可能丢块, 每 pollInterval 检查一次链高度保证能超时.
// 没有单独的取消机制, 新的一轮开始时由调用方取消 ctx 并丢弃结果
func SubmitAndWait(
	ctx context.Context,
	client ChainClient,
	sub *Submission,
	pollInterval time.Duration,
	timeoutBlocks uint64,
) (SubmitResult, error) {
	if err := sub.ValidateBasic(); err != nil {
		return SubmitResult{}, err
	}

	// 先订阅再提交, 不会错过打包的块
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	blocks := client.WatchBlocks(wctx)

	tx, err := client.Submit(ctx, sub)
	if err != nil {
		return SubmitResult{}, errors.Wrapf(err, "submit %v", sub)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	deadline := sub.TargetBlock + timeoutBlocks
	for {
		select {
		case <-ctx.Done():
			return SubmitResult{Tx: tx}, ctx.Err()
		case block := <-blocks:
			if block.Contains(tx) {
				return SubmitResult{Tx: tx, Block: block.Number}, nil
			}
			if block.Number > deadline {
				return SubmitResult{Tx: tx}, ErrSubmissionTimeout
			}
		case <-ticker.C:
			if client.BlockNumber() > deadline {
				return SubmitResult{Tx: tx}, ErrSubmissionTimeout
			}
		}
	}
}
