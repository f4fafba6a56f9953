package consensus

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/amm"
	cfg "strom_bft/config"
	mempl "strom_bft/mempool"
	"strom_bft/state"
	"strom_bft/store"
	"strom_bft/types"
)

func getTestLogWithDebug() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

// bufferLogger 把日志写到 buf 中, 不过滤级别
func bufferLogger(buf *bytes.Buffer) log.Logger {
	return log.NewTMLogger(log.NewSyncWriter(buf))
}

// minedChain 提交后立即出块, 测试中不需要单独的出块时钟
type minedChain struct {
	*state.DevChain
}

func newMinedChain(number uint64) minedChain {
	c := state.NewDevChain(number, state.AsBlockProducer())
	c.SetLogger(log.TestingLogger())
	return minedChain{c}
}

func (c minedChain) Submit(ctx context.Context, sub *state.Submission) (types.Hash, error) {
	tx, err := c.DevChain.Submit(ctx, sub)
	if err == nil {
		c.ProduceBlock()
	}
	return tx, err
}

type testNode struct {
	cs    *ConsensusState
	pv    types.PrivValidator
	id    p2p.ID
	mem   *mempl.ListMempool
	store *store.KVStore
}

func newTestNode(t *testing.T, vals *types.ValidatorSet, pv types.PrivValidator,
	chain state.ChainClient, logger log.Logger) *testNode {
	mem := mempl.NewListMempool(tmcfg.TestMempoolConfig(), 0)
	kv := store.NewMemStore()
	options := []ConsensusOption{SetStore(kv)}
	if pv != nil {
		options = append(options, SetPrivValidator(pv))
	}
	cs := NewConsensusState(cfg.TestStromConfig(), vals.Copy(), mem,
		amm.NewStaticPoolProvider(nil), chain, options...)
	cs.SetLogger(logger)

	node := &testNode{cs: cs, pv: pv, mem: mem, store: kv}
	if pv != nil {
		id, err := types.PeerIDOf(pv)
		require.NoError(t, err)
		node.id = id
	}
	return node
}

// leaderIndex 返回 height 的 leader 在 privs 中的下标
func leaderIndex(t *testing.T, vals *types.ValidatorSet, privs []types.PrivValidator, height uint64) int {
	leader := vals.Copy().ChooseProposer(height)
	for i, pv := range privs {
		id, err := types.PeerIDOf(pv)
		require.NoError(t, err)
		if id == leader {
			return i
		}
	}
	t.Fatalf("leader %v not found", leader)
	return -1
}

func signedPreProposal(t *testing.T, pv types.PrivValidator, height uint64, orders ...types.Hash) *types.PreProposal {
	id, err := types.PeerIDOf(pv)
	require.NoError(t, err)
	pp := types.NewPreProposal(height, id, orders, nil)
	require.NoError(t, pv.SignPreProposal(pp))
	return pp
}

func signedAggregation(t *testing.T, pv types.PrivValidator, height uint64,
	pps ...*types.PreProposal) *types.PreProposalAggregation {
	id, err := types.PeerIDOf(pv)
	require.NoError(t, err)
	agg := types.NewPreProposalAggregation(height, id, pps)
	require.NoError(t, pv.SignAggregation(agg))
	return agg
}

// peerAggregations 除 skip 之外的验证者各自聚合自己的 PreProposal, 最多 n 个
func peerAggregations(t *testing.T, privs []types.PrivValidator, height uint64, skip, n int) []*types.PreProposalAggregation {
	var out []*types.PreProposalAggregation
	for i, pv := range privs {
		if i == skip || len(out) == n {
			continue
		}
		out = append(out, signedAggregation(t, pv, height, signedPreProposal(t, pv, height)))
	}
	return out
}

func filledSolution(pool types.Hash) *types.PoolSolution {
	return &types.PoolSolution{
		Pool:                 pool,
		UniformClearingPrice: types.RayFromUnits(1),
		SearcherQuantity:     types.NewAmountFromInt64(0),
		SearcherReward:       types.NewAmountFromInt64(0),
		LimitOrders: []types.OrderOutcome{
			{ID: types.HexToHash("0x01"), State: types.CompleteFill, Filled: types.NewAmountFromInt64(10)},
		},
	}
}

func (n *testNode) send(msg Message, from p2p.ID) {
	n.cs.peerMsgQueue <- msgInfo{Msg: msg, PeerID: from}
}

// waitRound 等待 receiveRoutine 处理完新块, 之后发送的消息才属于这一轮
func waitRound(t *testing.T, cs *ConsensusState, height uint64) {
	require.Eventually(t, func() bool {
		rs := cs.GetRoundState()
		return rs != nil && rs.Height == height
	}, time.Second, time.Millisecond)
}
