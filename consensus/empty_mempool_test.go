package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/amm"
	cfg "strom_bft/config"
	cstypes "strom_bft/consensus/types"
	"strom_bft/mempool/mock"
	"strom_bft/store"
	"strom_bft/types"
)

// 没有订单时 leader 依然完成一轮, 结果是空块声明
func TestEmptyMempoolRound(t *testing.T) {
	vals, privs := types.RandValidatorSet(4, 10)
	const height = 4
	leader := leaderIndex(t, vals, privs, height)
	chain := newMinedChain(height)

	kv := store.NewMemStore()
	cs := NewConsensusState(cfg.TestStromConfig(), vals.Copy(), mock.Mempool{},
		amm.NewStaticPoolProvider(nil), chain, SetStore(kv), SetPrivValidator(privs[leader]))
	cs.SetLogger(log.TestingLogger())
	node := &testNode{cs: cs, pv: privs[leader], store: kv}

	require.NoError(t, cs.Start())
	defer cs.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attestations, err := cs.Subscribe(ctx, "test", SubscribeAttestations, 1)
	require.NoError(t, err)

	cs.NewBlock(height)
	waitRound(t, cs, height)
	for _, agg := range peerAggregations(t, privs, height, leader, 2) {
		node.send(&AggregationMessage{Aggregation: agg}, "peer")
	}

	select {
	case ev := <-attestations:
		assert.Equal(t, uint64(height), ev.Data.(*types.EmptyBlockAttestation).Height)
	case <-time.After(2 * time.Second):
		t.Fatal("no attestation")
	}
	assert.Equal(t, cstypes.OutcomeAttestation, cs.GetRoundState().Outcome)
	assert.True(t, cs.GetRoundState().IsLeader)
}
