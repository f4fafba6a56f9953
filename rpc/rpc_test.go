package rpc

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"strom_bft/amm"
	cfg "strom_bft/config"
	"strom_bft/consensus"
	"strom_bft/libs/metric"
	mempl "strom_bft/mempool"
	"strom_bft/state"
	"strom_bft/store"
	"strom_bft/types"
)

func setupEnv(t *testing.T) (*Environment, []types.PrivValidator) {
	vals, privs := types.RandValidatorSet(4, 10)

	mem := mempl.NewListMempool(tmcfg.TestMempoolConfig(), 0)
	mem.SetLogger(log.TestingLogger())
	kv := store.NewMemStore()
	chain := state.NewDevChain(1, state.AsBlockProducer())
	chain.SetLogger(log.TestingLogger())
	cs := consensus.NewConsensusState(cfg.TestStromConfig(), vals, mem,
		amm.NewStaticPoolProvider(nil), chain, consensus.SetStore(kv), consensus.SetPrivValidator(privs[0]))
	cs.SetLogger(log.TestingLogger())

	ms := metric.NewMetricSet()
	require.NoError(t, ms.SetMetrics("mempool", mem.Metric()))
	require.NoError(t, ms.SetMetrics("consensus", cs.Metric()))

	e := &Environment{
		Mempool:   mem,
		Consensus: cs,
		Store:     kv,
		MetricSet: ms,
		Logger:    log.TestingLogger(),
	}
	SetEnvironment(e)
	return e, privs
}

func TestBroadcastOrder(t *testing.T) {
	e, _ := setupEnv(t)
	ctx := &rpctypes.Context{}

	order := &types.LimitOrder{
		Pool:        types.BytesToHash([]byte("pool")),
		IsBid:       true,
		Quantity:    big.NewInt(100),
		MinQuantity: new(big.Int),
		LimitPrice:  types.RayFromUnits(2).Int(),
		Nonce:       1,
	}
	bz, err := types.EncodeOrder(order)
	require.NoError(t, err)

	res, err := BroadcastOrder(ctx, bz)
	require.NoError(t, err)
	assert.Equal(t, order.Hash(), res.Hash)

	n, err := NumOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n.Count)
	assert.Equal(t, e.Mempool.OrdersBytes(), n.TotalBytes)

	// 重复的订单被 mempool 拒绝
	_, err = BroadcastOrder(ctx, bz)
	assert.Error(t, err)

	_, err = BroadcastOrder(ctx, []byte{0xff, 0x01})
	assert.Error(t, err)
}

func TestConsensusRoutesBeforeFirstRound(t *testing.T) {
	setupEnv(t)
	ctx := &rpctypes.Context{}

	_, err := Leader(ctx)
	assert.ErrorIs(t, err, ErrNoRound)
	_, err = RoundState(ctx)
	assert.ErrorIs(t, err, ErrNoRound)

	res, err := Validators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, types.QuorumThreshold(4), res.Quorum)
}

func TestStoredResults(t *testing.T) {
	e, privs := setupEnv(t)
	ctx := &rpctypes.Context{}

	id, err := types.PeerIDOf(privs[1])
	require.NoError(t, err)
	for _, h := range []uint64{3, 5} {
		a := types.NewEmptyBlockAttestation(h, id)
		require.NoError(t, privs[1].SignAttestation(a))
		require.NoError(t, e.Store.SaveAttestation(a))
	}

	res, err := Attestation(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Attestation.Height)

	res, err = Attestation(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Attestation.Height)

	_, err = Attestation(ctx, -1)
	assert.Error(t, err)
	_, err = Proposal(ctx, 4)
	assert.Error(t, err)
}

func TestJSONMetrics(t *testing.T) {
	setupEnv(t)
	ctx := &rpctypes.Context{}

	res, err := JSONMetrics(ctx, "")
	require.NoError(t, err)
	assert.Len(t, res.Metrics, 2)
	assert.True(t, strings.Contains(res.Metrics["mempool"], "orders_num"))

	res, err = JSONMetrics(ctx, "consensus")
	require.NoError(t, err)
	assert.Len(t, res.Metrics, 1)

	res, err = JSONMetrics(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, res.Metrics)
}
