package store

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/types"
)

func signedProposal(t *testing.T, height uint64) *types.Proposal {
	pv := types.NewMockPV()
	id, err := types.PeerIDOf(pv)
	require.NoError(t, err)

	sol := &types.PoolSolution{
		Pool:                 types.HexToHash("0x01"),
		UniformClearingPrice: types.RayFromUnits(2),
		SearcherQuantity:     types.NewAmountFromInt64(0),
		SearcherReward:       types.NewAmountFromInt64(0),
		LimitOrders: []types.OrderOutcome{
			{ID: types.HexToHash("0xaa"), State: types.PartialFill, Filled: types.NewAmountFromInt64(42)},
		},
	}
	p := types.NewProposal(height, id, nil, []*types.PoolSolution{sol})
	require.NoError(t, pv.SignProposal(p))
	return p
}

func TestProposalRoundTrip(t *testing.T) {
	kv := NewMemStore()

	p := signedProposal(t, 7)
	require.NoError(t, kv.SaveProposal(p))

	got, err := kv.LoadProposal(7)
	require.NoError(t, err)
	assert.Equal(t, p.Hash(), got.Hash())
	assert.Equal(t, 0, got.Solutions[0].UniformClearingPrice.Cmp(types.RayFromUnits(2)))

	_, err = kv.LoadProposal(8)
	assert.Equal(t, ErrNotFound, err)
}

func TestLatestHeight(t *testing.T) {
	kv := NewMemStore()
	assert.Equal(t, uint64(0), kv.LatestHeight())

	for _, h := range []uint64{3, 300, 12} {
		require.NoError(t, kv.SaveProposal(signedProposal(t, h)))
	}
	assert.Equal(t, uint64(300), kv.LatestHeight())

	pv := types.NewMockPV()
	id, _ := types.PeerIDOf(pv)
	att := types.NewEmptyBlockAttestation(301, id)
	require.NoError(t, pv.SignAttestation(att))
	require.NoError(t, kv.SaveAttestation(att))
	assert.Equal(t, uint64(301), kv.LatestHeight())

	got, err := kv.LoadAttestation(301)
	require.NoError(t, err)
	assert.Equal(t, att.Hash(), got.Hash())

	// orderedcode 保证数值顺序而不是字典序
	heights, err := kv.Heights(0, 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 12, 300}, heights)

	heights, err = kv.Heights(4, 300)
	require.NoError(t, err)
	assert.Equal(t, []uint64{12, 300}, heights)
}

func TestLeaderStateRoundTrip(t *testing.T) {
	kv := NewMemStore()
	_, err := kv.LoadLeaderState()
	assert.Equal(t, ErrNotFound, err)

	vals, _ := types.RandValidatorSet(4, 10)
	for h := uint64(1); h <= 5; h++ {
		vals.ChooseProposer(h)
	}
	require.NoError(t, kv.SaveLeaderState(vals))

	got, err := kv.LoadLeaderState()
	require.NoError(t, err)
	assert.Equal(t, vals.LastProposer, got.LastProposer)
	assert.Equal(t, vals.BlockNumber, got.BlockNumber)
	assert.Equal(t, vals.TotalVotingPower(), got.TotalVotingPower())

	// 恢复后的状态继续选举, 结果与原状态一致
	for h := uint64(6); h <= 20; h++ {
		assert.Equal(t, vals.ChooseProposer(h), got.ChooseProposer(h))
	}
}

func TestLevelDBStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "strom_store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	kv, err := NewKVStore("strom", dir, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, kv.SaveProposal(signedProposal(t, 9)))
	require.NoError(t, kv.Close())

	kv, err = NewKVStore("strom", dir, log.TestingLogger())
	require.NoError(t, err)
	defer kv.Close()
	assert.Equal(t, uint64(9), kv.LatestHeight())
}
