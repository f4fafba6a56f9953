package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/p2p"
	"pgregory.net/rapid"
)

func newTestValidatorSet(powers ...int64) *ValidatorSet {
	valz := make([]*Validator, len(powers))
	for i, p := range powers {
		valz[i] = NewValidator(ed25519.GenPrivKey().PubKey(), p)
	}
	return NewValidatorSet(valz, 0)
}

func TestLeaderDistribution(t *testing.T) {
	vals := newTestValidatorSet(100, 200, 300)
	total := vals.TotalVotingPower()

	counts := make(map[p2p.ID]int)
	const rounds = 1000
	for h := uint64(1); h <= rounds; h++ {
		counts[vals.ChooseProposer(h)]++
	}

	for _, val := range vals.Validators {
		expected := float64(val.VotingPower) / float64(total)
		got := float64(counts[val.PeerID]) / rounds
		assert.InDelta(t, expected, got, 0.05, "validator %v", val)
	}
}

func TestChooseProposerCachedOnReorg(t *testing.T) {
	vals := newTestValidatorSet(10, 20, 30, 40)

	leader := vals.ChooseProposer(5)
	snapshot := vals.Copy()

	// 相同或更低的块高直接返回缓存的出块者, 状态不变
	assert.Equal(t, leader, vals.ChooseProposer(5))
	assert.Equal(t, leader, vals.ChooseProposer(3))
	assert.Equal(t, snapshot.Validators, vals.Validators)
	assert.EqualValues(t, 5, vals.BlockNumber)
}

func TestChooseProposerCatchUp(t *testing.T) {
	a := newTestValidatorSet(1, 2, 3, 4, 5)
	b := a.Copy()

	// 一次跳过多块与逐块调用结果相同
	var last p2p.ID
	for h := uint64(1); h <= 17; h++ {
		last = a.ChooseProposer(h)
	}
	assert.Equal(t, last, b.ChooseProposer(17))
	assert.Equal(t, a.Validators, b.Validators)
}

func TestRoundRobinDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(t, "n").(int)
		powers := make([]int64, n)
		for i := range powers {
			powers[i] = rapid.Int64Range(1, 1000).Draw(t, "power").(int64)
		}
		a := newTestValidatorSet(powers...)
		b := a.Copy()

		height := uint64(0)
		steps := rapid.IntRange(1, 50).Draw(t, "steps").(int)
		for i := 0; i < steps; i++ {
			height += uint64(rapid.IntRange(0, 4).Draw(t, "jump").(int))
			if a.ChooseProposer(height) != b.ChooseProposer(height) {
				t.Fatalf("proposer sequences diverged at height %d", height)
			}
		}
	})
}

func TestRescalePriorities(t *testing.T) {
	vals := newTestValidatorSet(1, 1, 1)
	total := vals.TotalVotingPower()
	vals.Validators[0].ProposerPriority = 100 * total
	vals.Validators[1].ProposerPriority = -100 * total
	vals.Validators[2].ProposerPriority = 0

	vals.RescalePriorities()
	assert.LessOrEqual(t, computeMaxMinPriorityDiff(vals), PriorityWindowSizeFactor*total)

	vals.CenterPriorities()
	sum := int64(0)
	for _, v := range vals.Validators {
		sum += v.ProposerPriority
	}
	assert.LessOrEqual(t, sum, int64(len(vals.Validators)))
}

func TestAddRemoveValidator(t *testing.T) {
	vals := newTestValidatorSet(100, 100)
	pk := ed25519.GenPrivKey().PubKey()

	require.NoError(t, vals.AddValidator(pk, 100))
	assert.Equal(t, ErrDuplicateValidator, vals.AddValidator(pk, 100))

	_, val := vals.GetByPeerID(p2p.PubKeyToID(pk))
	require.NotNil(t, val)
	// 惩罚: -1.125 * 总权重
	assert.EqualValues(t, -vals.TotalVotingPower()*ProposerPenalty/1000, val.ProposerPriority)

	// 新加入的验证者不会在下一块马上当选
	assert.NotEqual(t, val.PeerID, vals.ChooseProposer(1))

	require.NoError(t, vals.RemoveValidator(val.PeerID))
	assert.Equal(t, 2, vals.Size())
	assert.Equal(t, ErrValidatorNotFound, vals.RemoveValidator(val.PeerID))
}

func TestQuorumThreshold(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 2, 3: 2, 4: 3, 5: 4, 6: 4, 7: 5, 10: 7, 100: 67}
	for n, expected := range cases {
		assert.Equal(t, expected, QuorumThreshold(n), "n=%d", n)
	}
	assert.True(t, HasQuorum(3, 4))
	assert.False(t, HasQuorum(2, 4))
}
