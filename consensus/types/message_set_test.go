package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strom_bft/types"
)

func signedPreProposal(t *testing.T, pv types.PrivValidator, height uint64, orders ...types.Hash) *types.PreProposal {
	id, err := types.PeerIDOf(pv)
	require.NoError(t, err)
	pp := types.NewPreProposal(height, id, orders, nil)
	require.NoError(t, pv.SignPreProposal(pp))
	return pp
}

func TestPreProposalSetDedup(t *testing.T) {
	vals, privs := types.RandValidatorSet(4, 10)
	set := NewPreProposalSet(5, vals)

	pp := signedPreProposal(t, privs[1], 5, types.HexToHash("0x01"))
	require.NoError(t, set.Add(pp))
	assert.Equal(t, ErrDuplicate, set.Add(pp))
	assert.Equal(t, 1, set.Size())
	assert.Len(t, set.List(), 1)

	// 同一来源的另一份内容, 保留第一次收到的
	other := signedPreProposal(t, privs[1], 5, types.HexToHash("0x02"))
	assert.Equal(t, ErrConflicting, set.Add(other))
	assert.Equal(t, pp.Hash(), set.Get(pp.Source).Hash())

	bits := set.BitArray()
	assert.True(t, bits.BitAt(1))
	assert.False(t, bits.BitAt(0))
	assert.Equal(t, uint64(1), bits.Count())
}

func TestPreProposalSetRejects(t *testing.T) {
	vals, privs := types.RandValidatorSet(4, 10)
	set := NewPreProposalSet(5, vals)

	wrongHeight := signedPreProposal(t, privs[0], 6)
	assert.True(t, errors.Is(set.Add(wrongHeight), ErrWrongHeight))

	outsider := signedPreProposal(t, types.NewMockPV(), 5)
	assert.True(t, errors.Is(set.Add(outsider), ErrUnknownSource))

	// 签名者与声明的来源不一致
	forged := signedPreProposal(t, privs[2], 5)
	forged.Source = signedPreProposal(t, privs[3], 5).Source
	assert.Error(t, set.Add(forged))

	unsigned := types.NewPreProposal(5, forged.Source, nil, nil)
	assert.Equal(t, types.ErrMissingSignature, set.Add(unsigned))

	assert.Equal(t, 0, set.Size())
}

func TestAggregationSetQuorum(t *testing.T) {
	vals, privs := types.RandValidatorSet(4, 10)
	var pps []*types.PreProposal
	for _, pv := range privs {
		pps = append(pps, signedPreProposal(t, pv, 9))
	}

	set := NewAggregationSet(9, vals)
	for i, pv := range privs[:3] {
		id, _ := types.PeerIDOf(pv)
		agg := types.NewPreProposalAggregation(9, id, pps)
		require.NoError(t, pv.SignAggregation(agg))
		require.NoError(t, set.Add(agg))
		assert.Equal(t, i == 2, set.HasQuorum(), "quorum after %d aggregations", i+1)
	}

	// 聚合中夹带一个签名无效的 PreProposal
	bad := signedPreProposal(t, privs[3], 9)
	bad.Signature = append([]byte{}, pps[0].Signature...)
	id, _ := types.PeerIDOf(privs[3])
	agg := types.NewPreProposalAggregation(9, id, []*types.PreProposal{bad})
	require.NoError(t, privs[3].SignAggregation(agg))
	assert.Error(t, set.Add(agg))
	assert.Equal(t, 3, set.Size())
	assert.False(t, set.Has(id))

	list := set.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].Source < list[i].Source)
	}
}
