package privval

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strom_bft/types"
)

func newTestFilePV(t *testing.T) (*FilePV, string, string) {
	tempKeyFile, err := ioutil.TempFile("", "priv_validator_key_")
	require.Nil(t, err)
	tempStateFile, err := ioutil.TempFile("", "priv_validator_state_")
	require.Nil(t, err)
	t.Cleanup(func() {
		os.Remove(tempKeyFile.Name())
		os.Remove(tempStateFile.Name())
	})

	privVal := GenFilePV(tempKeyFile.Name(), tempStateFile.Name())
	return privVal, tempKeyFile.Name(), tempStateFile.Name()
}

func TestGenLoadValidator(t *testing.T) {
	privVal, keyFile, stateFile := newTestFilePV(t)

	pp := types.NewPreProposal(10, privVal.GetPeerID(), nil, nil)
	require.NoError(t, privVal.SignPreProposal(pp))

	peerID := privVal.GetPeerID()
	privVal, err := LoadFilePV(keyFile, stateFile)
	require.NoError(t, err)
	assert.Equal(t, peerID, privVal.GetPeerID(), "expected privval peer ids to be the same")
	assert.Equal(t, uint64(10), privVal.LastSignState.Height, "expected privval.LastHeight to have been saved")
	assert.Equal(t, stepPreProposal, privVal.LastSignState.Step)

	id, err := types.PeerIDOf(privVal)
	require.NoError(t, err)
	assert.Equal(t, peerID, id)
}

func TestLoadOrGenValidator(t *testing.T) {
	_, keyFile, stateFile := newTestFilePV(t)
	os.Remove(keyFile)
	os.Remove(stateFile)

	privVal, err := LoadOrGenFilePV(keyFile, stateFile)
	require.NoError(t, err)
	peerID := privVal.GetPeerID()

	privVal, err = LoadOrGenFilePV(keyFile, stateFile)
	require.NoError(t, err)
	assert.Equal(t, peerID, privVal.GetPeerID(), "expected privval peer ids to be the same")
}

func TestLoadFilePVEmptyState(t *testing.T) {
	privVal, keyFile, stateFile := newTestFilePV(t)
	require.NoError(t, privVal.Save())

	pp := types.NewPreProposal(7, privVal.GetPeerID(), nil, nil)
	require.NoError(t, privVal.SignPreProposal(pp))

	loaded, err := LoadFilePVEmptyState(keyFile, stateFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), loaded.LastSignState.Height)
	assert.Equal(t, privVal.GetPeerID(), loaded.GetPeerID())
}

func TestSignedMessagesVerify(t *testing.T) {
	privVal, _, _ := newTestFilePV(t)
	pubKey, err := privVal.GetPubKey()
	require.NoError(t, err)
	val := types.NewValidator(pubKey, 10)
	vals := types.NewValidatorSet([]*types.Validator{val}, 0)
	id := privVal.GetPeerID()

	pp := types.NewPreProposal(3, id, []types.Hash{types.HexToHash("0x01")}, nil)
	require.NoError(t, privVal.SignPreProposal(pp))
	assert.NoError(t, pp.Verify(val))

	agg := types.NewPreProposalAggregation(3, id, []*types.PreProposal{pp})
	require.NoError(t, privVal.SignAggregation(agg))
	assert.NoError(t, agg.VerifyWith(vals))

	a := types.NewEmptyBlockAttestation(3, id)
	require.NoError(t, privVal.SignAttestation(a))
	assert.NoError(t, a.Verify(val))
}

func TestSignOrder(t *testing.T) {
	privVal, _, _ := newTestFilePV(t)
	id := privVal.GetPeerID()

	pp := types.NewPreProposal(5, id, []types.Hash{types.HexToHash("0x01")}, nil)
	require.NoError(t, privVal.SignPreProposal(pp))

	// 同一内容重复签名复用之前的签名
	again := types.NewPreProposal(5, id, []types.Hash{types.HexToHash("0x01")}, nil)
	require.NoError(t, privVal.SignPreProposal(again))
	assert.Equal(t, pp.Signature, again.Signature)

	// 同一高度不同内容
	other := types.NewPreProposal(5, id, []types.Hash{types.HexToHash("0x02")}, nil)
	err := privVal.SignPreProposal(other)
	assert.ErrorIs(t, err, ErrDoubleSign)

	agg := types.NewPreProposalAggregation(5, id, []*types.PreProposal{pp})
	require.NoError(t, privVal.SignAggregation(agg))

	// step 回退
	late := types.NewPreProposal(5, id, []types.Hash{types.HexToHash("0x01")}, nil)
	assert.Error(t, privVal.SignPreProposal(late))

	// 每轮只能给出一个结果
	a := types.NewEmptyBlockAttestation(5, id)
	require.NoError(t, privVal.SignAttestation(a))
	p := types.NewProposal(5, id, []*types.PreProposalAggregation{agg}, nil)
	assert.ErrorIs(t, privVal.SignProposal(p), ErrDoubleSign)

	// height 回退
	old := types.NewPreProposal(4, id, nil, nil)
	assert.Error(t, privVal.SignPreProposal(old))

	next := types.NewPreProposal(6, id, nil, nil)
	assert.NoError(t, privVal.SignPreProposal(next))
}
