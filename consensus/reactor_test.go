package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	cstypes "strom_bft/consensus/types"
	"strom_bft/state"
	"strom_bft/types"
)

// connect N consensus reactors through N switches
func makeAndConnectReactors(t *testing.T, chain state.ChainClient, logger log.Logger,
	vals *types.ValidatorSet, privs []types.PrivValidator) ([]*Reactor, []*p2p.Switch) {
	n := len(privs)
	reactors := make([]*Reactor, n)
	for i := 0; i < n; i++ {
		node := newTestNode(t, vals, privs[i], chain, logger)
		reactors[i] = NewReactor(node.cs)
		reactors[i].SetLogger(logger.With("validator", i))
	}

	switches := p2p.MakeConnectedSwitches(tmcfg.DefaultP2PConfig(), n, func(i int, s *p2p.Switch) *p2p.Switch {
		s.AddReactor("CONSENSUS", reactors[i])
		return s
	}, p2p.Connect2Switches)
	return reactors, switches
}

func stopSwitches(switches []*p2p.Switch) {
	for _, s := range switches {
		_ = s.Stop()
	}
}

// 四个节点: leader 撮合后上链空块声明, 其他节点收到广播后结束本轮
func TestReactorRoundOverNetwork(t *testing.T) {
	vals, privs := types.RandValidatorSet(4, 10)
	const height = 3
	chain := newMinedChain(height)
	reactors, switches := makeAndConnectReactors(t, chain, log.TestingLogger(), vals, privs)
	defer stopSwitches(switches)

	for _, r := range reactors {
		r.consensus.NewBlock(height)
	}

	leader := leaderIndex(t, vals, privs, height)
	for i, r := range reactors {
		cs := r.consensus
		require.Eventually(t, func() bool {
			rs := cs.GetRoundState()
			return rs != nil && rs.Outcome == cstypes.OutcomeAttestation
		}, 5*time.Second, 10*time.Millisecond, "validator %d did not finalize", i)

		rs := cs.GetRoundState()
		assert.Equal(t, i == leader, rs.IsLeader)
		assert.Equal(t, reactors[leader].consensus.Self(), rs.Leader, "validator %d", i)
	}
}

func TestMessageCodec(t *testing.T) {
	_, privs := types.RandValidatorSet(1, 10)
	pp := signedPreProposal(t, privs[0], 8, types.HexToHash("0x01"), types.HexToHash("0x02"))

	bz, err := EncodeMsg(&PreProposalMessage{PreProposal: pp})
	require.NoError(t, err)
	msg, err := DecodeMsg(bz)
	require.NoError(t, err)

	decoded, ok := msg.(*PreProposalMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, pp.Hash(), decoded.PreProposal.Hash())
	assert.Equal(t, PreProposalChannel, messageChannel(msg))
	assert.Equal(t, uint64(8), messageHeight(msg))

	_, err = DecodeMsg([]byte("not snappy"))
	assert.Error(t, err)
}
