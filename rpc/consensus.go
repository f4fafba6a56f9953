package rpc

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/p2p"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	cstypes "strom_bft/consensus/types"
	"strom_bft/types"
)

var ErrNoRound = errors.New("consensus has not started a round yet")

type ResultLeader struct {
	Height uint64 `json:"height"`
	Leader p2p.ID `json:"leader"`
	Self   p2p.ID `json:"self"`
}

type ResultValidators struct {
	Validators *types.ValidatorSet `json:"validators"`
	Total      int                 `json:"total"`
	Quorum     int                 `json:"quorum"`
}

type ResultRoundState struct {
	RoundState *cstypes.RoundState `json:"round_state"`
}

type ResultProposal struct {
	Proposal *types.Proposal `json:"proposal"`
}

type ResultAttestation struct {
	Attestation *types.EmptyBlockAttestation `json:"attestation"`
}

func Leader(ctx *rpctypes.Context) (*ResultLeader, error) {
	leader, height := env.Consensus.GetLeader()
	if height == 0 {
		return nil, ErrNoRound
	}
	return &ResultLeader{Height: height, Leader: leader, Self: env.Consensus.Self()}, nil
}

func Validators(ctx *rpctypes.Context) (*ResultValidators, error) {
	vals := env.Consensus.GetValidators()
	return &ResultValidators{
		Validators: vals,
		Total:      vals.Size(),
		Quorum:     types.QuorumThreshold(vals.Size()),
	}, nil
}

func RoundState(ctx *rpctypes.Context) (*ResultRoundState, error) {
	rs := env.Consensus.GetRoundState()
	if rs == nil {
		return nil, ErrNoRound
	}
	return &ResultRoundState{RoundState: rs}, nil
}

// Proposal height 为 0 时返回最近一次保存的提案
func Proposal(ctx *rpctypes.Context, height int64) (*ResultProposal, error) {
	h, err := storeHeight(height, env.Store.LatestProposalHeight)
	if err != nil {
		return nil, err
	}
	p, err := env.Store.LoadProposal(h)
	if err != nil {
		return nil, errors.Wrapf(err, "no proposal at height %d", h)
	}
	return &ResultProposal{Proposal: p}, nil
}

// Attestation height 为 0 时返回最近一次保存的空块声明
func Attestation(ctx *rpctypes.Context, height int64) (*ResultAttestation, error) {
	h, err := storeHeight(height, env.Store.LatestAttestationHeight)
	if err != nil {
		return nil, err
	}
	a, err := env.Store.LoadAttestation(h)
	if err != nil {
		return nil, errors.Wrapf(err, "no attestation at height %d", h)
	}
	return &ResultAttestation{Attestation: a}, nil
}

func storeHeight(height int64, latest func() uint64) (uint64, error) {
	switch {
	case height < 0:
		return 0, errors.Errorf("height must be non-negative, got %d", height)
	case height == 0:
		return latest(), nil
	default:
		return uint64(height), nil
	}
}
