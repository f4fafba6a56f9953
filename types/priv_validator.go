package types

import (
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/p2p"
)

// PrivValidator defines the functionality of a local validator
// that signs consensus messages.
type PrivValidator interface {
	GetPubKey() (crypto.PubKey, error)

	SignPreProposal(pp *PreProposal) error
	SignAggregation(agg *PreProposalAggregation) error
	SignProposal(p *Proposal) error
	SignAttestation(a *EmptyBlockAttestation) error
}

// PeerIDOf 验证者在共识中的身份
func PeerIDOf(pv PrivValidator) (p2p.ID, error) {
	pubKey, err := pv.GetPubKey()
	if err != nil {
		return "", err
	}
	return p2p.PubKeyToID(pubKey), nil
}

type PrivValidatorsByPeerID []PrivValidator

func (pvs PrivValidatorsByPeerID) Len() int {
	return len(pvs)
}

func (pvs PrivValidatorsByPeerID) Less(i, j int) bool {
	pvi, err := PeerIDOf(pvs[i])
	if err != nil {
		panic(err)
	}
	pvj, err := PeerIDOf(pvs[j])
	if err != nil {
		panic(err)
	}
	return pvi < pvj
}

func (pvs PrivValidatorsByPeerID) Swap(i, j int) {
	pvs[i], pvs[j] = pvs[j], pvs[i]
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without any safety or persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey crypto.PrivKey
}

func NewMockPV() MockPV {
	return MockPV{ed25519.GenPrivKey()}
}

// Implements PrivValidator.
func (pv MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv MockPV) sign(digest Hash) ([]byte, error) {
	return pv.PrivKey.Sign(digest.Bytes())
}

// Implements PrivValidator.
func (pv MockPV) SignPreProposal(pp *PreProposal) error {
	sig, err := pv.sign(pp.SignDigest())
	if err != nil {
		return err
	}
	pp.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv MockPV) SignAggregation(agg *PreProposalAggregation) error {
	sig, err := pv.sign(agg.SignDigest())
	if err != nil {
		return err
	}
	agg.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv MockPV) SignProposal(p *Proposal) error {
	sig, err := pv.sign(p.SignDigest())
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv MockPV) SignAttestation(a *EmptyBlockAttestation) error {
	sig, err := pv.sign(a.SignDigest())
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

func (pv MockPV) String() string {
	id, _ := PeerIDOf(pv)
	return "MockPV{" + string(id) + "}"
}
