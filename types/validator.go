// fork from github.com/tendermint/tendermint/types/validator.go
package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/p2p"
)

// VotingPowerScale 投票权重的定点数放大倍数
const VotingPowerScale = 1000

// Validator 的身份只由 PeerID 决定, 权重和优先级不参与比较
// NOTE: ProposerPriority 每轮都会变化
type Validator struct {
	PeerID           p2p.ID        `json:"peer_id"`
	PubKey           crypto.PubKey `json:"pub_key"`
	VotingPower      int64         `json:"voting_power"`
	ProposerPriority int64         `json:"proposer_priority"`
}

// NewValidator returns a new validator with the given pubkey and voting power.
// votingPower 是未放大的权重
func NewValidator(pubKey crypto.PubKey, votingPower int64) *Validator {
	return &Validator{
		PeerID:      p2p.PubKeyToID(pubKey),
		PubKey:      pubKey,
		VotingPower: votingPower * VotingPowerScale,
	}
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if v.PubKey == nil {
		return errors.New("validator does not have a public key")
	}
	if v.VotingPower <= 0 {
		return fmt.Errorf("validator %v has non-positive voting power %d", v.PeerID, v.VotingPower)
	}
	if v.PeerID != p2p.PubKeyToID(v.PubKey) {
		return fmt.Errorf("validator peer id %v does not match its public key", v.PeerID)
	}
	return nil
}

// Creates a new copy of the validator so we can mutate ProposerPriority.
// Panics if the validator is nil.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%v VP:%v A:%v}",
		v.PeerID,
		v.VotingPower,
		v.ProposerPriority)
}

// VerifySignature 校验 digest 是否由该验证者签名
func (v *Validator) VerifySignature(digest Hash, sig []byte) bool {
	return v.PubKey.VerifySignature(digest.Bytes(), sig)
}

//----------------------------------------
// RandValidator

// RandValidator returns a randomized validator, useful for testing.
// UNSTABLE
func RandValidator(votingPower int64) (*Validator, PrivValidator) {
	privVal := NewMockPV()

	pubKey, err := privVal.GetPubKey()
	if err != nil {
		panic(fmt.Errorf("could not retrieve pubkey %w", err))
	}
	val := NewValidator(pubKey, votingPower)
	return val, privVal
}
