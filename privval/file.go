package privval

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

// 一轮中签名的先后顺序, 同一高度只能向前
const (
	stepNone        int8 = 0
	stepPreProposal int8 = 1
	stepAggregation int8 = 2
	stepResult      int8 = 3 // Proposal 和 EmptyBlockAttestation 二选一
)

var ErrDoubleSign = errors.New("conflicting data at the same height and step")

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of PrivValidator.
type FilePVKey struct {
	PeerID  p2p.ID         `json:"peer_id"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() error {
	if pvKey.filePath == "" {
		return errors.New("cannot save PrivValidator key: filePath not set")
	}
	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(pvKey.filePath, jsonBytes, 0600)
}

//-------------------------------------------------------------------------------

// FilePVLastSignState stores the mutable part of PrivValidator.
type FilePVLastSignState struct {
	Height    uint64           `json:"height"`
	Step      int8             `json:"step"`
	Signature tmbytes.HexBytes `json:"signature,omitempty"`
	Digest    tmbytes.HexBytes `json:"digest,omitempty"`

	filePath string
}

// checkHS 返回 true 表示同一高度同一步骤已经签过相同的内容, 可以直接复用签名
func (lss *FilePVLastSignState) checkHS(height uint64, step int8, digest types.Hash) (bool, error) {
	if lss.Height > height {
		return false, fmt.Errorf("height regression. Got %v, last height %v", height, lss.Height)
	}
	if lss.Height < height {
		return false, nil
	}
	if lss.Step > step {
		return false, fmt.Errorf("step regression at height %v. Got %v, last step %v", height, step, lss.Step)
	}
	if lss.Step < step {
		return false, nil
	}
	if len(lss.Digest) == 0 {
		return false, errors.New("no Digest found")
	}
	if !bytes.Equal(lss.Digest, digest.Bytes()) {
		return false, errors.Wrapf(ErrDoubleSign, "height %v step %v", height, step)
	}
	if lss.Signature == nil {
		panic("pv: Signature is nil but Digest is not!")
	}
	return true, nil
}

// Save persists the FilePvLastSignState to its filePath.
func (lss *FilePVLastSignState) Save() error {
	if lss.filePath == "" {
		return errors.New("cannot save FilePVLastSignState: filePath not set")
	}
	jsonBytes, err := tmjson.MarshalIndent(lss, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(lss.filePath, jsonBytes, 0600)
}

//-------------------------------------------------------------------------------

// FilePV implements PrivValidator using data persisted to disk
// to prevent double signing.
// NOTE: the directories containing pv.Key.filePath and pv.LastSignState.filePath must already exist.
type FilePV struct {
	Key           FilePVKey
	LastSignState FilePVLastSignState
}

var _ types.PrivValidator = (*FilePV)(nil)

// NewFilePV generates a new validator from the given key and paths.
func NewFilePV(privKey crypto.PrivKey, keyFilePath, stateFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			PeerID:   p2p.PubKeyToID(privKey.PubKey()),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
		LastSignState: FilePVLastSignState{
			Step:     stepNone,
			filePath: stateFilePath,
		},
	}
}

// GenFilePV generates a new validator with randomly generated private key
// and sets the filePaths, but does not call Save().
func GenFilePV(keyFilePath, stateFilePath string) *FilePV {
	return NewFilePV(ed25519.GenPrivKey(), keyFilePath, stateFilePath)
}

// LoadFilePV loads a FilePV from the filePaths.
func LoadFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	return loadFilePV(keyFilePath, stateFilePath, true)
}

// LoadFilePVEmptyState loads a FilePV from the given keyFilePath, with an empty LastSignState.
func LoadFilePVEmptyState(keyFilePath, stateFilePath string) (*FilePV, error) {
	return loadFilePV(keyFilePath, stateFilePath, false)
}

func loadFilePV(keyFilePath, stateFilePath string, loadState bool) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := FilePVKey{}
	if err := tmjson.Unmarshal(keyJSONBytes, &pvKey); err != nil {
		return nil, errors.Wrapf(err, "error reading PrivValidator key from %v", keyFilePath)
	}

	// overwrite pubkey and peer id for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.PeerID = p2p.PubKeyToID(pvKey.PubKey)
	pvKey.filePath = keyFilePath

	pvState := FilePVLastSignState{}
	if loadState {
		stateJSONBytes, err := ioutil.ReadFile(stateFilePath)
		if err != nil {
			return nil, err
		}
		if err := tmjson.Unmarshal(stateJSONBytes, &pvState); err != nil {
			return nil, errors.Wrapf(err, "error reading PrivValidator state from %v", stateFilePath)
		}
	}
	pvState.filePath = stateFilePath

	return &FilePV{
		Key:           pvKey,
		LastSignState: pvState,
	}, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePaths
// or else generates a new one and saves it to the filePaths.
func LoadOrGenFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath, stateFilePath)
	}
	pv := GenFilePV(keyFilePath, stateFilePath)
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// GetPeerID returns the consensus identity of the validator.
func (pv *FilePV) GetPeerID() p2p.ID {
	return pv.Key.PeerID
}

// GetPubKey returns the public key of the validator.
// Implements PrivValidator.
func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// Implements PrivValidator.
func (pv *FilePV) SignPreProposal(pp *types.PreProposal) error {
	sig, err := pv.sign(pp.Height, stepPreProposal, pp.SignDigest())
	if err != nil {
		return errors.Wrap(err, "error signing pre-proposal")
	}
	pp.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv *FilePV) SignAggregation(agg *types.PreProposalAggregation) error {
	sig, err := pv.sign(agg.Height, stepAggregation, agg.SignDigest())
	if err != nil {
		return errors.Wrap(err, "error signing aggregation")
	}
	agg.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv *FilePV) SignProposal(p *types.Proposal) error {
	sig, err := pv.sign(p.Height, stepResult, p.SignDigest())
	if err != nil {
		return errors.Wrap(err, "error signing proposal")
	}
	p.Signature = sig
	return nil
}

// Implements PrivValidator.
func (pv *FilePV) SignAttestation(a *types.EmptyBlockAttestation) error {
	sig, err := pv.sign(a.Height, stepResult, a.SignDigest())
	if err != nil {
		return errors.Wrap(err, "error signing attestation")
	}
	a.Signature = sig
	return nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() error {
	if err := pv.Key.Save(); err != nil {
		return err
	}
	return pv.LastSignState.Save()
}

// Reset resets all fields in the FilePV.
// NOTE: Unsafe!
func (pv *FilePV) Reset() error {
	pv.LastSignState.Height = 0
	pv.LastSignState.Step = stepNone
	pv.LastSignState.Signature = nil
	pv.LastSignState.Digest = nil
	return pv.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"PrivValidator{%v LH:%v, LS:%v}",
		pv.GetPeerID(),
		pv.LastSignState.Height,
		pv.LastSignState.Step,
	)
}

//------------------------------------------------------------------------------------

// sign 检查高度和步骤没有回退, 签名后先落盘再返回
// 崩溃重启后对同一内容重复签名会复用之前的签名
func (pv *FilePV) sign(height uint64, step int8, digest types.Hash) ([]byte, error) {
	lss := &pv.LastSignState
	sameHS, err := lss.checkHS(height, step, digest)
	if err != nil {
		return nil, err
	}
	if sameHS {
		return lss.Signature, nil
	}

	sig, err := pv.Key.PrivKey.Sign(digest.Bytes())
	if err != nil {
		return nil, err
	}
	if err := pv.saveSigned(height, step, digest, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// Persist height/step and signature
func (pv *FilePV) saveSigned(height uint64, step int8, digest types.Hash, sig []byte) error {
	pv.LastSignState.Height = height
	pv.LastSignState.Step = step
	pv.LastSignState.Signature = sig
	pv.LastSignState.Digest = digest.Bytes()
	return pv.LastSignState.Save()
}
