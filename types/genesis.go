package types

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

//------------------------------------------------------------
// core types for a genesis definition

// GenesisValidator is an initial validator.
// Power 是未放大的投票权重
type GenesisValidator struct {
	PeerID p2p.ID        `json:"peer_id"`
	PubKey crypto.PubKey `json:"pub_key"`
	Power  int64         `json:"power"`
	Name   string        `json:"name"`
}

// GenesisDoc 定义验证者集合以及共识开始的块高
type GenesisDoc struct {
	GenesisTime   time.Time          `json:"genesis_time"`
	ChainID       string             `json:"chain_id"`
	InitialHeight uint64             `json:"initial_height"`
	Validators    []GenesisValidator `json:"validators"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// ValidatorSet 按创世文件构造选举状态
func (genDoc *GenesisDoc) ValidatorSet() *ValidatorSet {
	vals := make([]*Validator, len(genDoc.Validators))
	for i, v := range genDoc.Validators {
		vals[i] = NewValidator(v.PubKey, v.Power)
	}
	return NewValidatorSet(vals, genDoc.InitialHeight)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.Validators) == 0 {
		return errors.New("genesis doc must include at least one validator")
	}

	seen := make(map[p2p.ID]struct{}, len(genDoc.Validators))
	for i, v := range genDoc.Validators {
		if v.Power <= 0 {
			return fmt.Errorf("the genesis file cannot contain validators with no voting power: %v", v.Name)
		}
		if v.PubKey == nil {
			return fmt.Errorf("validator #%d has no public key", i)
		}
		id := p2p.PubKeyToID(v.PubKey)
		if v.PeerID != "" && v.PeerID != id {
			return fmt.Errorf("incorrect peer id for validator %v in the genesis file, should be %v", v.Name, id)
		}
		genDoc.Validators[i].PeerID = id
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate validator %v in the genesis file", id)
		}
		seen[id] = struct{}{}
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = tmtime.Now()
	}

	return nil
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := tmjson.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read GenesisDoc file")
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading GenesisDoc at %v", genDocFile)
	}
	return genDoc, nil
}
