package state

import "strom_bft/types"

// Store 保存每一轮对外可见的结果, 由 store.KVStore 实现
type Store interface {
	SaveProposal(*types.Proposal) error
	SaveAttestation(*types.EmptyBlockAttestation) error
	SaveLeaderState(*types.ValidatorSet) error
}

// NopStore 不保存任何数据
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) SaveProposal(*types.Proposal) error                 { return nil }
func (NopStore) SaveAttestation(*types.EmptyBlockAttestation) error { return nil }
func (NopStore) SaveLeaderState(*types.ValidatorSet) error          { return nil }
