package store

import (
	"fmt"
	"math"

	"github.com/google/orderedcode"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"strom_bft/state"
	"strom_bft/types"
)

// key prefixes
const (
	prefixProposal    = int64(0)
	prefixAttestation = int64(1)
	prefixLeaderState = int64(2)
)

var ErrNotFound = errors.New("not found")

func NewKVStore(name, dir string, logger log.Logger) (*KVStore, error) {
	levelDB, err := tmdb.NewDB(name, tmdb.GoLevelDBBackend, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s in %s", name, dir)
	}
	return NewKVStoreWithDB(levelDB, logger), nil
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	return &KVStore{kvDB: kvdb, logger: logger}
}

// KVStore 按块高保存定稿的提案, 空块声明以及最新的出块者选举状态
type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

var _ state.Store = (*KVStore)(nil)

func (kv *KVStore) SaveProposal(p *types.Proposal) error {
	return kv.save(heightKey(prefixProposal, p.Height), p)
}

func (kv *KVStore) LoadProposal(height uint64) (*types.Proposal, error) {
	p := new(types.Proposal)
	if err := kv.load(heightKey(prefixProposal, height), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (kv *KVStore) SaveAttestation(a *types.EmptyBlockAttestation) error {
	return kv.save(heightKey(prefixAttestation, a.Height), a)
}

func (kv *KVStore) LoadAttestation(height uint64) (*types.EmptyBlockAttestation, error) {
	a := new(types.EmptyBlockAttestation)
	if err := kv.load(heightKey(prefixAttestation, height), a); err != nil {
		return nil, err
	}
	return a, nil
}

// SaveLeaderState 只保留最新一份
func (kv *KVStore) SaveLeaderState(vals *types.ValidatorSet) error {
	return kv.save(leaderStateKey(), vals)
}

func (kv *KVStore) LoadLeaderState() (*types.ValidatorSet, error) {
	vals := new(types.ValidatorSet)
	if err := kv.load(leaderStateKey(), vals); err != nil {
		return nil, err
	}
	return types.NewValidatorSetFromState(vals), nil
}

// LatestHeight 最近一个有结果(提案或者空块声明)的块高, 没有时返回 0
func (kv *KVStore) LatestHeight() uint64 {
	p := kv.lastHeight(prefixProposal)
	if a := kv.lastHeight(prefixAttestation); a > p {
		return a
	}
	return p
}

func (kv *KVStore) LatestProposalHeight() uint64 {
	return kv.lastHeight(prefixProposal)
}

func (kv *KVStore) LatestAttestationHeight() uint64 {
	return kv.lastHeight(prefixAttestation)
}

// Heights 返回 [from, to] 内有提案的块高
func (kv *KVStore) Heights(from, to uint64) ([]uint64, error) {
	iter, err := kv.kvDB.Iterator(heightKey(prefixProposal, from), heightKey(prefixProposal, to+1))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []uint64
	for ; iter.Valid(); iter.Next() {
		h, err := decodeHeightKey(prefixProposal, iter.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, iter.Error()
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

func (kv *KVStore) save(key []byte, v interface{}) error {
	bz, err := tmjson.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	if err := kv.kvDB.SetSync(key, bz); err != nil {
		return err
	}
	kv.logger.Debug("saved", "key", fmt.Sprintf("%X", key), "bytes", len(bz))
	return nil
}

func (kv *KVStore) load(key []byte, v interface{}) error {
	bz, err := kv.kvDB.Get(key)
	if err != nil {
		return err
	}
	if len(bz) == 0 {
		return ErrNotFound
	}
	return errors.Wrap(tmjson.Unmarshal(bz, v), "unmarshal")
}

func (kv *KVStore) lastHeight(prefix int64) uint64 {
	iter, err := kv.kvDB.ReverseIterator(heightKey(prefix, 0), heightKey(prefix, math.MaxInt64))
	if err != nil {
		panic(err)
	}
	defer iter.Close()

	if iter.Valid() {
		h, err := decodeHeightKey(prefix, iter.Key())
		if err == nil {
			return h
		}
	}
	if err := iter.Error(); err != nil {
		panic(err)
	}
	return 0
}

//-----------------------------------------------------------------------------

func heightKey(prefix int64, height uint64) []byte {
	key, err := orderedcode.Append(nil, prefix, int64(height))
	if err != nil {
		panic(err)
	}
	return key
}

func decodeHeightKey(prefix int64, key []byte) (uint64, error) {
	var (
		got    int64
		height int64
	)
	remaining, err := orderedcode.Parse(string(key), &got, &height)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if got != prefix {
		return 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefix, got)
	}
	return uint64(height), nil
}

func leaderStateKey() []byte {
	key, err := orderedcode.Append(nil, prefixLeaderState)
	if err != nil {
		panic(err)
	}
	return key
}
