package types

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prysmaticlabs/go-bitfield"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

var (
	ErrDuplicate     = errors.New("duplicate")
	ErrConflicting   = errors.New("conflicting message from the same source")
	ErrWrongHeight   = errors.New("wrong height")
	ErrUnknownSource = errors.New("source is not a validator")
)

// sourceIndex 记录每个验证者在本轮是否已经提交过消息, 每个来源只保留第一次收到的消息
type sourceIndex struct {
	height uint64
	valSet *types.ValidatorSet
	bits   bitfield.Bitlist
	hashes map[p2p.ID]types.Hash
}

func newSourceIndex(height uint64, valSet *types.ValidatorSet) sourceIndex {
	return sourceIndex{
		height: height,
		valSet: valSet,
		bits:   bitfield.NewBitlist(uint64(valSet.Size())),
		hashes: make(map[p2p.ID]types.Hash, valSet.Size()),
	}
}

func (si *sourceIndex) check(height uint64, source p2p.ID, hash types.Hash) (int, *types.Validator, error) {
	if height != si.height {
		return -1, nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongHeight, height, si.height)
	}
	idx, val := si.valSet.GetByPeerID(source)
	if val == nil {
		return -1, nil, fmt.Errorf("%w: %v", ErrUnknownSource, source)
	}
	if seen, ok := si.hashes[source]; ok {
		if seen == hash {
			return -1, nil, ErrDuplicate
		}
		return -1, nil, ErrConflicting
	}
	return idx, val, nil
}

func (si *sourceIndex) mark(idx int, source p2p.ID, hash types.Hash) {
	si.bits.SetBitAt(uint64(idx), true)
	si.hashes[source] = hash
}

func (si *sourceIndex) Height() uint64 {
	return si.height
}

// Size 已经提交过消息的验证者个数
func (si *sourceIndex) Size() int {
	return int(si.bits.Count())
}

func (si *sourceIndex) Has(source p2p.ID) bool {
	_, ok := si.hashes[source]
	return ok
}

func (si *sourceIndex) ValidatorsSize() int {
	return si.valSet.Size()
}

// BitArray 按验证者下标标记已经提交的来源, 返回副本
func (si *sourceIndex) BitArray() bitfield.Bitlist {
	out := make(bitfield.Bitlist, len(si.bits))
	copy(out, si.bits)
	return out
}

// HasQuorum 是否达到 ⌈2n/3⌉
func (si *sourceIndex) HasQuorum() bool {
	return types.HasQuorum(si.Size(), si.valSet.Size())
}

//-----------------------------------------------------------------------------

// PreProposalSet 一轮中收到的 PreProposal, 每个验证者最多一个
// NOTE: Not goroutine-safe.
type PreProposalSet struct {
	sourceIndex
	preProposals map[p2p.ID]*types.PreProposal
}

func NewPreProposalSet(height uint64, valSet *types.ValidatorSet) *PreProposalSet {
	return &PreProposalSet{
		sourceIndex:  newSourceIndex(height, valSet),
		preProposals: make(map[p2p.ID]*types.PreProposal),
	}
}

// Add 校验块高, 来源和签名. 同一来源再次提交返回 ErrDuplicate 或 ErrConflicting
func (s *PreProposalSet) Add(pp *types.PreProposal) error {
	if err := pp.ValidateBasic(); err != nil {
		return err
	}
	hash := pp.Hash()
	idx, val, err := s.check(pp.Height, pp.Source, hash)
	if err != nil {
		return err
	}
	if err := pp.Verify(val); err != nil {
		return err
	}
	s.mark(idx, pp.Source, hash)
	s.preProposals[pp.Source] = pp
	return nil
}

func (s *PreProposalSet) Get(source p2p.ID) *types.PreProposal {
	return s.preProposals[source]
}

// List 按来源排序, 各个节点得到的顺序一致
func (s *PreProposalSet) List() []*types.PreProposal {
	out := make([]*types.PreProposal, 0, len(s.preProposals))
	for _, pp := range s.preProposals {
		out = append(out, pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

//-----------------------------------------------------------------------------

// AggregationSet 一轮中收到的 PreProposalAggregation, 每个验证者最多一个
// NOTE: Not goroutine-safe.
type AggregationSet struct {
	sourceIndex
	aggregations map[p2p.ID]*types.PreProposalAggregation
}

func NewAggregationSet(height uint64, valSet *types.ValidatorSet) *AggregationSet {
	return &AggregationSet{
		sourceIndex:  newSourceIndex(height, valSet),
		aggregations: make(map[p2p.ID]*types.PreProposalAggregation),
	}
}

// Add 同时校验聚合中每一个 PreProposal 的签名
func (s *AggregationSet) Add(agg *types.PreProposalAggregation) error {
	if err := agg.ValidateBasic(); err != nil {
		return err
	}
	hash := agg.Hash()
	if _, _, err := s.check(agg.Height, agg.Source, hash); err != nil {
		return err
	}
	if err := agg.VerifyWith(s.valSet); err != nil {
		return err
	}
	idx, _ := s.valSet.GetByPeerID(agg.Source)
	s.mark(idx, agg.Source, hash)
	s.aggregations[agg.Source] = agg
	return nil
}

func (s *AggregationSet) Get(source p2p.ID) *types.PreProposalAggregation {
	return s.aggregations[source]
}

func (s *AggregationSet) List() []*types.PreProposalAggregation {
	out := make([]*types.PreProposalAggregation, 0, len(s.aggregations))
	for _, agg := range s.aggregations {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
