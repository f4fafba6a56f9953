// fork from github.com/tendermint/tendermint/types/validator_set.go
package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/p2p"
)

const (
	// MaxTotalVotingPower - the maximum allowed total voting power.
	// It needs to be sufficiently small to, in all cases:
	// 1. prevent clipping in incrementProposerPriority()
	// 2. let (diff+diffMax-1) not overflow in RescalePriorities()
	// (Proof of 1 is tricky, left to the reader).
	// It could be higher, but this is sufficiently large for our purposes,
	// and leaves room for defensive purposes.
	MaxTotalVotingPower = int64(math.MaxInt64) / 8

	// PriorityWindowSizeFactor - is a constant that when multiplied with the
	// total voting power gives the maximum allowed distance between validator
	// priorities.
	PriorityWindowSizeFactor = 2

	// ProposerPenalty 新加入验证者的优先级惩罚系数 1.125, 放大 1000 倍
	ProposerPenalty = 1125

	rescaleFixedPoint = 1000
)

var (
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrValidatorNotFound  = errors.New("validator not found")
)

// ValidatorSet 保存验证者集合以及轮换出块者的状态(RoundLeaderState)
//
// Validators 按 PeerID 升序排列, 下标在集合不变时是固定的
// ChooseProposer 每块调用一次, 按加权轮询选择出块者:
// 每个验证者的优先级加上自己的权重, 优先级最高者当选并减去总权重
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to validators should copy the value for safety.
type ValidatorSet struct {
	// NOTE: persisted via reflect, must be exported.
	Validators   []*Validator `json:"validators"`
	LastProposer p2p.ID       `json:"last_proposer"`
	BlockNumber  uint64       `json:"block_number"`

	// cached (unexported)
	totalVotingPower int64
}

// NewValidatorSet initializes a ValidatorSet by copying over the values from
// `valz`, a list of Validators. blockNumber 是选举状态的起始块高
//
// The peer ids of validators in `valz` must be unique otherwise the function
// panics.
func NewValidatorSet(valz []*Validator, blockNumber uint64) *ValidatorSet {
	vals := &ValidatorSet{BlockNumber: blockNumber}
	vals.Validators = validatorListCopy(valz)
	sort.Sort(ValidatorsByPeerID(vals.Validators))
	for i := 1; i < len(vals.Validators); i++ {
		if vals.Validators[i].PeerID == vals.Validators[i-1].PeerID {
			panic(fmt.Sprintf("%v: %v", ErrDuplicateValidator, vals.Validators[i].PeerID))
		}
	}
	vals.updateTotalVotingPower()
	return vals
}

func (vals *ValidatorSet) ValidateBasic() error {
	if vals.IsNilOrEmpty() {
		return errors.New("validator set is nil or empty")
	}

	for idx, val := range vals.Validators {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if validator set is nil or empty.
func (vals *ValidatorSet) IsNilOrEmpty() bool {
	return vals == nil || len(vals.Validators) == 0
}

// Makes a copy of the validator list.
func validatorListCopy(valsList []*Validator) []*Validator {
	if valsList == nil {
		return nil
	}
	valsCopy := make([]*Validator, len(valsList))
	for i, val := range valsList {
		valsCopy[i] = val.Copy()
	}
	return valsCopy
}

// NewValidatorSetFromState 从持久化的选举状态恢复, 保留优先级和上一个出块者
func NewValidatorSetFromState(saved *ValidatorSet) *ValidatorSet {
	vals := NewValidatorSet(saved.Validators, saved.BlockNumber)
	vals.LastProposer = saved.LastProposer
	return vals
}

// Copy each validator into a new ValidatorSet.
func (vals *ValidatorSet) Copy() *ValidatorSet {
	return &ValidatorSet{
		Validators:       validatorListCopy(vals.Validators),
		LastProposer:     vals.LastProposer,
		BlockNumber:      vals.BlockNumber,
		totalVotingPower: vals.totalVotingPower,
	}
}

// HasPeer returns true if peer id given is in the validator set, false -
// otherwise.
func (vals *ValidatorSet) HasPeer(id p2p.ID) bool {
	idx, _ := vals.GetByPeerID(id)
	return idx >= 0
}

// GetByPeerID returns an index of the validator with the peer id and validator
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByPeerID(id p2p.ID) (index int, val *Validator) {
	idx := sort.Search(len(vals.Validators), func(i int) bool {
		return vals.Validators[i].PeerID >= id
	})
	if idx < len(vals.Validators) && vals.Validators[idx].PeerID == id {
		return idx, vals.Validators[idx].Copy()
	}
	return -1, nil
}

// GetByIndex returns the validator by index.
// It returns nil if index is less than 0 or greater or equal to
// len(ValidatorSet.Validators).
func (vals *ValidatorSet) GetByIndex(index int) *Validator {
	if index < 0 || index >= len(vals.Validators) {
		return nil
	}
	return vals.Validators[index].Copy()
}

// Size returns the length of the validator set.
func (vals *ValidatorSet) Size() int {
	return len(vals.Validators)
}

// TotalVotingPower returns the sum of the voting powers of all validators.
func (vals *ValidatorSet) TotalVotingPower() int64 {
	if vals.totalVotingPower == 0 {
		vals.updateTotalVotingPower()
	}
	return vals.totalVotingPower
}

// Forces recalculation of the set's total voting power.
// Panics if total voting power is bigger than MaxTotalVotingPower.
func (vals *ValidatorSet) updateTotalVotingPower() {
	sum := int64(0)
	for _, val := range vals.Validators {
		// mind overflow
		sum = safeAddClip(sum, val.VotingPower)
		if sum > MaxTotalVotingPower {
			panic(fmt.Sprintf(
				"Total voting power should be guarded to not exceed %v; got: %v",
				MaxTotalVotingPower,
				sum))
		}
	}

	vals.totalVotingPower = sum
}

// ChooseProposer 返回 target 块的出块者
// target 不超过已记录的块高时直接返回缓存的出块者, 不回滚优先级(链重组时各节点可能不一致)
// 落后多块时逐块追赶: 居中、缩放、选举一次
func (vals *ValidatorSet) ChooseProposer(target uint64) p2p.ID {
	if vals.IsNilOrEmpty() {
		return ""
	}
	if target <= vals.BlockNumber && vals.LastProposer != "" {
		return vals.LastProposer
	}

	rounds := uint64(1)
	if target > vals.BlockNumber {
		rounds = target - vals.BlockNumber
	}

	var proposer *Validator
	for i := uint64(0); i < rounds; i++ {
		vals.CenterPriorities()
		vals.RescalePriorities()
		proposer = vals.incrementProposerPriority()
	}

	if target > vals.BlockNumber {
		vals.BlockNumber = target
	}
	vals.LastProposer = proposer.PeerID
	return proposer.PeerID
}

func (vals *ValidatorSet) incrementProposerPriority() *Validator {
	for _, val := range vals.Validators {
		val.ProposerPriority = safeAddClip(val.ProposerPriority, val.VotingPower)
	}

	// 优先级相同时选 PeerID 最小的, Validators 已经按 PeerID 排序
	mostest := vals.Validators[0]
	for _, val := range vals.Validators[1:] {
		if val.ProposerPriority > mostest.ProposerPriority {
			mostest = val
		}
	}

	mostest.ProposerPriority = safeSubClip(mostest.ProposerPriority, vals.TotalVotingPower())
	return mostest
}

// CenterPriorities 所有优先级减去平均值
func (vals *ValidatorSet) CenterPriorities() {
	if vals.IsNilOrEmpty() {
		return
	}
	avg := vals.computeAvgProposerPriority()
	for _, val := range vals.Validators {
		val.ProposerPriority = safeSubClip(val.ProposerPriority, avg)
	}
}

// Should not be called on an empty validator set.
func (vals *ValidatorSet) computeAvgProposerPriority() int64 {
	n := int64(len(vals.Validators))
	sum := big.NewInt(0)
	for _, val := range vals.Validators {
		sum.Add(sum, big.NewInt(val.ProposerPriority))
	}
	avg := sum.Div(sum, big.NewInt(n))
	if avg.IsInt64() {
		return avg.Int64()
	}

	// This should never happen: each val.ProposerPriority is in bounds of int64.
	panic(fmt.Sprintf("Cannot represent avg ProposerPriority as an int64 %v", avg))
}

// RescalePriorities 当最大最小优先级之差超过 2 倍总权重时按比例缩小
// 缩放比例是放大 1000 倍的定点数, 向上取整
func (vals *ValidatorSet) RescalePriorities() {
	if vals.IsNilOrEmpty() {
		return
	}
	diffMax := PriorityWindowSizeFactor * vals.TotalVotingPower()
	diff := computeMaxMinPriorityDiff(vals)
	if diff <= diffMax {
		return
	}

	num := new(big.Int).Mul(big.NewInt(diff), big.NewInt(rescaleFixedPoint))
	num.Add(num, big.NewInt(diffMax-1))
	ratio := num.Quo(num, big.NewInt(diffMax))
	for _, val := range vals.Validators {
		p := new(big.Int).Mul(big.NewInt(val.ProposerPriority), big.NewInt(rescaleFixedPoint))
		val.ProposerPriority = p.Quo(p, ratio).Int64()
	}
}

// Compute the difference between the max and min ProposerPriority of that set.
func computeMaxMinPriorityDiff(vals *ValidatorSet) int64 {
	max := int64(math.MinInt64)
	min := int64(math.MaxInt64)
	for _, v := range vals.Validators {
		if v.ProposerPriority < min {
			min = v.ProposerPriority
		}
		if v.ProposerPriority > max {
			max = v.ProposerPriority
		}
	}
	diff := max - min
	if diff < 0 {
		return -1 * diff
	}
	return diff
}

// AddValidator 加入新的验证者, 初始优先级为 -1.125 倍的总权重, 避免刚加入就当选
func (vals *ValidatorSet) AddValidator(pubKey crypto.PubKey, votingPower int64) error {
	val := NewValidator(pubKey, votingPower)
	if err := val.ValidateBasic(); err != nil {
		return err
	}
	if vals.HasPeer(val.PeerID) {
		return ErrDuplicateValidator
	}

	total := safeAddClip(vals.TotalVotingPower(), val.VotingPower)
	if total > MaxTotalVotingPower {
		return fmt.Errorf("total voting power %d exceeds maximum %d", total, MaxTotalVotingPower)
	}
	penalty := new(big.Int).Mul(big.NewInt(total), big.NewInt(ProposerPenalty))
	val.ProposerPriority = -penalty.Quo(penalty, big.NewInt(rescaleFixedPoint)).Int64()

	vals.Validators = append(vals.Validators, val)
	sort.Sort(ValidatorsByPeerID(vals.Validators))
	vals.updateTotalVotingPower()
	return nil
}

// RemoveValidator 移除验证者, 剩余验证者重新居中
func (vals *ValidatorSet) RemoveValidator(id p2p.ID) error {
	idx, _ := vals.GetByPeerID(id)
	if idx < 0 {
		return ErrValidatorNotFound
	}
	vals.Validators = append(vals.Validators[:idx], vals.Validators[idx+1:]...)
	vals.updateTotalVotingPower()
	vals.CenterPriorities()
	return nil
}

// Hash returns the Merkle root hash build using validators (as leaves) in the
// set.
func (vals *ValidatorSet) Hash() []byte {
	bzs := make([][]byte, len(vals.Validators))
	for i, val := range vals.Validators {
		bzs[i] = []byte(fmt.Sprintf("%s/%d", val.PeerID, val.VotingPower))
	}
	return merkle.HashFromByteSlices(bzs)
}

// Iterate will run the given function over the set.
func (vals *ValidatorSet) Iterate(fn func(index int, val *Validator) bool) {
	for i, val := range vals.Validators {
		stop := fn(i, val.Copy())
		if stop {
			break
		}
	}
}

//----------------

// String returns a string representation of ValidatorSet.
//
// See StringIndented.
func (vals *ValidatorSet) String() string {
	return vals.StringIndented("")
}

// StringIndented returns an intended String.
//
// See Validator#String.
func (vals *ValidatorSet) StringIndented(indent string) string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	var valStrings []string
	vals.Iterate(func(index int, val *Validator) bool {
		valStrings = append(valStrings, val.String())
		return false
	})
	return fmt.Sprintf(`ValidatorSet{
%s  Block:        %v
%s  LastProposer: %v
%s  Validators:
%s    %v
%s}`,
		indent, vals.BlockNumber,
		indent, vals.LastProposer,
		indent,
		indent, strings.Join(valStrings, "\n"+indent+"    "),
		indent)

}

//-------------------------------------

// ValidatorsByPeerID implements sort.Interface for []*Validator based on
// the PeerID field.
type ValidatorsByPeerID []*Validator

func (valz ValidatorsByPeerID) Len() int { return len(valz) }

func (valz ValidatorsByPeerID) Less(i, j int) bool {
	return valz[i].PeerID < valz[j].PeerID
}

func (valz ValidatorsByPeerID) Swap(i, j int) {
	valz[i], valz[j] = valz[j], valz[i]
}

///////////////////////////////////////////////////////////////////////////////
// safe addition/subtraction

func safeAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return -1, true
	} else if b < 0 && a < math.MinInt64-b {
		return -1, true
	}
	return a + b, false
}

func safeSub(a, b int64) (int64, bool) {
	if b > 0 && a < math.MinInt64+b {
		return -1, true
	} else if b < 0 && a > math.MaxInt64+b {
		return -1, true
	}
	return a - b, false
}

func safeAddClip(a, b int64) int64 {
	c, overflow := safeAdd(a, b)
	if overflow {
		if b < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return c
}

func safeSubClip(a, b int64) int64 {
	c, overflow := safeSub(a, b)
	if overflow {
		if b > 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return c
}

//----------------------------------------

// RandValidatorSet returns a randomized validator set (size: +numValidators+),
// where each validator has a voting power of +votingPower+.
// privValidators 与 Validators 的顺序一致
//
// EXPOSED FOR TESTING.
func RandValidatorSet(numValidators int, votingPower int64) (*ValidatorSet, []PrivValidator) {
	var (
		valz           = make([]*Validator, numValidators)
		privValidators = make([]PrivValidator, numValidators)
	)

	for i := 0; i < numValidators; i++ {
		val, privValidator := RandValidator(votingPower)
		valz[i] = val
		privValidators[i] = privValidator
	}

	sort.Sort(PrivValidatorsByPeerID(privValidators))

	return NewValidatorSet(valz, 0), privValidators
}
