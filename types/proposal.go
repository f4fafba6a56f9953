package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/p2p"
)

// Proposal 是 leader 在本轮给出的最终提案
// 身份由内容哈希决定
type Proposal struct {
	Height       uint64                    `json:"height"`
	Source       p2p.ID                    `json:"source"`
	Aggregations []*PreProposalAggregation `json:"aggregations"`
	Solutions    []*PoolSolution           `json:"solutions"`
	Signature    tmbytes.HexBytes          `json:"signature"`
}

func NewProposal(height uint64, source p2p.ID, aggs []*PreProposalAggregation, sols []*PoolSolution) *Proposal {
	return &Proposal{
		Height:       height,
		Source:       source,
		Aggregations: aggs,
		Solutions:    sols,
	}
}

func (p *Proposal) SolutionsRoot() []byte {
	bzs := make([][]byte, len(p.Solutions))
	for i, sol := range p.Solutions {
		bzs[i] = sol.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

func (p *Proposal) SignDigest() Hash {
	hashes := make([]Hash, len(p.Aggregations))
	for i, agg := range p.Aggregations {
		hashes[i] = agg.Hash()
	}
	return RLPHash([]interface{}{"Proposal", p.Height, hashes, p.SolutionsRoot()})
}

func (p *Proposal) Hash() Hash {
	return RLPHash([]interface{}{p.SignDigest(), string(p.Source), []byte(p.Signature)})
}

func (p *Proposal) ValidateBasic() error {
	if p.Source == "" {
		return ErrMissingSource
	}
	if len(p.Signature) == 0 {
		return ErrMissingSignature
	}
	if len(p.Aggregations) == 0 {
		return errors.New("proposal without aggregations")
	}
	for i, agg := range p.Aggregations {
		if agg == nil {
			return fmt.Errorf("nil aggregation #%d", i)
		}
		if agg.Height != p.Height {
			return fmt.Errorf("aggregation #%d height %d does not match proposal height %d", i, agg.Height, p.Height)
		}
		if err := agg.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid aggregation #%d: %w", i, err)
		}
	}
	for i, sol := range p.Solutions {
		if sol == nil {
			return fmt.Errorf("nil solution #%d", i)
		}
	}
	return nil
}

// VerifyWith 校验 leader 签名以及所有内嵌聚合
func (p *Proposal) VerifyWith(vals *ValidatorSet) error {
	_, val := vals.GetByPeerID(p.Source)
	if val == nil {
		return fmt.Errorf("proposal source %v is not a validator", p.Source)
	}
	if err := verifySigned(val, p.Source, p.SignDigest(), p.Signature); err != nil {
		return err
	}
	for _, agg := range p.Aggregations {
		if err := agg.VerifyWith(vals); err != nil {
			return fmt.Errorf("aggregation from %v: %w", agg.Source, err)
		}
	}
	return nil
}

// OrderHashes 返回所有聚合中出现过的订单哈希, 去重并排序
func OrderHashes(aggs []*PreProposalAggregation) (limit []Hash, searcher []Hash) {
	ls := make(map[Hash]struct{})
	ss := make(map[Hash]struct{})
	for _, agg := range aggs {
		for _, pp := range agg.PreProposals {
			for _, h := range pp.LimitOrders {
				ls[h] = struct{}{}
			}
			for _, h := range pp.SearcherOrders {
				ss[h] = struct{}{}
			}
		}
	}
	for h := range ls {
		limit = append(limit, h)
	}
	for h := range ss {
		searcher = append(searcher, h)
	}
	SortHashes(limit)
	SortHashes(searcher)
	return limit, searcher
}

func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal{H:%v src:%v aggregations:%d solutions:%d}",
		p.Height, p.Source, len(p.Aggregations), len(p.Solutions))
}

//-----------------------------------------------------------------------------

// EmptyBlockAttestation leader 声明 TargetBlock 为空块
type EmptyBlockAttestation struct {
	Height      uint64           `json:"height"`
	TargetBlock uint64           `json:"target_block"`
	Source      p2p.ID           `json:"source"`
	Signature   tmbytes.HexBytes `json:"signature"`
}

func NewEmptyBlockAttestation(height uint64, source p2p.ID) *EmptyBlockAttestation {
	return &EmptyBlockAttestation{
		Height:      height,
		TargetBlock: height + 1,
		Source:      source,
	}
}

func (a *EmptyBlockAttestation) SignDigest() Hash {
	return RLPHash([]interface{}{"EmptyBlockAttestation", a.Height, a.TargetBlock})
}

func (a *EmptyBlockAttestation) Hash() Hash {
	return RLPHash([]interface{}{a.SignDigest(), string(a.Source), []byte(a.Signature)})
}

func (a *EmptyBlockAttestation) ValidateBasic() error {
	if a.Source == "" {
		return ErrMissingSource
	}
	if len(a.Signature) == 0 {
		return ErrMissingSignature
	}
	if a.TargetBlock != a.Height+1 {
		return fmt.Errorf("attestation targets block %d, expected %d", a.TargetBlock, a.Height+1)
	}
	return nil
}

func (a *EmptyBlockAttestation) Verify(val *Validator) error {
	return verifySigned(val, a.Source, a.SignDigest(), a.Signature)
}

func (a *EmptyBlockAttestation) String() string {
	return fmt.Sprintf("EmptyBlockAttestation{H:%v target:%v src:%v}", a.Height, a.TargetBlock, a.Source)
}

//-----------------------------------------------------------------------------

// Bundle 提交上链的结算数据
type Bundle struct {
	TargetBlock  uint64          `json:"target_block"`
	ProposalHash Hash            `json:"proposal_hash"`
	Solutions    []*PoolSolution `json:"solutions"`
}

func NewBundle(p *Proposal) *Bundle {
	return &Bundle{
		TargetBlock:  p.Height + 1,
		ProposalHash: p.Hash(),
		Solutions:    p.Solutions,
	}
}

func (b *Bundle) Hash() Hash {
	return RLPHash([]interface{}{"Bundle", b.TargetBlock, b.ProposalHash})
}
