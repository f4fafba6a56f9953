package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/p2p"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrMissingSource    = errors.New("missing source peer")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrWrongSigner      = errors.New("signer does not match source peer")
)

// PreProposal 是验证者签名的订单集合, 只包含订单哈希
type PreProposal struct {
	Height         uint64           `json:"height"`
	Source         p2p.ID           `json:"source"`
	LimitOrders    []Hash           `json:"limit_orders"`
	SearcherOrders []Hash           `json:"searcher_orders"`
	Signature      tmbytes.HexBytes `json:"signature"`
}

// NewPreProposal 哈希会被排序, 保证签名内容确定
func NewPreProposal(height uint64, source p2p.ID, limit, searcher []Hash) *PreProposal {
	l := append([]Hash{}, limit...)
	s := append([]Hash{}, searcher...)
	SortHashes(l)
	SortHashes(s)
	return &PreProposal{
		Height:         height,
		Source:         source,
		LimitOrders:    l,
		SearcherOrders: s,
	}
}

// SignDigest 签名覆盖 (height, limit hashes, searcher hashes)
func (pp *PreProposal) SignDigest() Hash {
	return RLPHash([]interface{}{"PreProposal", pp.Height, pp.LimitOrders, pp.SearcherOrders})
}

// Hash 内容哈希, 用于聚合签名和去重
func (pp *PreProposal) Hash() Hash {
	return RLPHash([]interface{}{pp.SignDigest(), string(pp.Source), []byte(pp.Signature)})
}

func (pp *PreProposal) ValidateBasic() error {
	if pp.Source == "" {
		return ErrMissingSource
	}
	if len(pp.Signature) == 0 {
		return ErrMissingSignature
	}
	return nil
}

// Verify 检查签名是否属于 val 且 val 就是 Source
func (pp *PreProposal) Verify(val *Validator) error {
	return verifySigned(val, pp.Source, pp.SignDigest(), pp.Signature)
}

func (pp *PreProposal) String() string {
	return fmt.Sprintf("PreProposal{H:%v src:%v limit:%d searcher:%d}",
		pp.Height, pp.Source, len(pp.LimitOrders), len(pp.SearcherOrders))
}

//-----------------------------------------------------------------------------

// PreProposalAggregation 验证者把收到的 PreProposal 聚合后签名
type PreProposalAggregation struct {
	Height       uint64           `json:"height"`
	Source       p2p.ID           `json:"source"`
	PreProposals []*PreProposal   `json:"pre_proposals"`
	Signature    tmbytes.HexBytes `json:"signature"`
}

func NewPreProposalAggregation(height uint64, source p2p.ID, pps []*PreProposal) *PreProposalAggregation {
	return &PreProposalAggregation{
		Height:       height,
		Source:       source,
		PreProposals: pps,
	}
}

func (agg *PreProposalAggregation) SignDigest() Hash {
	hashes := make([]Hash, len(agg.PreProposals))
	for i, pp := range agg.PreProposals {
		hashes[i] = pp.Hash()
	}
	return RLPHash([]interface{}{"PreProposalAggregation", agg.Height, hashes})
}

func (agg *PreProposalAggregation) Hash() Hash {
	return RLPHash([]interface{}{agg.SignDigest(), string(agg.Source), []byte(agg.Signature)})
}

// ValidateBasic 内嵌的 PreProposal 必须是同一高度, 每个来源只能出现一次
// 内嵌签名需要验证者集合, 由 VerifyWith 检查
func (agg *PreProposalAggregation) ValidateBasic() error {
	if agg.Source == "" {
		return ErrMissingSource
	}
	if len(agg.Signature) == 0 {
		return ErrMissingSignature
	}
	if len(agg.PreProposals) == 0 {
		return errors.New("aggregation without pre-proposals")
	}
	seen := make(map[p2p.ID]struct{}, len(agg.PreProposals))
	for i, pp := range agg.PreProposals {
		if pp == nil {
			return fmt.Errorf("nil pre-proposal #%d", i)
		}
		if pp.Height != agg.Height {
			return fmt.Errorf("pre-proposal #%d height %d does not match aggregation height %d", i, pp.Height, agg.Height)
		}
		if err := pp.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid pre-proposal #%d: %w", i, err)
		}
		if _, ok := seen[pp.Source]; ok {
			return fmt.Errorf("duplicate pre-proposal from %v", pp.Source)
		}
		seen[pp.Source] = struct{}{}
	}
	return nil
}

// VerifyWith 校验聚合签名和每一个内嵌 PreProposal 的签名
func (agg *PreProposalAggregation) VerifyWith(vals *ValidatorSet) error {
	_, val := vals.GetByPeerID(agg.Source)
	if val == nil {
		return fmt.Errorf("aggregation source %v is not a validator", agg.Source)
	}
	if err := verifySigned(val, agg.Source, agg.SignDigest(), agg.Signature); err != nil {
		return err
	}
	for _, pp := range agg.PreProposals {
		_, ppVal := vals.GetByPeerID(pp.Source)
		if ppVal == nil {
			return fmt.Errorf("pre-proposal source %v is not a validator", pp.Source)
		}
		if err := pp.Verify(ppVal); err != nil {
			return fmt.Errorf("pre-proposal from %v: %w", pp.Source, err)
		}
	}
	return nil
}

func (agg *PreProposalAggregation) String() string {
	return fmt.Sprintf("PreProposalAggregation{H:%v src:%v pre-proposals:%d}",
		agg.Height, agg.Source, len(agg.PreProposals))
}

func verifySigned(val *Validator, source p2p.ID, digest Hash, sig []byte) error {
	if len(sig) == 0 {
		return ErrMissingSignature
	}
	if val.PeerID != source {
		return ErrWrongSigner
	}
	if !val.VerifySignature(digest, sig) {
		return ErrInvalidSignature
	}
	return nil
}
