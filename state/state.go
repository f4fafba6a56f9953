package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

var (
	ErrEmptySubmission     = errors.New("submission carries neither bundle nor attestation")
	ErrAmbiguousSubmission = errors.New("submission carries both bundle and attestation")
	ErrSubmissionTimeout   = errors.New("submission was not included in time")
)

// ChainBlock 链上新块, Txs 是块中打包的提交哈希
// FilledOrders 是这些 bundle 中已成交订单的哈希
type ChainBlock struct {
	Number       uint64       `json:"number"`
	Txs          []types.Hash `json:"txs"`
	FilledOrders []types.Hash `json:"filled_orders"`
}

func (b *ChainBlock) Contains(tx types.Hash) bool {
	for _, h := range b.Txs {
		if h == tx {
			return true
		}
	}
	return false
}

func (b *ChainBlock) String() string {
	return fmt.Sprintf("ChainBlock{#%d txs:%d filled:%d}", b.Number, len(b.Txs), len(b.FilledOrders))
}

// ChainClient 提交结算数据并观察链上的新块
type ChainClient interface {
	BlockNumber() uint64

	// Submit 返回交易哈希, 只表示已经发出, 是否打包看 WatchBlocks 推送的块
	Submit(ctx context.Context, sub *Submission) (types.Hash, error)

	// WatchBlocks 订阅新块, ctx 结束后停止推送, channel 不会被关闭
	WatchBlocks(ctx context.Context) <-chan *ChainBlock
}

//-----------------------------------------------------------------------------

// Submission leader 提交上链的内容: bundle 或者空块声明, 二者只能有一个
type Submission struct {
	Signer      p2p.ID                       `json:"signer"`
	TargetBlock uint64                       `json:"target_block"`
	Bundle      *types.Bundle                `json:"bundle,omitempty"`
	Attestation *types.EmptyBlockAttestation `json:"attestation,omitempty"`
}

func NewBundleSubmission(signer p2p.ID, p *types.Proposal) *Submission {
	b := types.NewBundle(p)
	return &Submission{
		Signer:      signer,
		TargetBlock: b.TargetBlock,
		Bundle:      b,
	}
}

func NewAttestationSubmission(signer p2p.ID, a *types.EmptyBlockAttestation) *Submission {
	return &Submission{
		Signer:      signer,
		TargetBlock: a.TargetBlock,
		Attestation: a,
	}
}

func (s *Submission) IsAttestation() bool {
	return s.Attestation != nil
}

func (s *Submission) Hash() types.Hash {
	var payload types.Hash
	if s.Bundle != nil {
		payload = s.Bundle.Hash()
	} else if s.Attestation != nil {
		payload = s.Attestation.Hash()
	}
	return types.RLPHash([]interface{}{"Submission", string(s.Signer), s.TargetBlock, payload})
}

func (s *Submission) ValidateBasic() error {
	switch {
	case s.Bundle == nil && s.Attestation == nil:
		return ErrEmptySubmission
	case s.Bundle != nil && s.Attestation != nil:
		return ErrAmbiguousSubmission
	case s.Bundle != nil && s.Bundle.TargetBlock != s.TargetBlock:
		return fmt.Errorf("bundle targets block %d, submission targets %d", s.Bundle.TargetBlock, s.TargetBlock)
	case s.Attestation != nil && s.Attestation.TargetBlock != s.TargetBlock:
		return fmt.Errorf("attestation targets block %d, submission targets %d", s.Attestation.TargetBlock, s.TargetBlock)
	}
	if s.Signer == "" {
		return types.ErrMissingSource
	}
	return nil
}

// FilledOrders bundle 中成交的限价单与胜出的 searcher 订单
func (s *Submission) FilledOrders() []types.Hash {
	if s.Bundle == nil {
		return nil
	}
	var out []types.Hash
	for _, sol := range s.Bundle.Solutions {
		for _, o := range sol.LimitOrders {
			if o.IsFilled() {
				out = append(out, o.ID)
			}
		}
		if sol.Searcher != nil {
			out = append(out, sol.Searcher.Hash())
		}
	}
	return out
}

func (s *Submission) String() string {
	kind := "bundle"
	if s.IsAttestation() {
		kind = "attestation"
	}
	return fmt.Sprintf("Submission{%s target:%d signer:%v}", kind, s.TargetBlock, s.Signer)
}
