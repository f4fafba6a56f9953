package consensus

import (
	"context"
	"time"

	"github.com/tendermint/tendermint/p2p"

	cstypes "strom_bft/consensus/types"
	"strom_bft/types"
)

// Phase 一轮中的阶段, 只有本文件中的五种实现
// 各阶段自己的数据放在对应的结构体里, 状态机用 type switch 推进
type Phase interface {
	Step() cstypes.RoundStepType
	phase()
}

// BidAggregationPhase 新块到达后等待订单传播, 收到的消息先缓存
type BidAggregationPhase struct {
	Deadline time.Time
}

// PreProposalPhase 已经广播了自己的 PreProposal, Own 为空表示本节点不是验证者
type PreProposalPhase struct {
	Own *types.PreProposal
}

type PreProposalAggregationPhase struct {
	Own *types.PreProposalAggregation
}

// ProposalPhase 只有 leader 会进入, 等待撮合与上链结果
type ProposalPhase struct {
	StartTime    time.Time
	Aggregations []*types.PreProposalAggregation

	// 撮合完成后二者只有一个非空
	Proposal    *types.Proposal
	Attestation *types.EmptyBlockAttestation
	Submitted   bool
}

// FinalizationPhase 终止状态
type FinalizationPhase struct {
	Outcome cstypes.RoundOutcome
}

func (*BidAggregationPhase) Step() cstypes.RoundStepType {
	return cstypes.RoundStepBidAggregation
}
func (*PreProposalPhase) Step() cstypes.RoundStepType { return cstypes.RoundStepPreProposal }
func (*PreProposalAggregationPhase) Step() cstypes.RoundStepType {
	return cstypes.RoundStepPreProposalAggregation
}
func (*ProposalPhase) Step() cstypes.RoundStepType     { return cstypes.RoundStepProposal }
func (*FinalizationPhase) Step() cstypes.RoundStepType { return cstypes.RoundStepFinalization }

func (*BidAggregationPhase) phase()         {}
func (*PreProposalPhase) phase()            {}
func (*PreProposalAggregationPhase) phase() {}
func (*ProposalPhase) phase()               {}
func (*FinalizationPhase) phase()           {}

//-----------------------------------------------------------------------------

// Round 一个块高对应的一轮共识, 新块到达时整轮丢弃
// NOTE: 只在 receiveRoutine 中修改, 读取需要持有 ConsensusState.mtx
type Round struct {
	Height    uint64
	Leader    p2p.ID
	IsLeader  bool
	StartTime time.Time
	Phase     Phase

	PreProposals *cstypes.PreProposalSet
	Aggregations *cstypes.AggregationSet

	// 本轮接受的唯一结果
	Proposal    *types.Proposal
	Attestation *types.EmptyBlockAttestation

	// BidAggregation 阶段缓存的消息
	buffered    []msgInfo
	maxBuffered int

	// 取消本轮的撮合与提交
	ctx    context.Context
	cancel context.CancelFunc
}

func newRound(parent context.Context, height uint64, leader p2p.ID, isLeader bool,
	vals *types.ValidatorSet, maxBuffered int, deadline time.Time) *Round {
	ctx, cancel := context.WithCancel(parent)
	return &Round{
		Height:       height,
		Leader:       leader,
		IsLeader:     isLeader,
		StartTime:    time.Now(),
		Phase:        &BidAggregationPhase{Deadline: deadline},
		PreProposals: cstypes.NewPreProposalSet(height, vals),
		Aggregations: cstypes.NewAggregationSet(height, vals),
		maxBuffered:  maxBuffered,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// buffer 超出上限时返回 false
func (rd *Round) buffer(mi msgInfo) bool {
	if rd.maxBuffered > 0 && len(rd.buffered) >= rd.maxBuffered {
		return false
	}
	rd.buffered = append(rd.buffered, mi)
	return true
}

func (rd *Round) drainBuffered() []msgInfo {
	out := rd.buffered
	rd.buffered = nil
	return out
}

func (rd *Round) Outcome() cstypes.RoundOutcome {
	if fin, ok := rd.Phase.(*FinalizationPhase); ok {
		return fin.Outcome
	}
	return cstypes.OutcomePending
}

func (rd *Round) Done() bool {
	_, ok := rd.Phase.(*FinalizationPhase)
	return ok
}

// State 导出给 RPC 的摘要
func (rd *Round) State() cstypes.RoundState {
	return cstypes.RoundState{
		Height:       rd.Height,
		Step:         rd.Phase.Step(),
		StartTime:    rd.StartTime,
		Leader:       rd.Leader,
		IsLeader:     rd.IsLeader,
		PreProposals: rd.PreProposals.Size(),
		Aggregations: rd.Aggregations.Size(),
		Quorum:       types.QuorumThreshold(rd.Aggregations.ValidatorsSize()),
		Buffered:     len(rd.buffered),
		Outcome:      rd.Outcome(),
	}
}
