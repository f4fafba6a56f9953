package types

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/p2p"
)

//-----------------------------------------------------------------------------
// RoundStepType enum type

// RoundStepType enumerates the state of the consensus state machine
type RoundStepType uint8

// RoundStepType
const (
	RoundStepBidAggregation         = RoundStepType(0x01) // 新块到达后等待收集订单
	RoundStepPreProposal            = RoundStepType(0x02) // 已广播自己的 PreProposal
	RoundStepPreProposalAggregation = RoundStepType(0x03) // 已广播自己的聚合, 等待 quorum 或提案
	RoundStepProposal               = RoundStepType(0x04) // 只有 leader: 撮合并提交上链
	RoundStepFinalization           = RoundStepType(0x05) // 本轮结束
)

func (rs RoundStepType) IsValid() bool {
	return rs >= RoundStepBidAggregation && rs <= RoundStepFinalization
}

func (rs RoundStepType) String() string {
	switch rs {
	case RoundStepBidAggregation:
		return "RoundStepBidAggregation"
	case RoundStepPreProposal:
		return "RoundStepPreProposal"
	case RoundStepPreProposalAggregation:
		return "RoundStepPreProposalAggregation"
	case RoundStepProposal:
		return "RoundStepProposal"
	case RoundStepFinalization:
		return "RoundStepFinalization"
	default:
		return "RoundStepUnknown"
	}
}

// RoundOutcome 一轮对外可见的结果
type RoundOutcome uint8

const (
	OutcomePending = RoundOutcome(iota)
	OutcomeProposal
	OutcomeAttestation
	// 提交失败或超时, 本轮没有结果
	OutcomeNone
)

func (o RoundOutcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeProposal:
		return "proposal"
	case OutcomeAttestation:
		return "attestation"
	case OutcomeNone:
		return "none"
	default:
		return "unknown"
	}
}

// RoundState 当前一轮的摘要, 通过 RPC 导出
type RoundState struct {
	Height       uint64        `json:"height"`
	Step         RoundStepType `json:"step"`
	StartTime    time.Time     `json:"start_time"`
	Leader       p2p.ID        `json:"leader"`
	IsLeader     bool          `json:"is_leader"`
	PreProposals int           `json:"pre_proposals"`
	Aggregations int           `json:"aggregations"`
	Quorum       int           `json:"quorum"`
	Buffered     int           `json:"buffered"`
	Outcome      RoundOutcome  `json:"outcome"`
}

func (rs RoundState) String() string {
	return fmt.Sprintf("RoundState{H:%v %v leader:%v pp:%d agg:%d/%d %v}",
		rs.Height, rs.Step, rs.Leader, rs.PreProposals, rs.Aggregations, rs.Quorum, rs.Outcome)
}
