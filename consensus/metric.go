package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	gometrics "github.com/rcrowley/go-metrics"

	cstypes "strom_bft/consensus/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		roundTimer:    gometrics.NewTimer(),
		matchingTimer: gometrics.NewTimer(),
	}
}

// consensusMetric 通过 rpc metrics 接口导出
type consensusMetric struct {
	mtx sync.RWMutex

	Height         uint64    `json:"height"`
	RoundStartTime time.Time `json:"round_start_time"`
	RoundStep      string    `json:"round_step"`
	IsLeader       bool      `json:"is_leader"`
	Leader         string    `json:"leader"`

	Proposals    int64 `json:"proposals"`    // 本节点见证的定稿提案
	Attestations int64 `json:"attestations"` // 空块声明
	NoOutcome    int64 `json:"no_outcome"`   // leader 提交失败的轮数
	Duplicates   int64 `json:"duplicates"`
	Dropped      int64 `json:"dropped"`

	RoundMeanMs    float64 `json:"round_mean_ms"`
	RoundP99Ms     float64 `json:"round_p99_ms"`
	MatchingMeanMs float64 `json:"matching_mean_ms"`

	roundTimer    gometrics.Timer
	matchingTimer gometrics.Timer
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()

	rs := cm.roundTimer.Snapshot()
	cm.RoundMeanMs = rs.Mean() / float64(time.Millisecond)
	cm.RoundP99Ms = rs.Percentile(0.99) / float64(time.Millisecond)
	cm.MatchingMeanMs = cm.matchingTimer.Snapshot().Mean() / float64(time.Millisecond)

	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkNewRound(height uint64, start time.Time, leader string, isLeader bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Height = height
	cm.RoundStartTime = start
	cm.Leader = leader
	cm.IsLeader = isLeader
	cm.RoundStep = cstypes.RoundStepBidAggregation.String()
}

func (cm *consensusMetric) MarkStep(step cstypes.RoundStepType) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.RoundStep = step.String()
}

func (cm *consensusMetric) MarkOutcome(outcome cstypes.RoundOutcome, start time.Time) {
	cm.roundTimer.UpdateSince(start)

	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	switch outcome {
	case cstypes.OutcomeProposal:
		cm.Proposals++
	case cstypes.OutcomeAttestation:
		cm.Attestations++
	case cstypes.OutcomeNone:
		cm.NoOutcome++
	}
}

func (cm *consensusMetric) MarkMatching(d time.Duration) {
	cm.matchingTimer.Update(d)
}

func (cm *consensusMetric) MarkDuplicate() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Duplicates++
}

func (cm *consensusMetric) MarkDropped() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Dropped++
}
