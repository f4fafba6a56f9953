package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/amm"
	cfg "strom_bft/config"
	cstypes "strom_bft/consensus/types"
	"strom_bft/libs/metric"
	mempl "strom_bft/mempool"
	"strom_bft/matching"
	"strom_bft/state"
	"strom_bft/types"
)

const (
	msgQueueSize      = 1000
	newBlockQueueSize = 16
)

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrNotLeader           = errors.New("message is not from the round leader")
	ErrNoQuorum            = errors.New("proposal aggregations do not reach quorum")
)

// 异步任务的结果, 带上发起时的块高, 过期的结果直接丢弃
type matchingResult struct {
	height    uint64
	solutions []*types.PoolSolution
	gas       matching.GasDetails
	elapsed   time.Duration
	err       error
}

type submitResult struct {
	height uint64
	result state.SubmitResult
	err    error
}

// 共识状态机实现
// 每个块高一轮, 新块到达时丢弃上一轮, 用新的 leader 开始下一轮
type ConsensusState struct {
	service.BaseService

	config *cfg.StromConfig

	privVal types.PrivValidator
	self    p2p.ID

	// 出块者选举状态, 跨轮保留, 只在 receiveRoutine 中修改
	validators *types.ValidatorSet

	mempool mempl.Mempool
	pools   amm.PoolProvider
	engine  *matching.Engine
	chain   state.ChainClient
	store   state.Store

	// 保护 round 和 validators, RPC 通过 GetRoundState 读取
	mtx   sync.RWMutex
	round *Round

	// 通信管道
	peerMsgQueue  chan msgInfo     // 来自其他节点的消息
	newBlockQueue chan uint64      // sign-off 之后的新块
	resultQueue   chan interface{} // 撮合与上链的异步结果
	timeoutTicker TimeoutTicker
	eventSwitch   events.EventSwitch // consensus和reactor之间通信的组件 - 事件模型

	ctx    context.Context
	cancel context.CancelFunc

	metrics *Metrics
	metric  *consensusMetric

	// 方便测试重写逻辑
	solve  func(ctx context.Context, aggs []*types.PreProposalAggregation) ([]*types.PoolSolution, matching.GasDetails, error)
	submit func(ctx context.Context, sub *state.Submission) (state.SubmitResult, error)
}

type ConsensusOption func(*ConsensusState)

func NewConsensusState(
	config *cfg.StromConfig,
	validators *types.ValidatorSet,
	mempool mempl.Mempool,
	pools amm.PoolProvider,
	chain state.ChainClient,
	options ...ConsensusOption,
) *ConsensusState {
	cs := &ConsensusState{
		config:        config,
		validators:    validators,
		mempool:       mempool,
		pools:         pools,
		chain:         chain,
		store:         state.NopStore{},
		peerMsgQueue:  make(chan msgInfo, msgQueueSize),
		newBlockQueue: make(chan uint64, newBlockQueueSize),
		resultQueue:   make(chan interface{}, 1),
		timeoutTicker: NewTimeoutTicker(),
		eventSwitch:   events.NewEventSwitch(),
		metrics:       NopMetrics(),
		metric:        newConsensusMetric(),
	}
	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.solve = cs.defaultSolve
	cs.submit = cs.defaultSubmit

	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}
	if cs.engine == nil {
		cs.engine = matching.NewEngine(config.Workers(), cs.Logger)
	}
	cs.metrics.Validators.Set(float64(validators.Size()))

	return cs
}

// SetPrivValidator 没有设置时节点只跟随, 不签名任何消息
func SetPrivValidator(pv types.PrivValidator) ConsensusOption {
	return func(cs *ConsensusState) {
		id, err := types.PeerIDOf(pv)
		if err != nil {
			panic(fmt.Sprintf("failed to get private validator id: %v", err))
		}
		cs.privVal = pv
		cs.self = id
	}
}

func SetStore(store state.Store) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.store = store
	}
}

func SetMetrics(metrics *Metrics) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.metrics = metrics
	}
}

func SetEngine(engine *matching.Engine) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.engine = engine
	}
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.Logger = logger
	cs.timeoutTicker.SetLogger(logger)
	cs.engine.SetLogger(logger.With("module", "matching"))
}

func (cs *ConsensusState) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}
	if err := cs.timeoutTicker.Start(); err != nil {
		return err
	}
	go cs.receiveRoutine()
	cs.Logger.Info("consensus receive routines started.", "self", cs.self, "validators", cs.validators.Size())
	return nil
}

func (cs *ConsensusState) OnStop() {
	cs.cancel()
	if err := cs.timeoutTicker.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop timeoutTicker", "error", err)
	}
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
	cs.Logger.Info("consensus server stopped.")
}

// NewBlock 块高前进时调用, 不会阻塞
func (cs *ConsensusState) NewBlock(height uint64) {
	select {
	case cs.newBlockQueue <- height:
	default:
		cs.Logger.Debug("new block queue is full; using a go-routine")
		go func() {
			select {
			case cs.newBlockQueue <- height:
			case <-cs.Quit():
			}
		}()
	}
}

// receiveRoutine负责接收所有的消息
// 所有对 round 的修改都在这个 goroutine 中完成
func (cs *ConsensusState) receiveRoutine() {
	cs.Logger.Debug("consensus receive routine starts.")
	for {
		select {
		case <-cs.Quit():
			cs.Logger.Info("receiveRoutine quit.")
			return

		case height := <-cs.newBlockQueue:
			cs.handleNewBlock(height)

		case mi := <-cs.peerMsgQueue:
			cs.handleMsg(mi)

		case ti := <-cs.timeoutTicker.Chan():
			cs.handleTimeout(ti)

		case res := <-cs.resultQueue:
			cs.handleResult(res)
		}
	}
}

func (cs *ConsensusState) handleNewBlock(height uint64) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	cs.enterNewRound(height)
}

// handleMsg 丢弃其他块高的消息, BidAggregation 阶段先缓存
func (cs *ConsensusState) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	rd := cs.round
	if rd == nil {
		cs.dropMsg(mi, "no_round")
		return
	}
	if err := mi.Msg.ValidateBasic(); err != nil {
		cs.Logger.Error("Dropped malformed message", "peer", mi.PeerID, "err", err)
		cs.countDropped("invalid")
		return
	}
	if h := messageHeight(mi.Msg); h != rd.Height {
		cs.dropMsg(mi, "height")
		return
	}

	if _, ok := rd.Phase.(*BidAggregationPhase); ok {
		if !rd.buffer(mi) {
			cs.Logger.Error("Message buffer is full", "height", rd.Height, "peer", mi.PeerID)
			cs.countDropped("buffer")
		}
		return
	}

	cs.processMsg(mi)
	cs.advanceRound()
}

func (cs *ConsensusState) dropMsg(mi msgInfo, reason string) {
	var height interface{} = "none"
	if cs.round != nil {
		height = cs.round.Height
	}
	cs.Logger.Debug("Dropped message", "reason", reason, "msg", mi.Msg, "peer", mi.PeerID, "height", height)
	cs.countDropped(reason)
}

func (cs *ConsensusState) countDropped(reason string) {
	cs.metrics.DroppedMessages.With("reason", reason).Add(1)
	cs.metric.MarkDropped()
}

// processMsg 把消息加入本轮, 新接受的消息通过 reactor 转发一次
func (cs *ConsensusState) processMsg(mi msgInfo) {
	rd := cs.round

	switch msg := mi.Msg.(type) {
	case *PreProposalMessage:
		if cs.rejected("pre-proposal", rd.PreProposals.Add(msg.PreProposal), mi) {
			return
		}
		cs.Logger.Debug("added pre-proposal", "height", rd.Height, "source", msg.PreProposal.Source,
			"count", rd.PreProposals.Size())
		cs.metrics.PreProposals.Set(float64(rd.PreProposals.Size()))
		cs.gossip(msg)

	case *AggregationMessage:
		if cs.rejected("aggregation", rd.Aggregations.Add(msg.Aggregation), mi) {
			return
		}
		cs.Logger.Debug("added aggregation", "height", rd.Height, "source", msg.Aggregation.Source,
			"count", rd.Aggregations.Size())
		cs.metrics.Aggregations.Set(float64(rd.Aggregations.Size()))
		cs.gossip(msg)

	case *ProposalMessage:
		if cs.rejected("proposal", cs.setProposal(msg.Proposal), mi) {
			return
		}
		cs.Logger.Info("accepted proposal", "height", rd.Height, "leader", rd.Leader,
			"solutions", len(msg.Proposal.Solutions))
		cs.gossip(msg)

	case *AttestationMessage:
		if cs.rejected("attestation", cs.setAttestation(msg.Attestation), mi) {
			return
		}
		cs.Logger.Info("accepted empty block attestation", "height", rd.Height, "leader", rd.Leader)
		cs.gossip(msg)

	default:
		cs.Logger.Error("Unknown msg type", "type", fmt.Sprintf("%T", msg))
	}
}

// rejected 记录被拒绝的消息, 重复消息只在 debug 级别记录
func (cs *ConsensusState) rejected(kind string, err error, mi msgInfo) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, cstypes.ErrDuplicate) {
		cs.Logger.Debug("duplicate", "type", kind, "height", messageHeight(mi.Msg), "peer", mi.PeerID)
		cs.metrics.DroppedMessages.With("reason", "duplicate").Add(1)
		cs.metric.MarkDuplicate()
		return true
	}
	cs.Logger.Error("Dropped invalid message", "type", kind, "peer", mi.PeerID, "err", err)
	cs.countDropped("invalid")
	return true
}

// setProposal 每轮只接受 leader 的一个提案
func (cs *ConsensusState) setProposal(p *types.Proposal) error {
	rd := cs.round
	if err := cs.checkResult(p.Source, p.Hash()); err != nil {
		return err
	}
	sources := make(map[p2p.ID]struct{}, len(p.Aggregations))
	for _, agg := range p.Aggregations {
		sources[agg.Source] = struct{}{}
	}
	if !types.HasQuorum(len(sources), cs.validators.Size()) {
		return ErrNoQuorum
	}
	if err := p.VerifyWith(cs.validators); err != nil {
		return err
	}

	rd.Proposal = p
	if err := cs.store.SaveProposal(p); err != nil {
		cs.Logger.Error("failed to save proposal", "height", p.Height, "err", err)
	}
	return nil
}

func (cs *ConsensusState) setAttestation(a *types.EmptyBlockAttestation) error {
	rd := cs.round
	if err := cs.checkResult(a.Source, a.Hash()); err != nil {
		return err
	}
	_, val := cs.validators.GetByPeerID(a.Source)
	if err := a.Verify(val); err != nil {
		return err
	}

	rd.Attestation = a
	if err := cs.store.SaveAttestation(a); err != nil {
		cs.Logger.Error("failed to save attestation", "height", a.Height, "err", err)
	}
	return nil
}

// checkResult 提案和空块声明共用的检查: 来源必须是 leader, 每轮只有一个结果
func (cs *ConsensusState) checkResult(source p2p.ID, hash types.Hash) error {
	rd := cs.round
	if source != rd.Leader {
		return errors.Wrapf(ErrNotLeader, "got %v, leader %v", source, rd.Leader)
	}
	switch {
	case rd.Proposal != nil && rd.Proposal.Hash() == hash:
		return cstypes.ErrDuplicate
	case rd.Attestation != nil && rd.Attestation.Hash() == hash:
		return cstypes.ErrDuplicate
	case rd.Proposal != nil || rd.Attestation != nil:
		return cstypes.ErrConflicting
	case rd.IsLeader:
		// 本节点的结果只能来自自己的提交流程
		return errors.New("received a result for a round led by this node")
	}
	return nil
}

// handleTimeOut 目前只有 BidAggregation 的等待超时
func (cs *ConsensusState) handleTimeout(ti timeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	rd := cs.round
	if rd == nil || ti.Height != rd.Height {
		cs.Logger.Debug("Ignoring expired timeout", "timeout", ti.String())
		return
	}
	switch ti.Step {
	case cstypes.RoundStepBidAggregation:
		if _, ok := rd.Phase.(*BidAggregationPhase); !ok {
			return
		}
		cs.enterPreProposal()
		cs.advanceRound()
	default:
		panic(fmt.Sprintf("invalid timeout step: %v", ti.Step))
	}
}

func (cs *ConsensusState) handleResult(res interface{}) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	switch r := res.(type) {
	case matchingResult:
		cs.handleMatchingResult(r)
	case submitResult:
		cs.handleSubmitResult(r)
	default:
		panic(fmt.Sprintf("unknown async result %T", res))
	}
}

//-----------------------------------------------------------------------------
// 状态转移

// advanceRound 按当前阶段检查是否可以前进, 直到不能再前进
func (cs *ConsensusState) advanceRound() {
	rd := cs.round
	for {
		switch phase := rd.Phase.(type) {
		case *BidAggregationPhase:
			return

		case *PreProposalPhase:
			// 已经收到结果的跟随者不用再聚合
			if cs.hasResult() {
				cs.enterFinalization(cs.resultOutcome())
				return
			}
			if rd.PreProposals.Size() == 0 {
				return
			}
			cs.enterPreProposalAggregation()

		case *PreProposalAggregationPhase:
			if cs.hasResult() {
				cs.enterFinalization(cs.resultOutcome())
				return
			}
			if !rd.IsLeader || !rd.Aggregations.HasQuorum() {
				return
			}
			cs.enterProposal()

		case *ProposalPhase, *FinalizationPhase:
			return

		default:
			panic(fmt.Sprintf("unknown round phase %T", phase))
		}
	}
}

func (cs *ConsensusState) hasResult() bool {
	return cs.round.Proposal != nil || cs.round.Attestation != nil
}

func (cs *ConsensusState) resultOutcome() cstypes.RoundOutcome {
	if cs.round.Proposal != nil {
		return cstypes.OutcomeProposal
	}
	return cstypes.OutcomeAttestation
}

func (cs *ConsensusState) setPhase(p Phase) {
	rd := cs.round
	cs.Logger.Debug("enter step", "height", rd.Height, "step", p.Step())
	rd.Phase = p
	cs.metrics.Step.Set(float64(p.Step()))
	cs.metric.MarkStep(p.Step())
}

// enterNewRound 丢弃上一轮, 选出新的 leader 并等待订单传播
func (cs *ConsensusState) enterNewRound(height uint64) {
	if old := cs.round; old != nil {
		if height <= old.Height {
			cs.Logger.Debug("Ignoring old block", "height", height, "round", old.Height)
			return
		}
		if !old.Done() {
			cs.Logger.Info("Abandoning unfinished round", "height", old.Height, "step", old.Phase.Step())
			cs.metrics.RoundOutcomes.With("outcome", "abandoned").Add(1)
		}
		old.cancel()
	}

	leader := cs.validators.ChooseProposer(height)
	if err := cs.store.SaveLeaderState(cs.validators); err != nil {
		cs.Logger.Error("failed to save leader state", "height", height, "err", err)
	}
	isLeader := cs.self != "" && leader == cs.self

	wait := cs.config.ConsensusWaitDuration
	cs.round = newRound(cs.ctx, height, leader, isLeader, cs.validators,
		cs.config.MaxBufferedMessages, time.Now().Add(wait))
	cs.Logger.Info("enter new round", "height", height, "leader", leader, "isLeader", isLeader)

	cs.metrics.Height.Set(float64(height))
	cs.metrics.Step.Set(float64(cstypes.RoundStepBidAggregation))
	cs.metrics.PreProposals.Set(0)
	cs.metrics.Aggregations.Set(0)
	if isLeader {
		cs.metrics.IsLeader.Set(1)
	} else {
		cs.metrics.IsLeader.Set(0)
	}
	cs.metric.MarkNewRound(height, cs.round.StartTime, string(leader), isLeader)

	cs.publish(SubscribeLeader, height, leader)
	cs.publish(SubscribeValidators, height, cs.validators.Copy())

	cs.timeoutTicker.ScheduleTimeout(timeoutInfo{Duration: wait, Height: height, Step: cstypes.RoundStepBidAggregation})
}

// enterPreProposal 等待结束: 用本地订单快照签名 PreProposal, 然后处理缓存的消息
func (cs *ConsensusState) enterPreProposal() {
	rd := cs.round
	if _, ok := rd.Phase.(*BidAggregationPhase); !ok {
		panic(fmt.Sprintf("wrong step, expected: %v, actual: %v", cstypes.RoundStepBidAggregation, rd.Phase.Step()))
	}

	var own *types.PreProposal
	if cs.privVal != nil {
		own = cs.signPreProposal(rd.Height)
	}
	cs.setPhase(&PreProposalPhase{Own: own})

	if own != nil {
		if err := rd.PreProposals.Add(own); err != nil {
			cs.Logger.Error("failed to add own pre-proposal", "err", err)
		} else {
			cs.gossip(&PreProposalMessage{PreProposal: own})
		}
	}

	buffered := rd.drainBuffered()
	if len(buffered) > 0 {
		cs.Logger.Debug("replaying buffered messages", "height", rd.Height, "count", len(buffered))
	}
	for _, mi := range buffered {
		cs.processMsg(mi)
	}
}

func (cs *ConsensusState) signPreProposal(height uint64) *types.PreProposal {
	limit := cs.mempool.GetAllOrders()
	limitHashes := make([]types.Hash, len(limit))
	for i, o := range limit {
		limitHashes[i] = o.Hash()
	}
	var searcherHashes []types.Hash
	for _, orders := range cs.mempool.GetSearcherOrders() {
		for _, o := range orders {
			searcherHashes = append(searcherHashes, o.Hash())
		}
	}

	pp := types.NewPreProposal(height, cs.self, limitHashes, searcherHashes)
	if err := cs.privVal.SignPreProposal(pp); err != nil {
		cs.Logger.Error("sign pre-proposal failed", "err", err)
		return nil
	}
	cs.Logger.Info("signed pre-proposal", "height", height,
		"limitOrders", len(limitHashes), "searcherOrders", len(searcherHashes))
	return pp
}

// enterPreProposalAggregation 聚合目前收到的所有 PreProposal
func (cs *ConsensusState) enterPreProposalAggregation() {
	rd := cs.round
	pps := rd.PreProposals.List()
	if len(pps) == 0 {
		panic("aggregation without any pre-proposals")
	}

	var own *types.PreProposalAggregation
	if cs.privVal != nil {
		agg := types.NewPreProposalAggregation(rd.Height, cs.self, pps)
		if err := cs.privVal.SignAggregation(agg); err != nil {
			cs.Logger.Error("sign aggregation failed", "err", err)
		} else {
			own = agg
		}
	}
	cs.setPhase(&PreProposalAggregationPhase{Own: own})

	if own != nil {
		if err := rd.Aggregations.Add(own); err != nil {
			cs.Logger.Error("failed to add own aggregation", "err", err)
			return
		}
		cs.Logger.Info("signed aggregation", "height", rd.Height, "preProposals", len(pps))
		cs.metrics.Aggregations.Set(float64(rd.Aggregations.Size()))
		cs.gossip(&AggregationMessage{Aggregation: own})
	}
}

// enterProposal leader 达到 quorum 后异步撮合
func (cs *ConsensusState) enterProposal() {
	rd := cs.round
	if !rd.IsLeader {
		panic("only the leader can enter the proposal step")
	}
	aggs := rd.Aggregations.List()
	cs.setPhase(&ProposalPhase{StartTime: time.Now(), Aggregations: aggs})
	cs.Logger.Info("I'm leader, prepare to propose.", "height", rd.Height, "aggregations", len(aggs))

	height, ctx := rd.Height, rd.ctx
	go func() {
		start := time.Now()
		sols, gas, err := cs.solve(ctx, aggs)
		cs.sendResult(matchingResult{
			height:    height,
			solutions: sols,
			gas:       gas,
			elapsed:   time.Since(start),
			err:       err,
		})
	}()
}

func (cs *ConsensusState) defaultSolve(ctx context.Context,
	aggs []*types.PreProposalAggregation) ([]*types.PoolSolution, matching.GasDetails, error) {
	limitHashes, searcherHashes := types.OrderHashes(aggs)
	orders, searchers := cs.mempool.GetOrders(limitHashes, searcherHashes)
	if missing := len(limitHashes) - len(orders); missing > 0 {
		cs.Logger.Info("orders referenced by aggregations are missing locally", "missing", missing)
	}
	return cs.engine.Solve(ctx, orders, searchers, cs.pools.FetchPoolSnapshots())
}

func (cs *ConsensusState) handleMatchingResult(r matchingResult) {
	rd := cs.round
	if rd == nil || r.height != rd.Height {
		cs.Logger.Debug("Discarding stale matching result", "height", r.height)
		return
	}
	phase, ok := rd.Phase.(*ProposalPhase)
	if !ok || phase.Submitted {
		cs.Logger.Debug("Discarding unexpected matching result", "height", r.height, "step", rd.Phase.Step())
		return
	}
	cs.metrics.MatchingDuration.Observe(r.elapsed.Seconds())
	cs.metric.MarkMatching(r.elapsed)

	var sub *state.Submission
	switch {
	case r.err != nil:
		cs.Logger.Error("matching failed, attesting empty block", "height", rd.Height, "err", r.err)
	case !hasFills(r.solutions):
		cs.Logger.Info("no orders filled, attesting empty block", "height", rd.Height)
	default:
		p := types.NewProposal(rd.Height, cs.self, phase.Aggregations, r.solutions)
		if err := cs.privVal.SignProposal(p); err != nil {
			cs.Logger.Error("sign proposal failed", "err", err)
			cs.enterFinalization(cstypes.OutcomeNone)
			return
		}
		cs.Logger.Info("got proposal", "proposal", p, "gas", r.gas.Total)
		phase.Proposal = p
		sub = state.NewBundleSubmission(cs.self, p)
	}
	if sub == nil {
		a := types.NewEmptyBlockAttestation(rd.Height, cs.self)
		if err := cs.privVal.SignAttestation(a); err != nil {
			cs.Logger.Error("sign attestation failed", "err", err)
			cs.enterFinalization(cstypes.OutcomeNone)
			return
		}
		phase.Attestation = a
		sub = state.NewAttestationSubmission(cs.self, a)
	}

	phase.Submitted = true
	height, ctx := rd.Height, rd.ctx
	go func() {
		res, err := cs.submit(ctx, sub)
		cs.sendResult(submitResult{height: height, result: res, err: err})
	}()
}

func hasFills(sols []*types.PoolSolution) bool {
	for _, sol := range sols {
		if sol.Searcher != nil {
			return true
		}
		for _, o := range sol.LimitOrders {
			if o.IsFilled() {
				return true
			}
		}
	}
	return false
}

func (cs *ConsensusState) defaultSubmit(ctx context.Context, sub *state.Submission) (state.SubmitResult, error) {
	return state.SubmitAndWait(ctx, cs.chain, sub,
		cs.config.SubmissionPollInterval, cs.config.SubmissionTimeoutBlocks)
}

// handleSubmitResult 上链确认之后才广播
func (cs *ConsensusState) handleSubmitResult(r submitResult) {
	rd := cs.round
	if rd == nil || r.height != rd.Height {
		cs.Logger.Debug("Discarding stale submission result", "height", r.height)
		return
	}
	phase, ok := rd.Phase.(*ProposalPhase)
	if !ok {
		return
	}
	if r.err != nil {
		cs.Logger.Error("submission failed, round ends without proposal", "height", rd.Height, "err", r.err)
		cs.enterFinalization(cstypes.OutcomeNone)
		return
	}
	cs.Logger.Info("submission included", "height", rd.Height, "tx", r.result.Tx, "block", r.result.Block)

	if phase.Proposal != nil {
		rd.Proposal = phase.Proposal
		if err := cs.store.SaveProposal(rd.Proposal); err != nil {
			cs.Logger.Error("failed to save proposal", "height", rd.Height, "err", err)
		}
		cs.gossip(&ProposalMessage{Proposal: rd.Proposal})
		cs.enterFinalization(cstypes.OutcomeProposal)
		return
	}
	rd.Attestation = phase.Attestation
	if err := cs.store.SaveAttestation(rd.Attestation); err != nil {
		cs.Logger.Error("failed to save attestation", "height", rd.Height, "err", err)
	}
	cs.gossip(&AttestationMessage{Attestation: rd.Attestation})
	cs.enterFinalization(cstypes.OutcomeAttestation)
}

// enterFinalization 本轮的终止状态, 结果推送给订阅者
func (cs *ConsensusState) enterFinalization(outcome cstypes.RoundOutcome) {
	rd := cs.round
	cs.setPhase(&FinalizationPhase{Outcome: outcome})

	switch outcome {
	case cstypes.OutcomeProposal:
		cs.metrics.Solutions.Observe(float64(len(rd.Proposal.Solutions)))
		cs.publish(SubscribeProposals, rd.Height, rd.Proposal)
	case cstypes.OutcomeAttestation:
		cs.publish(SubscribeAttestations, rd.Height, rd.Attestation)
	}
	cs.metrics.RoundOutcomes.With("outcome", outcome.String()).Add(1)
	cs.metrics.RoundDuration.Observe(time.Since(rd.StartTime).Seconds())
	cs.metric.MarkOutcome(outcome, rd.StartTime)
	cs.Logger.Info("finalized round", "height", rd.Height, "outcome", outcome,
		"elapsed", time.Since(rd.StartTime))
}

//-----------------------------------------------------------------------------

// gossip 通知 reactor 广播
func (cs *ConsensusState) gossip(msg Message) {
	cs.eventSwitch.FireEvent(gossipEvent(msg), msg)
}

// sendResult 直接写可能会因为receiveRoutine blocked从而导致本协程block
func (cs *ConsensusState) sendResult(res interface{}) {
	select {
	case cs.resultQueue <- res:
	case <-cs.Quit():
	}
}

// GetRoundState 当前一轮的摘要, 还没有收到第一个块时返回 nil
func (cs *ConsensusState) GetRoundState() *cstypes.RoundState {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	if cs.round == nil {
		return nil
	}
	rs := cs.round.State()
	return &rs
}

// GetValidators 返回选举状态的副本
func (cs *ConsensusState) GetValidators() *types.ValidatorSet {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.validators.Copy()
}

// GetLeader 当前一轮的 leader 和块高
func (cs *ConsensusState) GetLeader() (p2p.ID, uint64) {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	if cs.round == nil {
		return "", 0
	}
	return cs.round.Leader, cs.round.Height
}

func (cs *ConsensusState) Metric() metric.MetricItem {
	return cs.metric
}

func (cs *ConsensusState) Self() p2p.ID {
	return cs.self
}
