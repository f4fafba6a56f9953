package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
)

const (
	PreProposalChannel = byte(0x40)
	AggregationChannel = byte(0x41)
	ProposalChannel    = byte(0x42)
	AttestationChannel = byte(0x43)

	maxMsgSize = 4 * 1048576 // 提案内嵌全部聚合, 比其他消息大得多
)

const subscriber = "consensus-reactor"

// ------- Reactor ------
// Reactor 负责共识消息在节点之间的收发
// 收到的消息解码后交给 ConsensusState, ConsensusState 接受的新消息通过事件回到这里广播
type Reactor struct {
	p2p.BaseReactor

	consensus *ConsensusState
}

type ReactorOption func(*Reactor)

func NewReactor(consensusState *ConsensusState, options ...ReactorOption) *Reactor {
	conR := &Reactor{
		consensus: consensusState,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)

	for _, option := range options {
		option(conR)
	}

	return conR
}

// SetLogger sets the Logger on the reactor and the underlying ConsensusState.
func (conR *Reactor) SetLogger(l log.Logger) {
	conR.Logger = l
	conR.consensus.SetLogger(l)
}

func (conR *Reactor) OnStart() error {
	if err := conR.subscribeToBroadcastEvents(); err != nil {
		return err
	}
	if !conR.consensus.IsRunning() {
		if err := conR.consensus.Start(); err != nil {
			return err
		}
	}
	conR.Logger.Info("Consensus Reactor started.")
	return nil
}

func (conR *Reactor) OnStop() {
	conR.unsubscribeFromBroadcastEvents()
	if err := conR.consensus.Stop(); err != nil {
		conR.Logger.Error("Error stopping consensus state", "err", err)
	}
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  PreProposalChannel,
			Priority:            6,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  AggregationChannel,
			Priority:            7,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  ProposalChannel,
			Priority:            10,
			SendQueueCapacity:   10,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  AttestationChannel,
			Priority:            10,
			SendQueueCapacity:   10,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	return peer
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.Logger.Debug("Add peer", "peer", peer.ID())
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.Logger.Debug("Remove peer", "peer", peer.ID(), "reason", reason)
}

// Receive 解码后交给 ConsensusState, 验证与去重都在 ConsensusState 中完成
func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive", "src", src, "chID", chID, "bytes", msgBytes)
		return
	}

	msg, err := DecodeMsg(msgBytes)
	if err != nil {
		conR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
		conR.Switch.StopPeerForError(src, err)
		return
	}
	if messageChannel(msg) != chID {
		err := fmt.Errorf("message %T on wrong channel %X", msg, chID)
		conR.Logger.Error("Error receiving message", "src", src, "err", err)
		conR.Switch.StopPeerForError(src, err)
		return
	}

	conR.Logger.Debug("Receive", "src", src.ID(), "chId", chID, "msg", msg)
	select {
	case conR.consensus.peerMsgQueue <- msgInfo{Msg: msg, PeerID: src.ID()}:
	case <-conR.Quit():
	}
}

// subscribeToBroadcastEvents订阅consensus需要广播的消息
func (conR *Reactor) subscribeToBroadcastEvents() error {
	for _, event := range []string{EventPreProposal, EventAggregation, EventProposal, EventAttestation} {
		err := conR.consensus.eventSwitch.AddListenerForEvent(subscriber, event, func(data events.EventData) {
			// consensus已经验证过消息的合法性，这里只要简单的广播即可
			conR.broadcast(data.(Message))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (conR *Reactor) unsubscribeFromBroadcastEvents() {
	conR.consensus.eventSwitch.RemoveListener(subscriber)
}

func (conR *Reactor) broadcast(msg Message) {
	bz, err := EncodeMsg(msg)
	if err != nil {
		conR.Logger.Error("Marshal message failed.", "err", err, "msg", msg)
		return
	}
	conR.Logger.Debug("ready to broadcast", "msg", msg)
	conR.Switch.Broadcast(messageChannel(msg), bz)
}
