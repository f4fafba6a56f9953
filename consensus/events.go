package consensus

import (
	"context"

	"github.com/tendermint/tendermint/libs/events"
)

// ------ Event ------
// reactor监听的consensus广播事件, 数据是待发送的 Message
const (
	EventPreProposal = "PreProposal"
	EventAggregation = "PreProposalAggregation"
	EventProposal    = "Proposal"
	EventAttestation = "EmptyBlockAttestation"
)

// 对外的订阅, 数据是 TaggedEvent
const (
	SubscribeLeader       = "leader"
	SubscribeValidators   = "validators"
	SubscribeAttestations = "attestations"
	SubscribeProposals    = "proposals"
)

func gossipEvent(msg Message) string {
	switch msg.(type) {
	case *PreProposalMessage:
		return EventPreProposal
	case *AggregationMessage:
		return EventAggregation
	case *ProposalMessage:
		return EventProposal
	default:
		return EventAttestation
	}
}

// TaggedEvent 订阅推送的数据, 带上对应的块高
//
//	leader       -> p2p.ID
//	validators   -> *types.ValidatorSet
//	attestations -> *types.EmptyBlockAttestation
//	proposals    -> *types.Proposal
type TaggedEvent struct {
	Height uint64      `json:"height"`
	Data   interface{} `json:"data"`
}

func (cs *ConsensusState) publish(event string, height uint64, data interface{}) {
	cs.eventSwitch.FireEvent(event, TaggedEvent{Height: height, Data: data})
}

// Subscribe 订阅 leader/validators/attestations/proposals
// 订阅者处理不过来时事件会被丢弃. ctx 结束后取消订阅, channel 不会被关闭
func (cs *ConsensusState) Subscribe(ctx context.Context, subscriber, event string,
	capacity int) (<-chan TaggedEvent, error) {
	switch event {
	case SubscribeLeader, SubscribeValidators, SubscribeAttestations, SubscribeProposals:
	default:
		return nil, ErrUnknownSubscription
	}

	out := make(chan TaggedEvent, capacity)
	err := cs.eventSwitch.AddListenerForEvent(subscriber, event, func(data events.EventData) {
		select {
		case out <- data.(TaggedEvent):
		default:
			cs.Logger.Error("subscriber is too slow, dropping event", "subscriber", subscriber, "event", event)
		}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-cs.Quit():
		}
		cs.eventSwitch.RemoveListenerForEvent(event, subscriber)
	}()
	return out, nil
}
