package consensus

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

func init() {
	tmjson.RegisterType(&PreProposalMessage{}, "strom/PreProposal")
	tmjson.RegisterType(&AggregationMessage{}, "strom/PreProposalAggregation")
	tmjson.RegisterType(&ProposalMessage{}, "strom/Proposal")
	tmjson.RegisterType(&AttestationMessage{}, "strom/EmptyBlockAttestation")
}

// ------ Message ------
// 节点之间传递的共识消息
type Message interface {
	ValidateBasic() error
}

// EncodeMsg tmjson 编码后用 snappy 压缩
func EncodeMsg(msg Message) ([]byte, error) {
	bz, err := tmjson.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal consensus message")
	}
	return snappy.Encode(nil, bz), nil
}

func DecodeMsg(bz []byte) (Message, error) {
	raw, err := snappy.Decode(nil, bz)
	if err != nil {
		return nil, errors.Wrap(err, "decompress consensus message")
	}
	var msg Message
	if err := tmjson.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal consensus message")
	}
	if msg == nil {
		return nil, errors.New("empty consensus message")
	}
	return msg, nil
}

// messageHeight 消息所属的块高
func messageHeight(msg Message) uint64 {
	switch m := msg.(type) {
	case *PreProposalMessage:
		return m.PreProposal.Height
	case *AggregationMessage:
		return m.Aggregation.Height
	case *ProposalMessage:
		return m.Proposal.Height
	case *AttestationMessage:
		return m.Attestation.Height
	default:
		panic(fmt.Sprintf("unknown consensus message %T", msg))
	}
}

// messageChannel 每种消息走单独的 channel
func messageChannel(msg Message) byte {
	switch msg.(type) {
	case *PreProposalMessage:
		return PreProposalChannel
	case *AggregationMessage:
		return AggregationChannel
	case *ProposalMessage:
		return ProposalChannel
	case *AttestationMessage:
		return AttestationChannel
	default:
		panic(fmt.Sprintf("unknown consensus message %T", msg))
	}
}

//-----------------------------------------------------------------------------

type PreProposalMessage struct {
	PreProposal *types.PreProposal `json:"pre_proposal"`
}

func (msg *PreProposalMessage) ValidateBasic() error {
	if msg.PreProposal == nil {
		return errors.New("nil pre-proposal")
	}
	return msg.PreProposal.ValidateBasic()
}

func (msg *PreProposalMessage) String() string {
	return fmt.Sprintf("[PreProposal %v]", msg.PreProposal)
}

type AggregationMessage struct {
	Aggregation *types.PreProposalAggregation `json:"aggregation"`
}

func (msg *AggregationMessage) ValidateBasic() error {
	if msg.Aggregation == nil {
		return errors.New("nil aggregation")
	}
	return msg.Aggregation.ValidateBasic()
}

func (msg *AggregationMessage) String() string {
	return fmt.Sprintf("[Aggregation %v]", msg.Aggregation)
}

type ProposalMessage struct {
	Proposal *types.Proposal `json:"proposal"`
}

func (msg *ProposalMessage) ValidateBasic() error {
	if msg.Proposal == nil {
		return errors.New("nil proposal")
	}
	return msg.Proposal.ValidateBasic()
}

func (msg *ProposalMessage) String() string {
	return fmt.Sprintf("[Proposal %v]", msg.Proposal)
}

type AttestationMessage struct {
	Attestation *types.EmptyBlockAttestation `json:"attestation"`
}

func (msg *AttestationMessage) ValidateBasic() error {
	if msg.Attestation == nil {
		return errors.New("nil attestation")
	}
	return msg.Attestation.ValidateBasic()
}

func (msg *AttestationMessage) String() string {
	return fmt.Sprintf("[Attestation %v]", msg.Attestation)
}

// ----- MsgInfo -----
// 与reactor之间通信的消息格式, PeerID 为空表示本节点产生
type msgInfo struct {
	Msg    Message
	PeerID p2p.ID
}
