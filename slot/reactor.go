package slot

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/state"
)

const (
	SlotChannel = byte(0x10)

	maxMsgSize = 4 * 1048576
)

func init() {
	tmjson.RegisterType(&BlockMessage{}, "strom/ChainBlock")
	tmjson.RegisterType(&SubmissionMessage{}, "strom/Submission")
}

// Message 出块节点与其他节点之间同步开发链的消息
type Message interface {
	ValidateBasic() error
}

// BlockMessage 出块节点广播的新块
type BlockMessage struct {
	Block *state.ChainBlock `json:"block"`
}

func (m *BlockMessage) ValidateBasic() error {
	if m.Block == nil {
		return errors.New("nil block")
	}
	return nil
}

// SubmissionMessage 非出块节点转发给出块节点的提交
type SubmissionMessage struct {
	Submission *state.Submission `json:"submission"`
}

func (m *SubmissionMessage) ValidateBasic() error {
	if m.Submission == nil {
		return errors.New("nil submission")
	}
	return m.Submission.ValidateBasic()
}

func decodeMsg(bz []byte) (Message, error) {
	var msg Message
	if err := tmjson.Unmarshal(bz, &msg); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("empty message")
	}
	return msg, msg.ValidateBasic()
}

//-----------------------------------------------------------------------------

// Reactor 让多节点开发网络共享同一条 DevChain
// 出块节点广播新块并打包收到的提交, 其他节点同步新块并把自己的提交转发出去
type Reactor struct {
	p2p.BaseReactor

	chain *state.DevChain

	mtx    sync.RWMutex
	latest *state.ChainBlock

	cancel context.CancelFunc
}

func NewReactor(chain *state.DevChain) *Reactor {
	slotR := &Reactor{
		chain: chain,
	}
	slotR.BaseReactor = *p2p.NewBaseReactor("Slot", slotR)
	if !chain.IsProducer() {
		chain.SetForwarder(slotR.forward)
	}
	return slotR
}

// InitPeer implements Reactor
func (slotR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	return peer
}

// SetLogger sets the Logger on the reactor.
func (slotR *Reactor) SetLogger(l log.Logger) {
	slotR.Logger = l
}

// OnStart implements p2p.BaseReactor.
func (slotR *Reactor) OnStart() error {
	if slotR.chain.IsProducer() {
		ctx, cancel := context.WithCancel(context.Background())
		slotR.cancel = cancel
		go slotR.broadcastBlocksRoutine(slotR.chain.WatchBlocks(ctx))
	}
	slotR.Logger.Info("Slot Reactor started.", "producer", slotR.chain.IsProducer())
	return nil
}

func (slotR *Reactor) OnStop() {
	if slotR.cancel != nil {
		slotR.cancel()
	}
}

// GetChannels implements Reactor by returning the list of channels for this
// reactor.
func (slotR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  SlotChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

// AddPeer implements Reactor.
// 出块节点把最新的块发给新连上的节点
func (slotR *Reactor) AddPeer(peer p2p.Peer) {
	slotR.mtx.RLock()
	latest := slotR.latest
	slotR.mtx.RUnlock()
	if latest == nil {
		return
	}
	bz, err := tmjson.Marshal(&BlockMessage{Block: latest})
	if err != nil {
		slotR.Logger.Error("Marshal block failed", "err", err)
		return
	}
	peer.Send(SlotChannel, bz)
}

// RemovePeer implements Reactor.
func (slotR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
}

// Receive implements Reactor.
func (slotR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	msg, err := decodeMsg(msgBytes)
	if err != nil {
		slotR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
		slotR.Switch.StopPeerForError(src, err)
		return
	}

	switch msg := msg.(type) {
	case *BlockMessage:
		if slotR.chain.IsProducer() {
			slotR.Logger.Error("Producer received a block", "src", src.ID(), "block", msg.Block)
			return
		}
		if slotR.chain.ApplyBlock(msg.Block) {
			slotR.Logger.Debug("Applied block", "block", msg.Block)
		}
	case *SubmissionMessage:
		if !slotR.chain.IsProducer() {
			return
		}
		if err := slotR.chain.AddSubmission(msg.Submission); err != nil {
			slotR.Logger.Info("Rejected forwarded submission", "src", src.ID(), "err", err)
		}
	default:
		slotR.Logger.Error(fmt.Sprintf("Unknown message type %T", msg))
	}
}

func (slotR *Reactor) forward(sub *state.Submission) {
	bz, err := tmjson.Marshal(&SubmissionMessage{Submission: sub})
	if err != nil {
		slotR.Logger.Error("Marshal submission failed", "err", err)
		return
	}
	slotR.Logger.Debug("Forward submission", "sub", sub)
	slotR.Switch.Broadcast(SlotChannel, bz)
}

func (slotR *Reactor) broadcastBlocksRoutine(blocks <-chan *state.ChainBlock) {
	for {
		select {
		case block := <-blocks:
			slotR.mtx.Lock()
			slotR.latest = block
			slotR.mtx.Unlock()

			bz, err := tmjson.Marshal(&BlockMessage{Block: block})
			if err != nil {
				slotR.Logger.Error("Marshal block failed", "err", err)
				continue
			}
			slotR.Switch.Broadcast(SlotChannel, bz)
		case <-slotR.Quit():
			return
		}
	}
}
