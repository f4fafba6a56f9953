package mempool

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	"strom_bft/types"
)

const (
	MempoolChannel = byte(0x20)

	// UnknownPeerID 是通过 RPC 加入的订单的来源
	UnknownPeerID uint16 = 0

	peerCatchupSleepInterval = 100 * time.Millisecond

	// 一条消息最多携带的订单数
	maxBatchOrders = 64

	maxActiveIDs = math.MaxUint16
)

var ErrBatchTooLarge = errors.New("order batch too large")

// Reactor 在节点之间广播订单, 每条消息是 snappy 压缩后的一批 rlp 编码订单
type Reactor struct {
	p2p.BaseReactor

	config  *config.MempoolConfig
	mempool *ListMempool
	ids     *peerIDs
}

func NewReactor(config *config.MempoolConfig, mempool *ListMempool) *Reactor {
	memR := &Reactor{
		config:  config,
		mempool: mempool,
		ids:     newPeerIDs(),
	}
	memR.BaseReactor = *p2p.NewBaseReactor("Mempool", memR)
	return memR
}

// SetLogger 同时设置 mempool 的 logger
func (memR *Reactor) SetLogger(l log.Logger) {
	memR.Logger = l
	memR.mempool.SetLogger(l)
}

func (memR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  MempoolChannel,
			Priority:            5,
			RecvMessageCapacity: maxBatchBytes(memR.config.MaxTxBytes),
		},
	}
}

func (memR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	memR.ids.reserve(peer.ID())
	return peer
}

func (memR *Reactor) AddPeer(peer p2p.Peer) {
	if memR.config.Broadcast {
		go memR.broadcastOrdersRoutine(peer)
	}
}

// RemovePeer 广播 routine 自己检查 peer 是否退出
func (memR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	memR.ids.release(peer.ID())
}

func (memR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	orders, err := decodeBatch(msgBytes)
	if err != nil {
		memR.Logger.Error("Error decoding order batch", "src", src, "chId", chID, "err", err)
		memR.Switch.StopPeerForError(src, err)
		return
	}

	info := OrderInfo{SenderID: memR.ids.get(src.ID()), SenderP2PID: src.ID()}
	for _, order := range orders {
		memR.mempool.Metric().MarkReceived()
		if err := memR.mempool.CheckOrder(order, info); err != nil {
			memR.mempool.Metric().MarkRejected()
			memR.Logger.Debug("Could not check order", "order", order.Hash(), "err", err)
		}
	}
}

func (memR *Reactor) broadcastOrdersRoutine(peer p2p.Peer) {
	peerID := memR.ids.get(peer.ID())
	var next *clist.CElement

	for {
		if !memR.IsRunning() || !peer.IsRunning() {
			return
		}

		if next == nil {
			select {
			case <-memR.mempool.OrdersWaitChan():
				if next = memR.mempool.OrdersFront(); next == nil {
					continue
				}
			case <-peer.Quit():
				return
			case <-memR.Quit():
				return
			}
		}

		batch, last := memR.collectBatch(next, peerID)
		if len(batch) > 0 {
			msg, err := encodeBatch(batch)
			if err != nil {
				memR.Logger.Error("Failed to encode order batch", "err", err)
				return
			}
			if !peer.Send(MempoolChannel, msg) {
				// 对方处理不过来, 稍后从同一位置重试
				time.Sleep(peerCatchupSleepInterval)
				continue
			}
		}

		// last 被删除时 NextWaitChan 也会关闭, Next() 返回 nil, 之后从头开始
		select {
		case <-last.NextWaitChan():
			next = last.Next()
		case <-peer.Quit():
			return
		case <-memR.Quit():
			return
		}
	}
}

// collectBatch 从 start 开始收集最多 maxBatchOrders 个需要发给 peer 的订单
// 跳过从该 peer 收到的订单以及已经过期的订单, 返回最后访问的元素
func (memR *Reactor) collectBatch(start *clist.CElement, peerID uint16) ([][]byte, *clist.CElement) {
	height := memR.mempool.Height()
	var batch [][]byte

	e := start
	for {
		memOrder := e.Value.(*mempoolOrder)
		_, fromPeer := memOrder.senders.Load(peerID)
		if !fromPeer && !expired(memOrder.order, height) {
			batch = append(batch, memOrder.bz)
		}
		n := e.Next()
		if n == nil || len(batch) == maxBatchOrders {
			return batch, e
		}
		e = n
	}
}

//-----------------------------------------------------------------------------

func encodeBatch(batch [][]byte) ([]byte, error) {
	bz, err := rlp.EncodeToBytes(batch)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, bz), nil
}

func decodeBatch(msg []byte) ([]types.Order, error) {
	bz, err := snappy.Decode(nil, msg)
	if err != nil {
		return nil, errors.Wrap(err, "snappy")
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(bz, &raw); err != nil {
		return nil, errors.Wrap(err, "rlp")
	}
	if len(raw) > maxBatchOrders {
		return nil, errors.Wrapf(ErrBatchTooLarge, "%d orders", len(raw))
	}

	orders := make([]types.Order, 0, len(raw))
	for i, r := range raw {
		order, err := types.DecodeOrder(r)
		if err != nil {
			return nil, errors.Wrapf(err, "order #%d", i)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// maxBatchBytes 一批订单压缩后的上限, rlp 每项的长度前缀不超过 9 字节
func maxBatchBytes(maxOrderBytes int) int {
	return snappy.MaxEncodedLen(maxBatchOrders*(maxOrderBytes+9) + 9)
}

//-----------------------------------------------------------------------------

// peerIDs 给每个 peer 分配一个 uint16, 订单只记录这个 id 作为来源
// 0 保留给 UnknownPeerID
type peerIDs struct {
	mtx    sync.RWMutex
	byPeer map[p2p.ID]uint16
	inUse  map[uint16]bool
	next   uint16
}

func newPeerIDs() *peerIDs {
	return &peerIDs{
		byPeer: make(map[p2p.ID]uint16),
		inUse:  map[uint16]bool{UnknownPeerID: true},
		next:   1,
	}
}

func (ids *peerIDs) reserve(peer p2p.ID) uint16 {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	if len(ids.inUse) == maxActiveIDs {
		panic(fmt.Sprintf("node has maximum %d active IDs and wanted to get one more", maxActiveIDs))
	}
	for ids.inUse[ids.next] {
		ids.next++
	}
	id := ids.next
	ids.next++
	ids.byPeer[peer] = id
	ids.inUse[id] = true
	return id
}

func (ids *peerIDs) release(peer p2p.ID) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	if id, ok := ids.byPeer[peer]; ok {
		delete(ids.inUse, id)
		delete(ids.byPeer, peer)
	}
}

// get 未分配的 peer 返回 UnknownPeerID
func (ids *peerIDs) get(peer p2p.ID) uint16 {
	ids.mtx.RLock()
	defer ids.mtx.RUnlock()
	return ids.byPeer[peer]
}
