package mempool

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/mock"

	"strom_bft/types"
)

// 超过一批的数量, 保证广播要分多条消息
const numOrders = 3*maxBatchOrders + 5

func TestReactorBroadcastOrders(t *testing.T) {
	reactors := makeAndConnectReactors(t, 3)
	defer stopReactors(t, reactors)

	orders := checkOrders(t, reactors[0].mempool, numOrders, UnknownPeerID)
	waitForOrders(t, orders, reactors)
}

// 订单从 reactor[1] 发给 reactor[0], 不会再被发回 reactor[1]
func TestReactorNoBroadcastToSender(t *testing.T) {
	reactors := makeAndConnectReactors(t, 2)
	defer stopReactors(t, reactors)

	sender := reactors[0].Switch.Peers().List()[0]
	senderID := reactors[0].ids.get(sender.ID())
	require.NotEqual(t, UnknownPeerID, senderID)

	checkOrders(t, reactors[0].mempool, numOrders, senderID)
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, reactors[1].mempool.Size())
}

// 一边广播一边 Update/Flush
func TestReactorUpdateWhileBroadcasting(t *testing.T) {
	reactors := makeAndConnectReactors(t, 2)
	defer stopReactors(t, reactors)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		orders := checkOrders(t, reactors[0].mempool, 10, UnknownPeerID)
		checkOrders(t, reactors[1].mempool, 10, UnknownPeerID)

		wg.Add(2)
		go func(height uint64) {
			defer wg.Done()
			reactors[0].mempool.Lock()
			defer reactors[0].mempool.Unlock()
			assert.NoError(t, reactors[0].mempool.Update(height, orderHashes(orders)))
		}(uint64(i + 1))
		go func(height uint64) {
			defer wg.Done()
			reactors[1].mempool.Lock()
			defer reactors[1].mempool.Unlock()
			assert.NoError(t, reactors[1].mempool.Update(height, nil))
		}(uint64(i + 1))

		reactors[1].mempool.Flush()
	}
	wg.Wait()
}

func TestReactorStopsPeerOnBadMessage(t *testing.T) {
	reactors := makeAndConnectReactors(t, 2)
	defer stopReactors(t, reactors)

	peer := reactors[0].Switch.Peers().List()[0]
	reactors[0].Receive(MempoolChannel, peer, []byte{0xff, 0x01})
	assert.Eventually(t, func() bool {
		return reactors[0].Switch.Peers().Size() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestBroadcastStopsWhenPeerStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	reactors := makeAndConnectReactors(t, 2)
	defer stopReactors(t, reactors)

	sw := reactors[1].Switch
	sw.StopPeerForError(sw.Peers().List()[0], errors.New("some reason"))

	leaktest.CheckTimeout(t, 10*time.Second)()
}

func TestBroadcastStopsWhenReactorStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	reactors := makeAndConnectReactors(t, 2)
	stopReactors(t, reactors)

	leaktest.CheckTimeout(t, 10*time.Second)()
}

func TestBatchCodec(t *testing.T) {
	var (
		batch  [][]byte
		hashes []types.Hash
	)
	for i := 0; i < 5; i++ {
		o := randLimitOrder()
		bz, err := types.EncodeOrder(o)
		require.NoError(t, err)
		batch = append(batch, bz)
		hashes = append(hashes, o.Hash())
	}

	msg, err := encodeBatch(batch)
	require.NoError(t, err)
	orders, err := decodeBatch(msg)
	require.NoError(t, err)
	assert.Equal(t, hashes, orderHashes(orders))

	oversized := make([][]byte, maxBatchOrders+1)
	for i := range oversized {
		oversized[i] = batch[0]
	}
	msg, err = encodeBatch(oversized)
	require.NoError(t, err)
	_, err = decodeBatch(msg)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	// 合法的 snappy 但不是订单
	msg, err = encodeBatch([][]byte{{0x09, 0x09}})
	require.NoError(t, err)
	_, err = decodeBatch(msg)
	assert.Error(t, err)
}

func TestPeerIDs(t *testing.T) {
	ids := newPeerIDs()
	peer := p2p.ID("peer")

	assert.Equal(t, UnknownPeerID, ids.get(peer))
	assert.EqualValues(t, 1, ids.reserve(peer))
	assert.EqualValues(t, 1, ids.get(peer))
	ids.release(peer)
	assert.Equal(t, UnknownPeerID, ids.get(peer))

	// id 不会马上复用
	assert.EqualValues(t, 2, ids.reserve(peer))
}

func TestPeerIDsPanicWhenExhausted(t *testing.T) {
	if testing.Short() {
		return
	}

	ids := newPeerIDs()
	for i := 0; i < maxActiveIDs-1; i++ {
		ids.reserve(p2p.ID(fmt.Sprintf("peer%d", i)))
	}
	assert.Panics(t, func() {
		ids.reserve("one-more")
	})
}

// 大量 peer 上线下线, 分配的 id 会被回收
func TestDontExhaustMaxActiveIDs(t *testing.T) {
	reactors := makeAndConnectReactors(t, 1)
	defer stopReactors(t, reactors)
	reactor := reactors[0]

	bz, err := types.EncodeOrder(randLimitOrder())
	require.NoError(t, err)
	msg, err := encodeBatch([][]byte{bz})
	require.NoError(t, err)

	for i := 0; i < maxActiveIDs+1; i++ {
		peer := mock.NewPeer(nil)
		reactor.InitPeer(peer)
		reactor.Receive(MempoolChannel, peer, msg)
		reactor.RemovePeer(peer, nil)
	}
	assert.Equal(t, 1, reactor.mempool.Size())
}

//-----------------------------------------------------------------------------

// mempoolLogger 按 "validator" 给每个节点的日志着色
func mempoolLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "validator" {
				return term.FgBgColor{Fg: term.Color(uint8(keyvals[i+1].(int) + 1))}
			}
		}
		return term.FgBgColor{}
	})
}

func makeAndConnectReactors(t *testing.T, n int) []*Reactor {
	config := cfg.ResetTestRoot("mempool_reactor_test")
	t.Cleanup(func() { os.RemoveAll(config.RootDir) })

	reactors := make([]*Reactor, n)
	logger := mempoolLogger()
	for i := 0; i < n; i++ {
		mempool := NewListMempool(config.Mempool, 0)
		reactors[i] = NewReactor(config.Mempool, mempool)
		reactors[i].SetLogger(logger.With("validator", i))
	}

	p2p.MakeConnectedSwitches(config.P2P, n, func(i int, s *p2p.Switch) *p2p.Switch {
		s.AddReactor("MEMPOOL", reactors[i])
		return s
	}, p2p.Connect2Switches)
	return reactors
}

func stopReactors(t *testing.T, reactors []*Reactor) {
	for _, r := range reactors {
		if r.IsRunning() {
			assert.NoError(t, r.Switch.Stop())
		}
	}
}

func orderHashes(orders []types.Order) []types.Hash {
	hashes := make([]types.Hash, len(orders))
	for i, o := range orders {
		hashes[i] = o.Hash()
	}
	return hashes
}

func waitForOrders(t *testing.T, orders []types.Order, reactors []*Reactor) {
	for i, r := range reactors {
		mempool := r.mempool
		require.Eventuallyf(t, func() bool {
			return mempool.Size() >= len(orders)
		}, 30*time.Second, 100*time.Millisecond, "reactor %d has %d orders", i, mempool.Size())

		for j, o := range orders {
			assert.Truef(t, mempool.Has(o.Hash()), "order #%d missing on reactor %d", j, i)
		}
	}
}
