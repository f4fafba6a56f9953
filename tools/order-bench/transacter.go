package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	// it is ok to use math/rand here: we do not need a cryptographically secure random
	// number generator here and we can run the tests a bit faster
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"strom_bft/types"
)

const (
	sendTimeout = 10 * time.Second
	// see https://github.com/tendermint/tendermint/blob/master/rpc/lib/server/handlers.go
	pingPeriod = (30 * 9 / 10) * time.Second
)

// transacter 通过 websocket 按固定速率发送随机订单
type transacter struct {
	Target      string
	Rate        int
	Connections int
	Pools       []types.Hash

	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     int32

	sent     metrics.Meter
	rejected metrics.Counter
	accepted metrics.Counter
	sendTime metrics.Histogram

	logger log.Logger
}

func newTransacter(target string, connections, rate int, pools []types.Hash) *transacter {
	return &transacter{
		Target:      target,
		Rate:        rate,
		Connections: connections,
		Pools:       pools,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]bool, connections),
		sent:        metrics.NewMeter(),
		rejected:    metrics.NewCounter(),
		accepted:    metrics.NewCounter(),
		sendTime:    metrics.NewHistogram(metrics.NewUniformSample(1024)),
		logger:      log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start opens N = `t.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (t *transacter) Start() error {
	atomic.StoreInt32(&t.stopped, 0)

	rand.Seed(time.Now().Unix())

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (t *transacter) Stop() {
	atomic.StoreInt32(&t.stopped, 1)
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

func (t *transacter) isStopped() bool {
	return atomic.LoadInt32(&t.stopped) == 1
}

// receiveLoop 统计 broadcast_order 的返回结果
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, bz, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err",
					err,
				)
			}
			return
		}
		var resp jsonrpc.RPCResponse
		if err := json.Unmarshal(bz, &resp); err == nil {
			if resp.Error != nil {
				t.rejected.Inc(1)
				t.logger.Debug("order rejected", "err", resp.Error)
			} else {
				t.accepted.Inc(1)
			}
		}
		if t.isStopped() || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop generates orders at a given rate.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	pingsTicker := time.NewTicker(pingPeriod)
	ordersTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		ordersTicker.Stop()
		t.endingWg.Done()
	}()

	for {
		select {
		case <-ordersTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numSent := t.Rate
			if !started {
				t.startingWg.Done()
				started = true
			}

			now := time.Now()
			for i := 0; i < t.Rate; i++ {
				bz, err := types.EncodeOrder(t.generateOrder())
				if err != nil {
					logger.Error("failed to encode order", "err", err)
					return
				}
				paramsJSON, err := json.Marshal(map[string]interface{}{"order": hex.EncodeToString(bz)})
				if err != nil {
					logger.Error("failed to encode params", "err", err)
					return
				}

				c.SetWriteDeadline(now.Add(sendTimeout))
				err = c.WriteJSON(jsonrpc.RPCRequest{
					JSONRPC: "2.0",
					ID:      jsonrpc.JSONRPCStringID("order-bench"),
					Method:  "broadcast_order",
					Params:  json.RawMessage(paramsJSON),
				})
				if err != nil {
					err = errors.Wrapf(err, "orders send failed on connection #%d", connIndex)
					t.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}
				t.sent.Mark(1)

				// cache the time.Now() reads to save time.
				if i%5 == 0 {
					now = time.Now()
					if now.After(endTime) {
						// Plus one accounts for sending this order
						numSent = i + 1
						break
					}
				}
			}

			timeToSend := time.Since(startTime)
			t.sendTime.Update(int64(timeToSend))
			logger.Info(fmt.Sprintf("sent %d orders", numSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				sleepTime := time.Second - timeToSend
				logger.Debug(fmt.Sprintf("connection #%d is sleeping for %f seconds", connIndex, sleepTime.Seconds()))
				time.Sleep(sleepTime)
			}

		case <-pingsTicker.C:
			// go-rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrapf(err, "failed to write ping message on conn #%d", connIndex)
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}
		}

		if t.isStopped() {
			// To cleanly close a connection, a client should send a close
			// frame and wait for the server to close the connection.
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				err = errors.Wrapf(err, "failed to write close message on conn #%d", connIndex)
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}

			return
		}
	}
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// generateOrder 在 1 附近随机报价, 买卖各半
func (t *transacter) generateOrder() *types.LimitOrder {
	pool := t.Pools[rand.Intn(len(t.Pools))]
	isBid := rand.Intn(2) == 0
	// 0.9 ~ 1.1
	price := new(big.Int).Mul(types.RayFromUnits(1).Int(), big.NewInt(int64(900+rand.Intn(201))))
	price.Div(price, big.NewInt(1000))

	kind := types.PartialOrder
	if rand.Intn(4) == 0 {
		kind = types.KillOrFillOrder
	}
	return &types.LimitOrder{
		Pool:        pool,
		IsBid:       isBid,
		Kind:        kind,
		Quantity:    big.NewInt(int64(rand.Intn(100000) + 1)),
		MinQuantity: new(big.Int),
		LimitPrice:  price,
		Nonce:       rand.Uint64(),
	}
}
