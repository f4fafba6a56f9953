package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx         sync.RWMutex
	OrdersNum   int   `json:"orders_num"`   // mempool中所有的订单总数
	OrdersBytes int64 `json:"orders_bytes"` // 目前mempool所有订单编码后的大小
	Received    int64 `json:"received"`     // 从peer收到的订单数
	Rejected    int64 `json:"rejected"`     // CheckOrder失败的订单数
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkOrdersNum(n int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.OrdersNum = n
}

func (mm *memMetric) MarkOrdersBytes(n int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.OrdersBytes = n
}

func (mm *memMetric) MarkReceived() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.Received++
}

func (mm *memMetric) MarkRejected() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.Rejected++
}
