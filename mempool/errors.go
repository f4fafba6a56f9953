package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderInCache 订单最近已经见过(已成交或已过期)
	ErrOrderInCache = errors.New("order already exists in cache")
	ErrOrderInPool  = errors.New("order already exists in mempool")
	ErrOrderExpired = errors.New("order expired")
)

// ErrMempoolIsFull 订单数量达到上限
type ErrMempoolIsFull struct {
	NumOrders int
	MaxOrders int
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf("mempool is full: number of orders %d (max: %d)", e.NumOrders, e.MaxOrders)
}

// ErrOrderTooLarge 编码后的订单超过 MaxTxBytes
type ErrOrderTooLarge struct {
	Max    int
	Actual int
}

func (e ErrOrderTooLarge) Error() string {
	return fmt.Sprintf("order too large. Max size is %d, but got %d", e.Max, e.Actual)
}
