package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

type OrderKind uint8

const (
	// PartialOrder 挂单, 可以部分成交, 但不少于 MinQuantity
	PartialOrder = OrderKind(0)
	// KillOrFillOrder 要么全部成交要么不成交
	KillOrFillOrder = OrderKind(1)
)

func (k OrderKind) String() string {
	switch k {
	case PartialOrder:
		return "Partial"
	case KillOrFillOrder:
		return "KillOrFill"
	default:
		return "UnknownKind"
	}
}

const (
	limitOrderPrefix    = byte(0x01)
	searcherOrderPrefix = byte(0x02)
)

var (
	ErrOrderEmptyQuantity = errors.New("order quantity must be positive")
	ErrOrderZeroPrice     = errors.New("order limit price must be positive")
	ErrOrderMinQuantity   = errors.New("order min quantity exceeds quantity")
	ErrOrderExactInAsk    = errors.New("exact-in is only supported for bids")
	ErrUnknownOrderPrefix = errors.New("unknown order prefix")
)

// Order 是订单池中保存的订单, 可能是限价单也可能是 searcher 订单
type Order interface {
	Hash() Hash
	PoolID() Hash
	IsBidOrder() bool
	ValidateBasic() error
}

// LimitOrder 限价单
// 数量以 token0 计价, 只有 ExactIn 的买单以 token1 计价
type LimitOrder struct {
	Pool        Hash
	IsBid       bool
	Kind        OrderKind
	ExactIn     bool
	Quantity    *big.Int
	MinQuantity *big.Int
	LimitPrice  *big.Int // Ray
	Owner       common.Address
	Nonce       uint64
	ValidUntil  uint64 // 0 表示不过期
}

var _ Order = (*LimitOrder)(nil)

func (o *LimitOrder) Hash() Hash { return RLPHash(o) }

func (o *LimitOrder) PoolID() Hash { return o.Pool }

func (o *LimitOrder) IsBidOrder() bool { return o.IsBid }

func (o *LimitOrder) Price() Ray { return NewRay(o.LimitPrice) }

func (o *LimitOrder) IsKillOrFill() bool { return o.Kind == KillOrFillOrder }

func (o *LimitOrder) ValidateBasic() error {
	if o.Quantity == nil || o.Quantity.Sign() <= 0 {
		return ErrOrderEmptyQuantity
	}
	if o.LimitPrice == nil || o.LimitPrice.Sign() <= 0 {
		return ErrOrderZeroPrice
	}
	if o.MinQuantity == nil || o.MinQuantity.Sign() < 0 || o.MinQuantity.Cmp(o.Quantity) > 0 {
		return ErrOrderMinQuantity
	}
	if o.ExactIn && !o.IsBid {
		return ErrOrderExactInAsk
	}
	if o.Kind != PartialOrder && o.Kind != KillOrFillOrder {
		return fmt.Errorf("unknown order kind %d", o.Kind)
	}
	return nil
}

func (o *LimitOrder) String() string {
	side := "Ask"
	if o.IsBid {
		side = "Bid"
	}
	return fmt.Sprintf("LimitOrder{%v %s %v q:%v p:%v}", o.Hash(), side, o.Kind, o.Quantity, o.LimitPrice)
}

// SearcherOrder 是 top-of-block 订单, 只在 ValidBlock 这一块有效, 直接与 AMM 交换
// 买单: 用最多 QuantityIn 的 token1 买 QuantityOut 的 token0
// 卖单: 卖出 QuantityIn 的 token0, 至少得到 QuantityOut 的 token1
type SearcherOrder struct {
	Pool        Hash
	IsBid       bool
	QuantityIn  *big.Int
	QuantityOut *big.Int
	Owner       common.Address
	ValidBlock  uint64
}

var _ Order = (*SearcherOrder)(nil)

func (o *SearcherOrder) Hash() Hash { return RLPHash(o) }

func (o *SearcherOrder) PoolID() Hash { return o.Pool }

func (o *SearcherOrder) IsBidOrder() bool { return o.IsBid }

func (o *SearcherOrder) ValidateBasic() error {
	if o.QuantityIn == nil || o.QuantityIn.Sign() <= 0 {
		return ErrOrderEmptyQuantity
	}
	if o.QuantityOut == nil || o.QuantityOut.Sign() <= 0 {
		return ErrOrderEmptyQuantity
	}
	return nil
}

func (o SearcherOrder) MarshalJSON() ([]byte, error) {
	bz, err := EncodeOrder(&o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(bz))
}

func (o *SearcherOrder) UnmarshalJSON(bz []byte) error {
	var s string
	if err := json.Unmarshal(bz, &s); err != nil {
		return err
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return err
	}
	order, err := DecodeOrder(raw)
	if err != nil {
		return err
	}
	so, ok := order.(*SearcherOrder)
	if !ok {
		return fmt.Errorf("expected searcher order, got %T", order)
	}
	*o = *so
	return nil
}

//-----------------------------------------------------------------------------

// EncodeOrder 订单的网络编码: 一个字节的类型前缀 + rlp
func EncodeOrder(o Order) ([]byte, error) {
	var prefix byte
	switch o.(type) {
	case *LimitOrder:
		prefix = limitOrderPrefix
	case *SearcherOrder:
		prefix = searcherOrderPrefix
	default:
		return nil, fmt.Errorf("unknown order type %T", o)
	}
	bz, err := rlp.EncodeToBytes(o)
	if err != nil {
		return nil, err
	}
	return append([]byte{prefix}, bz...), nil
}

func DecodeOrder(bz []byte) (Order, error) {
	if len(bz) < 2 {
		return nil, ErrUnknownOrderPrefix
	}
	switch bz[0] {
	case limitOrderPrefix:
		o := new(LimitOrder)
		if err := rlp.DecodeBytes(bz[1:], o); err != nil {
			return nil, err
		}
		return o, nil
	case searcherOrderPrefix:
		o := new(SearcherOrder)
		if err := rlp.DecodeBytes(bz[1:], o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, ErrUnknownOrderPrefix
	}
}
