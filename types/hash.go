package types

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

const HashLength = common.HashLength

// Hash 是订单、池子和共识消息的 32 字节标识(keccak256)
// NOTE: 在 tmjson 中以 0x 开头的 hex 字符串编码
type Hash common.Hash

func BytesToHash(b []byte) Hash {
	return Hash(common.BytesToHash(b))
}

func HexToHash(s string) Hash {
	return Hash(common.HexToHash(s))
}

// RLPHash 返回 v 的 rlp 编码的 keccak256
func RLPHash(v interface{}) Hash {
	bz, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	return Hash(crypto.Keccak256Hash(bz))
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return common.Hash(h).Hex() }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// Less 用于确定性的排序和平局裁决
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(bz []byte) error {
	var s string
	if err := json.Unmarshal(bz, &s); err != nil {
		return err
	}
	var ch common.Hash
	if err := ch.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	*h = Hash(ch)
	return nil
}

func SortHashes(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}
