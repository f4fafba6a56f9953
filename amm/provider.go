package amm

import (
	"fmt"
	"io/ioutil"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"strom_bft/types"
)

// PoolEntry 一个已同步池子的信息
type PoolEntry struct {
	Token0     common.Address
	Token1     common.Address
	Snapshot   *PoolSnapshot
	StoreIndex uint16
}

// PoolProvider 提供各池子当前的 AMM 快照, 撮合引擎只读
type PoolProvider interface {
	FetchPoolSnapshots() map[types.Hash]PoolEntry
}

// StaticPoolProvider 内存中的池子集合, 开发网络从 yaml 文件加载
type StaticPoolProvider struct {
	mtx   sync.RWMutex
	pools map[types.Hash]PoolEntry
}

var _ PoolProvider = (*StaticPoolProvider)(nil)

func NewStaticPoolProvider(pools map[types.Hash]PoolEntry) *StaticPoolProvider {
	p := &StaticPoolProvider{pools: make(map[types.Hash]PoolEntry, len(pools))}
	for id, e := range pools {
		p.pools[id] = e
	}
	return p
}

// FetchPoolSnapshots 返回副本, 快照本身不可变
func (p *StaticPoolProvider) FetchPoolSnapshots() map[types.Hash]PoolEntry {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	out := make(map[types.Hash]PoolEntry, len(p.pools))
	for id, e := range p.pools {
		out[id] = e
	}
	return out
}

func (p *StaticPoolProvider) SetPool(id types.Hash, e PoolEntry) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.pools[id] = e
}

//-----------------------------------------------------------------------------
// yaml

type poolsFile struct {
	Pools []poolConfig `yaml:"pools"`
}

type poolConfig struct {
	ID         string        `yaml:"id"`
	Token0     string        `yaml:"token0"`
	Token1     string        `yaml:"token1"`
	StoreIndex uint16        `yaml:"store_index"`
	Price      string        `yaml:"price"`
	Ranges     []rangeConfig `yaml:"ranges"`
}

type rangeConfig struct {
	LowerTick int    `yaml:"lower_tick"`
	UpperTick int    `yaml:"upper_tick"`
	Liquidity string `yaml:"liquidity"`
}

// ParsePools 解析 yaml 格式的池子列表, price 是十进制的 token1/token0 价格
func ParsePools(bz []byte) (map[types.Hash]PoolEntry, error) {
	var f poolsFile
	if err := yaml.Unmarshal(bz, &f); err != nil {
		return nil, errors.Wrap(err, "parse pools")
	}

	pools := make(map[types.Hash]PoolEntry, len(f.Pools))
	for i, pc := range f.Pools {
		id := types.HexToHash(pc.ID)
		if id.IsZero() {
			return nil, fmt.Errorf("pool #%d has no id", i)
		}
		if _, ok := pools[id]; ok {
			return nil, fmt.Errorf("duplicate pool %v", id)
		}

		price, ok := new(big.Rat).SetString(pc.Price)
		if !ok || price.Sign() <= 0 {
			return nil, fmt.Errorf("pool %v has invalid price %q", id, pc.Price)
		}
		scaled := new(big.Int).Mul(price.Num(), types.RayScale)
		scaled.Quo(scaled, price.Denom())

		ranges := make([]LiqRange, len(pc.Ranges))
		for j, rc := range pc.Ranges {
			liq, ok := new(big.Int).SetString(rc.Liquidity, 10)
			if !ok {
				return nil, fmt.Errorf("pool %v range #%d has invalid liquidity %q", id, j, rc.Liquidity)
			}
			ranges[j] = NewLiqRange(rc.LowerTick, rc.UpperTick, liq)
		}

		snap, err := NewPoolSnapshotAtPrice(ranges, types.NewRay(scaled))
		if err != nil {
			return nil, errors.Wrapf(err, "pool %v", id)
		}
		pools[id] = PoolEntry{
			Token0:     common.HexToAddress(pc.Token0),
			Token1:     common.HexToAddress(pc.Token1),
			Snapshot:   snap,
			StoreIndex: pc.StoreIndex,
		}
	}
	return pools, nil
}

func LoadPoolsFile(path string) (*StaticPoolProvider, error) {
	bz, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read pools file")
	}
	pools, err := ParsePools(bz)
	if err != nil {
		return nil, err
	}
	return NewStaticPoolProvider(pools), nil
}
