package state

import (
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"

	"strom_bft/libs/signoff"
	mempl "strom_bft/mempool"
	"strom_bft/types"
)

type cleanup func()

func newBlockExecutor(barrier *signoff.Barrier) (*BlockExecutor, *mempl.ListMempool, cleanup) {
	testconfig := config.ResetTestRoot("state_test")
	logger := log.NewFilter(log.TestingLogger(), log.AllowDebug())

	listMempool := mempl.NewListMempool(testconfig.Mempool, 0)
	listMempool.SetLogger(logger)
	blockExec := NewBlockExecutor(listMempool, barrier)
	blockExec.SetLogger(logger)

	return blockExec, listMempool, func() {
		os.RemoveAll(testconfig.RootDir)
	}
}

func testOrder(nonce uint64, validUntil uint64) *types.LimitOrder {
	return &types.LimitOrder{
		Pool:        types.HexToHash("0x01"),
		IsBid:       nonce%2 == 0,
		Quantity:    big.NewInt(100),
		MinQuantity: new(big.Int),
		LimitPrice:  types.RayFromUnits(1).Int(),
		Nonce:       nonce,
		ValidUntil:  validUntil,
	}
}

// TestApplyBlock 新块删除已成交与过期的订单
func TestApplyBlock(t *testing.T) {
	blockExec, mem, clean := newBlockExecutor(nil)
	defer clean()

	filled := testOrder(1, 0)
	expiring := testOrder(2, 3)
	resting := testOrder(3, 0)
	for _, o := range []*types.LimitOrder{filled, expiring, resting} {
		require.NoError(t, mem.CheckOrder(o, mempl.OrderInfo{}))
	}

	err := blockExec.ApplyBlock(&ChainBlock{Number: 3, FilledOrders: []types.Hash{filled.Hash()}})
	require.NoError(t, err)

	assert.Equal(t, 1, mem.Size())
	assert.True(t, mem.Has(resting.Hash()))
	assert.Equal(t, uint64(3), mem.Height())
}

// TestApplyBlockSignsOff 订单池签到之后, 等其他参与者也签到块高才前进
func TestApplyBlockSignsOff(t *testing.T) {
	var advanced []uint64
	barrier := signoff.NewBarrier(0, func(h uint64) { advanced = append(advanced, h) },
		ParticipantMempool, "chain")

	blockExec, _, clean := newBlockExecutor(barrier)
	defer clean()

	require.NoError(t, blockExec.ApplyBlock(&ChainBlock{Number: 1}))
	assert.Empty(t, advanced)

	fired, err := barrier.SignOff("chain", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, fired)
	assert.Equal(t, []uint64{1}, advanced)

	// 重复的块高不能再次签到
	assert.Error(t, blockExec.ApplyBlock(&ChainBlock{Number: 1}))
}
