package matching

import (
	"context"
	"errors"
	"math/big"
	"runtime"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"strom_bft/amm"
	"strom_bft/types"
)

// ErrNoSolution 撮合在步数上限内没有收敛
var ErrNoSolution = errors.New("matching found no solution")

// SolvePool 计算一个池子的统一清算价格与成交集合
// 没有任何成交也没有 searcher 订单时返回 nil
func SolvePool(book *OrderBook, searchers []*types.SearcherOrder) (*types.PoolSolution, error) {
	var (
		pp       *amm.PoolPrice
		searcher *searcherFill
	)
	if book.HasAMM() {
		if len(searchers) > 0 {
			searcher = pickSearcher(searchers, book.AMM)
		}
		if searcher != nil {
			pp = searcher.pp
		} else {
			pp = book.AMM.Vector()
		}
	}

	res, killed, err := solveRounds(book, pp, nil)
	if err != nil {
		return nil, err
	}
	if !res.hasFills() && searcher == nil {
		return nil, nil
	}
	if res.exactInFilled() {
		if res, killed, err = settleExactIn(book, pp, res, killed); err != nil {
			return nil, err
		}
		if !res.hasFills() && searcher == nil {
			return nil, nil
		}
	}

	sol := &types.PoolSolution{
		Pool:                 book.Pool,
		UniformClearingPrice: res.clearingPrice(),
		SearcherQuantity:     types.NewAmountFromInt64(0),
		SearcherReward:       types.NewAmountFromInt64(0),
		LimitOrders:          res.outcomes(killed),
	}
	if book.HasAMM() {
		net := new(big.Int).Set(res.ammNet)
		if searcher != nil {
			net.Add(net, searcher.quantity)
		}
		amount := types.NewAmount(net)
		sol.AmmQuantity = &amount
	}
	if searcher != nil {
		sol.Searcher = searcher.order
		sol.SearcherQuantity = types.NewAmount(searcher.quantity)
		sol.SearcherReward = types.NewAmount(searcher.reward)
		d := amm.Donate(book.AMM, book.AMM.SqrtPrice(), res.pp.SqrtPrice(), searcher.reward)
		sol.Donation = &d
	}
	return sol, nil
}

// solveRounds 反复撮合, 每轮剔除不满足约束的订单, 直到没有已成交的订单被剔除
func solveRounds(book *OrderBook, pp *amm.PoolPrice,
	fixed map[types.Hash]*big.Int) (*walkResult, map[types.Hash]bool, error) {
	killed := make(map[types.Hash]bool)
	var res *walkResult
	for round := 0; round <= book.Size(); round++ {
		var start *amm.PoolPrice
		if pp != nil {
			start = pp.Clone()
		}
		var err error
		res, err = walk(book, start, killed, fixed)
		if err != nil {
			return nil, nil, err
		}
		ids, rerun := res.unsatisfied(killed)
		for _, id := range ids {
			killed[id] = true
		}
		if !rerun {
			break
		}
	}
	return res, killed, nil
}

// maxSettleRounds ExactIn 买单按清算价格重新撮合的最大轮数
const maxSettleRounds = 8

// settleExactIn 寻价时 ExactIn 买单按对手价成交, 得到清算价格之后把 token1 预算按该价格换算成 token0
// 重新撮合, 直到价格不再变化. 价格回升时保留上一轮的结果, 买单按清算价格的花费不超过预算
func settleExactIn(book *OrderBook, pp *amm.PoolPrice, res *walkResult,
	killed map[types.Hash]bool) (*walkResult, map[types.Hash]bool, error) {
	price := res.clearingPrice()
	for i := 0; i < maxSettleRounds && !price.IsZero(); i++ {
		next, nextKilled, err := solveRounds(book, pp, exactInQuantities(book, price))
		if err != nil {
			return nil, nil, err
		}
		np := next.clearingPrice()
		if i > 0 && np.Cmp(price) > 0 {
			break
		}
		res, killed = next, nextKilled
		if np.Cmp(price) == 0 {
			break
		}
		price = np
	}
	return res, killed, nil
}

// exactInQuantities 按 price 把 ExactIn 买单的 token1 换算成 token0(向下取整)
func exactInQuantities(book *OrderBook, price types.Ray) map[types.Hash]*big.Int {
	fixed := make(map[types.Hash]*big.Int)
	for _, o := range book.Bids {
		if o.ExactIn {
			fixed[o.ID] = NewDebtAtPrice(ExactIn, o.Quantity, price).Token0()
		}
	}
	return fixed
}

//-----------------------------------------------------------------------------

// Engine 按池子并行撮合, 每个池子一个任务, 并发数受 workers 限制
type Engine struct {
	workers int64
	logger  log.Logger
	timer   gometrics.Timer
}

func NewEngine(workers int, logger log.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		workers: int64(workers),
		logger:  logger,
		timer:   gometrics.NewTimer(),
	}
}

func (e *Engine) SetLogger(logger log.Logger) {
	e.logger = logger
}

// SolveTimer 记录每次 Solve 的耗时
func (e *Engine) SolveTimer() gometrics.Timer { return e.timer }

// Solve 所有池子的结果收齐后才返回, 任何一个池子失败则整体失败
func (e *Engine) Solve(ctx context.Context, orders []*types.LimitOrder,
	searchers map[types.Hash][]*types.SearcherOrder,
	pools map[types.Hash]amm.PoolEntry) ([]*types.PoolSolution, GasDetails, error) {
	start := time.Now()
	defer e.timer.UpdateSince(start)

	books, err := BuildBooks(orders, searchers, pools)
	if err != nil {
		return nil, GasDetails{}, err
	}

	results := make([]*types.PoolSolution, len(books))
	sem := semaphore.NewWeighted(e.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i, book := range books {
		i, book := i, book
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			sol, err := SolvePool(book, searchers[book.Pool])
			if err != nil {
				e.logger.Error("Failed to solve pool", "pool", book.Pool, "err", err)
				return err
			}
			results[i] = sol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, GasDetails{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, GasDetails{}, err
	}

	solutions := make([]*types.PoolSolution, 0, len(results))
	for _, sol := range results {
		if sol != nil {
			solutions = append(solutions, sol)
		}
	}
	gas := EstimateGas(solutions)
	e.logger.Debug("Solved pools", "pools", len(books), "solutions", len(solutions),
		"gas", gas.Total, "elapsed", time.Since(start))
	return solutions, gas, nil
}
