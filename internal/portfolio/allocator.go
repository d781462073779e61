package portfolio

import (
	"sort"
	"time"

	"dca-backtest-go/internal/config"
	"dca-backtest-go/internal/engine"
	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/metrics"
	"dca-backtest-go/internal/models"
)

// poolGate 把资金池接到订单状态机的买入闸门上。
// 拒单在这里记录一次, 当日不重试, 不排队。
type poolGate struct {
	pool     *Pool
	rejected *[]models.RejectedOrder
}

func (g *poolGate) ApproveBuy(symbol string, date time.Time, cost float64) bool {
	if g.pool.Debit(cost) {
		return true
	}
	logger.S().Warnf("[%s] %s 买入被拒: 需要 %.2f, 现金仅剩 %.2f",
		symbol, date.Format("2006-01-02"), cost, g.pool.Cash)
	*g.rejected = append(*g.rejected, models.RejectedOrder{
		Date:             date,
		Symbol:           symbol,
		RequiredCapital:  cost,
		AvailableCapital: g.pool.Cash,
		Shortfall:        cost - g.pool.Cash,
		Pool:             g.pool.Snapshot(),
	})
	return false
}

// instrument 是组合中一个标的的运行时状态
type instrument struct {
	symbol    string
	params    models.Params
	trader    *engine.GridTrader
	byDate    map[int64]models.PriceBar
	lastClose float64
	txns      []models.Transaction
	equity    []models.SeriesPoint
	deployed  []models.SeriesPoint
}

// Run 对一组标的执行共享资金池的组合回测。
//
// 日历取所有标的交易日的并集, 所有标的锁步推进; 某标的当日无行情
// 则跳过该标的。每个交易日先按字母序执行全部标的的卖出侧
// (释放资金), 再按字母序执行全部标的的买入侧 (占用资金),
// 保证当日卖出释放的资金可以供当日买入使用, 且执行顺序与标的
// 在配置中的书写顺序无关。每日收盘后核对资金池账目, 不平即中止。
func Run(cfg *models.Config, series map[string][]models.PriceBar) (*models.PortfolioResult, error) {
	symbols := make([]string, len(cfg.Symbols))
	copy(symbols, cfg.Symbols)
	sort.Strings(symbols)

	minBars := cfg.MinBars
	if minBars <= 0 {
		minBars = config.DefaultMinBars
	}

	instruments := make([]*instrument, 0, len(symbols))
	dateSet := make(map[int64]time.Time)
	for _, sym := range symbols {
		bars := series[sym]
		if len(bars) < minBars {
			return nil, &models.InsufficientDataError{Symbol: sym, Bars: len(bars), MinBars: minBars}
		}
		params := config.ResolveParams(cfg, sym)
		if err := config.ValidateParams(params); err != nil {
			return nil, err
		}
		inst := &instrument{
			symbol: sym,
			params: params,
			trader: engine.NewGridTrader(sym, params),
			byDate: make(map[int64]models.PriceBar, len(bars)),
		}
		for _, bar := range bars {
			key := bar.Date.Unix()
			inst.byDate[key] = bar
			dateSet[key] = bar.Date
		}
		instruments = append(instruments, inst)
	}

	keys := make([]int64, 0, len(dateSet))
	for key := range dateSet {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	logger.S().Infof("组合回测开始: %d 个标的, 总资金 %.2f, 并集日历 %d 个交易日",
		len(symbols), cfg.TotalCapital, len(keys))

	pool := NewPool(cfg.TotalCapital)
	var rejected []models.RejectedOrder
	gate := &poolGate{pool: pool, rejected: &rejected}

	equity := make([]models.SeriesPoint, 0, len(keys))
	deployed := make([]models.SeriesPoint, 0, len(keys))
	utilization := make([]models.SeriesPoint, 0, len(keys))

	for _, key := range keys {
		date := dateSet[key]

		// 先执行所有标的的卖出侧, 释放的资金当日即可复用
		for _, inst := range instruments {
			bar, ok := inst.byDate[key]
			if !ok {
				continue
			}
			inst.lastClose = bar.Close
			for _, txn := range inst.trader.SellPhase(bar) {
				pool.Credit(txn.CostBasis, txn.CostBasis+txn.RealizedPNL)
				inst.txns = append(inst.txns, txn)
			}
		}

		// 再执行所有标的的买入侧
		for _, inst := range instruments {
			bar, ok := inst.byDate[key]
			if !ok {
				continue
			}
			inst.txns = append(inst.txns, inst.trader.BuyPhase(bar, gate)...)
		}

		if err := pool.CheckInvariant(date.Format("2006-01-02")); err != nil {
			logger.S().Errorf("组合回测中止: %v", err)
			return nil, err
		}

		// 日终快照
		var unrealized float64
		for _, inst := range instruments {
			pnl := inst.trader.RealizedPNL() + inst.trader.UnrealizedPNL(inst.lastClose)
			base := inst.params.LotSizeUSD * float64(inst.params.MaxLots)
			inst.equity = append(inst.equity, models.SeriesPoint{Date: date, Value: base + pnl})
			inst.deployed = append(inst.deployed, models.SeriesPoint{Date: date, Value: inst.trader.DeployedCost()})
			unrealized += inst.trader.UnrealizedPNL(inst.lastClose)
		}
		equity = append(equity, models.SeriesPoint{Date: date, Value: pool.Cash + pool.Deployed + unrealized})
		deployed = append(deployed, models.SeriesPoint{Date: date, Value: pool.Deployed})
		var util float64
		if pool.Total != 0 {
			util = pool.Deployed / pool.Total
		}
		utilization = append(utilization, models.SeriesPoint{Date: date, Value: util})
	}

	return assemble(cfg, instruments, equity, deployed, utilization, rejected, keys, dateSet)
}

// assemble 把运行时状态收拢成最终输出: 各标的明细 (字母序)、
// 收益归因、组合级指标。遍历只走有序切片, 不迭代 map,
// 同样的输入产出字节级一致的结果。
func assemble(cfg *models.Config, instruments []*instrument,
	equity, deployed, utilization []models.SeriesPoint, rejected []models.RejectedOrder,
	keys []int64, dateSet map[int64]time.Time) (*models.PortfolioResult, error) {

	result := &models.PortfolioResult{
		TotalCapital: cfg.TotalCapital,
		Equity:       equity,
		Utilization:  utilization,
		Rejected:     rejected,
	}

	var totalPNL, gridDepthSum float64
	var allTxns []models.Transaction
	for _, inst := range instruments {
		pnl := inst.trader.RealizedPNL() + inst.trader.UnrealizedPNL(inst.lastClose)
		totalPNL += pnl
		gridDepthSum += float64(inst.trader.MaxOpenLots()) / float64(inst.params.MaxLots)
		allTxns = append(allTxns, inst.txns...)

		base := inst.params.LotSizeUSD * float64(inst.params.MaxLots)
		single := models.SingleResult{
			Symbol:        inst.symbol,
			Params:        inst.params,
			FinalPosition: inst.trader.Position(),
			RealizedPNL:   inst.trader.RealizedPNL(),
			UnrealizedPNL: inst.trader.UnrealizedPNL(inst.lastClose),
			Transactions:  inst.txns,
			Equity:        inst.equity,
			Deployed:      inst.deployed,
		}
		if len(keys) > 0 {
			single.StartDate = dateSet[keys[0]]
			single.EndDate = dateSet[keys[len(keys)-1]]
		}
		single.AvgCost = single.FinalPosition.AvgCost()
		if len(inst.equity) > 0 {
			single.FinalEquity = inst.equity[len(inst.equity)-1].Value
		}
		for _, rej := range rejected {
			if rej.Symbol == inst.symbol {
				single.Rejected = append(single.Rejected, rej)
			}
		}
		single.Metrics = metrics.Compute(metrics.Inputs{
			InitialCapital: base,
			Equity:         inst.equity,
			Deployed:       inst.deployed,
			Transactions:   inst.txns,
			Instruments:    1,
			GridDepthUsed:  float64(inst.trader.MaxOpenLots()) / float64(inst.params.MaxLots),
		})
		result.Instruments = append(result.Instruments, single)
	}
	result.TotalPNL = totalPNL

	// 收益归因: 各标的盈亏占组合总盈亏的百分比, 总盈亏为 0 时取哨兵值 0
	for _, inst := range instruments {
		pnl := inst.trader.RealizedPNL() + inst.trader.UnrealizedPNL(inst.lastClose)
		var pct float64
		if totalPNL != 0 {
			pct = pnl / totalPNL * 100
		}
		result.Contributions = append(result.Contributions, models.Contribution{
			Symbol: inst.symbol, PNL: pnl, Percent: pct,
		})
	}

	var gridDepth float64
	if len(instruments) > 0 {
		gridDepth = gridDepthSum / float64(len(instruments))
	}
	result.Metrics = metrics.Compute(metrics.Inputs{
		InitialCapital: cfg.TotalCapital,
		Equity:         equity,
		Deployed:       deployed,
		Transactions:   allTxns,
		Instruments:    len(instruments),
		GridDepthUsed:  gridDepth,
	})

	logger.S().Infof("组合回测结束: 成交 %d 笔, 拒单 %d 次, 总盈亏 %.2f",
		len(allTxns), len(rejected), totalPNL)
	return result, nil
}
