package engine

import (
	"dca-backtest-go/internal/config"
	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/metrics"
	"dca-backtest-go/internal/models"
)

// Run 对单个标的执行一次完整回测。
// 资金不设上限 (max_lots 本身就是仓位约束), 初始资金取
// lot_size_usd * max_lots, 即满仓所需的名义资金;
// 权益 = 初始资金 + 已实现盈亏 + 未实现盈亏。
// 参数非法或K线数量不足 minBars 时在模拟开始前返回错误。
func Run(symbol string, bars []models.PriceBar, params models.Params, minBars int) (*models.SingleResult, error) {
	if err := config.ValidateParams(params); err != nil {
		return nil, err
	}
	if minBars <= 0 {
		minBars = config.DefaultMinBars
	}
	if len(bars) < minBars {
		return nil, &models.InsufficientDataError{Symbol: symbol, Bars: len(bars), MinBars: minBars}
	}

	logger.S().Infof("[%s] 单标的回测开始: %s ~ %s, 共 %d 个交易日",
		symbol, bars[0].Date.Format("2006-01-02"), bars[len(bars)-1].Date.Format("2006-01-02"), len(bars))

	trader := NewGridTrader(symbol, params)
	startCash := params.LotSizeUSD * float64(params.MaxLots)

	var txns []models.Transaction
	equity := make([]models.SeriesPoint, 0, len(bars))
	deployed := make([]models.SeriesPoint, 0, len(bars))

	for _, bar := range bars {
		txns = append(txns, trader.StepDay(bar, AllowAll{})...)
		equity = append(equity, models.SeriesPoint{
			Date:  bar.Date,
			Value: startCash + trader.RealizedPNL() + trader.UnrealizedPNL(bar.Close),
		})
		deployed = append(deployed, models.SeriesPoint{Date: bar.Date, Value: trader.DeployedCost()})
	}

	last := bars[len(bars)-1]
	result := &models.SingleResult{
		Symbol:        symbol,
		Params:        params,
		StartDate:     bars[0].Date,
		EndDate:       last.Date,
		FinalPosition: trader.Position(),
		RealizedPNL:   trader.RealizedPNL(),
		UnrealizedPNL: trader.UnrealizedPNL(last.Close),
		FinalEquity:   equity[len(equity)-1].Value,
		Transactions:  txns,
		Equity:        equity,
		Deployed:      deployed,
	}
	result.AvgCost = result.FinalPosition.AvgCost()
	result.Metrics = metrics.Compute(metrics.Inputs{
		InitialCapital: startCash,
		Equity:         equity,
		Deployed:       deployed,
		Transactions:   txns,
		Instruments:    1,
		GridDepthUsed:  float64(trader.MaxOpenLots()) / float64(params.MaxLots),
	})

	logger.S().Infof("[%s] 回测结束: 成交 %d 笔, 期末权益 %.2f, 收益率 %.2f%%",
		symbol, len(txns), result.FinalEquity, result.Metrics.TotalReturnPct)
	return result, nil
}
