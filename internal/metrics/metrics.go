package metrics

import (
	"math"

	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/models"
)

// tradingDaysPerYear 是年化用的交易日数量
const tradingDaysPerYear = 252

// Inputs 是指标计算的全部输入。计算只依赖这里的序列和成交记录,
// 不读墙上时钟, 同样的输入永远得到同样的输出。
type Inputs struct {
	InitialCapital float64
	Equity         []models.SeriesPoint
	Deployed       []models.SeriesPoint
	Transactions   []models.Transaction
	Instruments    int     // 标的数量, 单标的模式为 1
	GridDepthUsed  float64 // 运行期间最大同时持有手数 / max_lots, 组合模式取各标的均值
}

// Compute 从权益曲线和成交记录计算全部性能指标。
// 所有除法在分母为零或样本不足时返回哨兵值 0 并记一条 debug 日志,
// 不会 panic, 也不会产生 NaN/Inf。
func Compute(in Inputs) models.Metrics {
	m := models.Metrics{InitialCapital: in.InitialCapital}
	if len(in.Equity) == 0 {
		logger.S().Debug("指标计算: 权益曲线为空, 全部指标取哨兵值 0")
		return m
	}

	m.FinalCapital = in.Equity[len(in.Equity)-1].Value
	m.TotalReturn = m.FinalCapital - in.InitialCapital
	if in.InitialCapital != 0 {
		m.TotalReturnPct = m.TotalReturn / in.InitialCapital * 100
	} else {
		logger.S().Debug("指标计算: 初始资金为 0, 收益率取哨兵值 0")
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(in.Equity)

	returns := dailyReturns(in.Equity)
	m.AnnualVolatility, m.SharpeRatio, m.SortinoRatio = riskRatios(returns)

	tradeStats(&m, in.Transactions)
	m.Suitability = suitability(in, &m)
	return m
}

// dailyReturns 从权益曲线计算逐日简单收益率。前一日权益为 0 的
// 日子跳过 (无法定义收益率), 不会产生 Inf。
func dailyReturns(equity []models.SeriesPoint) []float64 {
	var returns []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Value-prev)/prev)
	}
	return returns
}

// maxDrawdown 返回最大回撤的绝对值 (USD) 和相对峰值的百分比
func maxDrawdown(equity []models.SeriesPoint) (usd, pct float64) {
	peak := equity[0].Value
	for _, pt := range equity {
		if pt.Value > peak {
			peak = pt.Value
		}
		dd := peak - pt.Value
		if dd > usd {
			usd = dd
			if peak != 0 {
				pct = dd / peak * 100
			}
		}
	}
	return usd, pct
}

// riskRatios 计算年化波动率、夏普比率和索提诺比率 (无风险利率取 0,
// 252 交易日年化)。样本不足两个或方差为零时对应指标取哨兵值 0。
func riskRatios(returns []float64) (vol, sharpe, sortino float64) {
	if len(returns) < 2 {
		logger.S().Debug("指标计算: 收益率样本不足, 波动率/夏普/索提诺取哨兵值 0")
		return 0, 0, 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance, downside float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downside += r * r
		}
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	annFactor := math.Sqrt(tradingDaysPerYear)

	vol = std * annFactor
	if std != 0 {
		sharpe = mean / std * annFactor
	} else {
		logger.S().Debug("指标计算: 收益率方差为 0, 夏普比率取哨兵值 0")
	}
	downsideDev := math.Sqrt(downside / float64(len(returns)))
	if downsideDev != 0 {
		sortino = mean / downsideDev * annFactor
	} else {
		logger.S().Debug("指标计算: 无下行收益样本, 索提诺比率取哨兵值 0")
	}
	return vol, sharpe, sortino
}

// tradeStats 统计成交层面的指标: 买卖次数、平均成交价、胜率。
// 胜率 = 盈利卖出次数 / 全部卖出次数, 没有卖出时取哨兵值 0。
func tradeStats(m *models.Metrics, txns []models.Transaction) {
	var buySum, sellSum float64
	var wins int
	for _, txn := range txns {
		switch txn.Side {
		case models.Buy:
			m.TotalBuys++
			buySum += txn.Price
		case models.Sell:
			m.TotalSells++
			sellSum += txn.Price
			if txn.RealizedPNL > 0 {
				wins++
			}
		}
	}
	m.NumTrades = m.TotalBuys + m.TotalSells
	if m.TotalBuys > 0 {
		m.AvgBuyPrice = buySum / float64(m.TotalBuys)
	}
	if m.TotalSells > 0 {
		m.AvgSellPrice = sellSum / float64(m.TotalSells)
		m.WinRate = float64(wins) / float64(m.TotalSells)
	} else {
		logger.S().Debug("指标计算: 没有卖出成交, 胜率取哨兵值 0")
	}
}
