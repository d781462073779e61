package metrics

import (
	"dca-backtest-go/internal/models"
)

// targetTradesPerYear 是交易活跃度子项打满分所需的单标的年均成交次数。
// 网格DCA策略的理想节奏大约是每月一次动作。
const targetTradesPerYear = 12.0

// suitability 计算 DCA 适配度评分: 四个等权子项各 25 分。
//   - 交易活跃度: 单标的年均成交次数相对目标节奏
//   - 盈利退出: 卖出胜率
//   - 资金利用率: 平均已投入资金占初始资金的比例
//   - 网格利用率: 运行期间最大同时持有手数占 max_lots 的比例
//
// 每个子项同时带回原始统计量, 报表展示用。
func suitability(in Inputs, m *models.Metrics) models.SuitabilityScore {
	var score models.SuitabilityScore

	years := spanYears(in.Equity)
	instruments := in.Instruments
	if instruments < 1 {
		instruments = 1
	}
	var tradesPerYear float64
	if years > 0 {
		tradesPerYear = float64(m.NumTrades) / float64(instruments) / years
	}
	score.TradeActivity = models.ScoreComponent{
		Points: clamp01(tradesPerYear/targetTradesPerYear) * 25,
		Raw:    tradesPerYear,
		Stat:   "单标的年均成交次数",
	}

	score.ProfitableExits = models.ScoreComponent{
		Points: clamp01(m.WinRate) * 25,
		Raw:    m.WinRate,
		Stat:   "卖出胜率",
	}

	var utilization float64
	if in.InitialCapital > 0 && len(in.Deployed) > 0 {
		var sum float64
		for _, pt := range in.Deployed {
			sum += pt.Value
		}
		utilization = sum / float64(len(in.Deployed)) / in.InitialCapital
	}
	score.CapitalUtilization = models.ScoreComponent{
		Points: clamp01(utilization) * 25,
		Raw:    utilization,
		Stat:   "平均已投入资金占比",
	}

	score.GridUtilization = models.ScoreComponent{
		Points: clamp01(in.GridDepthUsed) * 25,
		Raw:    in.GridDepthUsed,
		Stat:   "最大同时持有手数占比",
	}

	score.Total = score.TradeActivity.Points + score.ProfitableExits.Points +
		score.CapitalUtilization.Points + score.GridUtilization.Points
	return score
}

// Interpretation 把适配度总分翻译成结论文本
func Interpretation(total float64) string {
	switch {
	case total < 30:
		return "较差: 该标的不适合网格DCA策略"
	case total < 50:
		return "一般: 策略可用但需要调参"
	case total < 70:
		return "良好: 该标的适合网格DCA策略"
	default:
		return "优秀: 该标的非常适合网格DCA策略"
	}
}

// spanYears 返回权益曲线覆盖的年数
func spanYears(equity []models.SeriesPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	days := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24
	return days / 365.25
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
