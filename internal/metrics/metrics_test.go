package metrics

import (
	"testing"
	"time"

	"dca-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(values ...float64) []models.SeriesPoint {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = models.SeriesPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func sell(pnl float64) models.Transaction {
	return models.Transaction{Side: models.Sell, Price: 100, RealizedPNL: pnl}
}

func buy() models.Transaction {
	return models.Transaction{Side: models.Buy, Price: 100}
}

func TestComputeTotalReturnAndDrawdown(t *testing.T) {
	m := Compute(Inputs{
		InitialCapital: 100,
		Equity:         series(100, 120, 90, 110),
		Instruments:    1,
	})

	assert.InDelta(t, 10.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, 10.0, m.TotalReturnPct, 1e-9)
	// 峰值 120 → 谷底 90
	assert.InDelta(t, 30.0, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 25.0, m.MaxDrawdownPct, 1e-9)
}

// 退化输入: 零方差、零分母、空序列都返回哨兵值 0, 不产生 NaN/Inf
func TestComputeDegenerateSentinels(t *testing.T) {
	flat := Compute(Inputs{InitialCapital: 100, Equity: series(100, 100, 100), Instruments: 1})
	assert.Zero(t, flat.SharpeRatio)
	assert.Zero(t, flat.SortinoRatio)
	assert.Zero(t, flat.AnnualVolatility)
	assert.Zero(t, flat.MaxDrawdown)
	assert.Zero(t, flat.WinRate)

	empty := Compute(Inputs{InitialCapital: 100, Instruments: 1})
	assert.Zero(t, empty.FinalCapital)
	assert.Zero(t, empty.TotalReturnPct)

	zeroCapital := Compute(Inputs{InitialCapital: 0, Equity: series(0, 10), Instruments: 1})
	assert.Zero(t, zeroCapital.TotalReturnPct)
}

func TestComputeWinRateAndTradeCounts(t *testing.T) {
	m := Compute(Inputs{
		InitialCapital: 1000,
		Equity:         series(1000, 1010, 1020),
		Transactions: []models.Transaction{
			buy(), buy(), buy(),
			sell(50), sell(-20), sell(0), sell(30),
		},
		Instruments: 1,
	})

	assert.Equal(t, 7, m.NumTrades)
	assert.Equal(t, 3, m.TotalBuys)
	assert.Equal(t, 4, m.TotalSells)
	// 盈利卖出 2/4 (盈亏为 0 不算盈利)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
}

func TestSharpePositiveForRisingEquity(t *testing.T) {
	m := Compute(Inputs{
		InitialCapital: 100,
		Equity:         series(100, 101, 103, 104, 107, 108),
		Instruments:    1,
	})
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Greater(t, m.AnnualVolatility, 0.0)
	// 全程无下行收益日 → 索提诺取哨兵值
	assert.Zero(t, m.SortinoRatio)
}

// 适配度评分: 四个子项各 25 分封顶, 原始统计量随分数一起带回
func TestSuitabilityComponents(t *testing.T) {
	eq := make([]float64, 0, 366)
	dep := make([]float64, 0, 366)
	for i := 0; i < 366; i++ {
		eq = append(eq, 1000)
		dep = append(dep, 500)
	}
	var txns []models.Transaction
	for i := 0; i < 12; i++ {
		txns = append(txns, buy())
	}
	m := Compute(Inputs{
		InitialCapital: 1000,
		Equity:         series(eq...),
		Deployed:       series(dep...),
		Transactions:   txns,
		Instruments:    1,
		GridDepthUsed:  1.5, // 超出 1 的输入被钳到满分
	})

	score := m.Suitability
	// 366 天约一年, 12 笔 ≈ 目标节奏 → 接近满分
	assert.InDelta(t, 25.0, score.TradeActivity.Points, 1.0)
	assert.InDelta(t, 12.0, score.TradeActivity.Raw, 0.5)
	assert.Zero(t, score.ProfitableExits.Points) // 没有卖出
	assert.InDelta(t, 12.5, score.CapitalUtilization.Points, 1e-6)
	assert.InDelta(t, 25.0, score.GridUtilization.Points, 1e-9)
	assert.InDelta(t,
		score.TradeActivity.Points+score.ProfitableExits.Points+
			score.CapitalUtilization.Points+score.GridUtilization.Points,
		score.Total, 1e-9)
	require.LessOrEqual(t, score.Total, 100.0)
}

func TestInterpretationBands(t *testing.T) {
	assert.Contains(t, Interpretation(10), "较差")
	assert.Contains(t, Interpretation(35), "一般")
	assert.Contains(t, Interpretation(55), "良好")
	assert.Contains(t, Interpretation(80), "优秀")
}
