package sweep

import (
	"context"
	"math"
	"testing"
	"time"

	"dca-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waveBars(n int) []models.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 100 + 20*math.Sin(float64(i)/5)
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func baseParams() models.Params {
	return models.Params{
		LotSizeUSD:         1000,
		MaxLots:            3,
		SellPullback:       0.10,
		BuyActivation:      0.05,
		BuyRebound:         0.03,
		OrderType:          models.OrderMarket,
		StrategyMode:       models.ModeLong,
		EnableTrailingSell: true,
	}
}

func TestGridExpandsCartesianProduct(t *testing.T) {
	combos := Grid([]float64{0.05, 0.10}, []float64{0.04, 0.08, 0.12})
	assert.Len(t, combos, 6)
}

func TestRunRanksByReturnDescending(t *testing.T) {
	combos := Grid([]float64{0.05, 0.10, 0.15}, []float64{0.05, 0.10})
	outcomes, err := Run(context.Background(), "TSLA", waveBars(90), baseParams(), combos, 30)
	require.NoError(t, err)
	require.Len(t, outcomes, 6)

	for i := 1; i < len(outcomes); i++ {
		require.NoError(t, outcomes[i].Err)
		assert.GreaterOrEqual(t,
			outcomes[i-1].Result.Metrics.TotalReturnPct,
			outcomes[i].Result.Metrics.TotalReturnPct)
	}
}

// 扫描结果与并发调度无关: 重复运行排名一致
func TestRunDeterministicAcrossRuns(t *testing.T) {
	combos := Grid([]float64{0.05, 0.08, 0.12}, []float64{0.05, 0.10})
	first, err := Run(context.Background(), "TSLA", waveBars(90), baseParams(), combos, 30)
	require.NoError(t, err)
	second, err := Run(context.Background(), "TSLA", waveBars(90), baseParams(), combos, 30)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Combo, second[i].Combo)
		assert.Equal(t, first[i].Result.Metrics.TotalReturnPct, second[i].Result.Metrics.TotalReturnPct)
	}
}

// 非法组合不会中止扫描, 带着错误排在最后
func TestRunCollectsPerComboErrors(t *testing.T) {
	combos := []Combo{
		{GridIntervalPercent: 0.10, SellActivation: 0.05},
		{GridIntervalPercent: 1.5, SellActivation: 0.05}, // 超出 (0,1)
	}
	outcomes, err := Run(context.Background(), "TSLA", waveBars(90), baseParams(), combos, 30)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, outcomes[1].Err, &cfgErr)
}

// 已取消的 ctx: 不再启动任何组合, 返回 ctx 的错误
func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Run(ctx, "TSLA", waveBars(90), baseParams(), Grid([]float64{0.05, 0.10}, []float64{0.05}), 30)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}
