package engine

import (
	"testing"
	"time"

	"dca-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeBars 用收盘价序列构造连续交易日的K线, 起始日固定
func makeBars(closes ...float64) []models.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func stepAll(t *GridTrader, bars []models.PriceBar) []models.Transaction {
	var txns []models.Transaction
	for _, bar := range bars {
		txns = append(txns, t.StepDay(bar, AllowAll{})...)
	}
	return txns
}

// 网格边界取舍: 相对距离必须严格大于网格间距才允许买入。
// 收盘 100 建仓; 90 距 100 恰好 10%, 落在边界上, 跳过;
// 81 距唯一未平仓手 (100) 19%, 买入。
func TestGridBuyBoundaryExclusive(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
	})
	txns := stepAll(trader, makeBars(100, 90, 81))

	require.Len(t, txns, 2)
	assert.Equal(t, models.Buy, txns[0].Side)
	assert.Equal(t, 100.0, txns[0].Price)
	assert.Equal(t, 81.0, txns[1].Price)
	assert.Equal(t, models.ReasonGrid, txns[1].Reason)
	assert.Len(t, trader.Position().Lots, 2)
}

// 网格买入必须与每一手未平仓持仓都保持距离, 而不只是最近的一手
func TestGridBuyChecksEveryLot(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             5,
		GridIntervalPercent: 0.10,
	})
	// 60 距 80 为 25%, 但距 55 仅 9.1%, 不合格
	trader.StepDay(makeBars(80)[0], AllowAll{})
	trader.StepDay(makeBars(55)[0], AllowAll{})
	txns := trader.StepDay(makeBars(60)[0], AllowAll{})

	assert.Empty(t, txns)
	assert.Len(t, trader.Position().Lots, 2)
}

// max_lots=1 时无论价格怎么走都不会有第二次买入
func TestMaxLotsBoundary(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             1,
		GridIntervalPercent: 0.10,
	})
	txns := stepAll(trader, makeBars(100, 50, 25, 10, 200))

	require.Len(t, txns, 1)
	assert.Equal(t, 100.0, txns[0].Price)
}

// 限价追踪卖出: 执行价超出记录的限价时被拦截并撤单, 不成交。
// 80 建仓 (限价 = 80*1.25 = 100), 110 激活 (触发价 99),
// 115 触发但超限 → 撤单, 持仓不变。
func TestTrailingSellLimitBreachCancels(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             1,
		GridIntervalPercent: 0.10,
		SellActivation:      0.10,
		SellPullback:        0.25,
		OrderType:           models.OrderLimit,
		EnableTrailingSell:  true,
	})
	txns := stepAll(trader, makeBars(80, 110, 115))

	require.Len(t, txns, 1) // 只有建仓买入
	assert.Equal(t, models.Buy, txns[0].Side)
	assert.False(t, trader.HasTrailingSell())
	assert.Len(t, trader.Position().Lots, 1)
}

// 市价追踪卖出一经触发必然成交, 不存在限价拦截
func TestTrailingSellMarketAlwaysExecutes(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             1,
		GridIntervalPercent: 0.10,
		SellActivation:      0.10,
		SellPullback:        0.25,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
	})
	txns := stepAll(trader, makeBars(80, 110, 115))

	// 卖出清仓后当日无 OCO 挂单, 网格立即重新建仓
	require.Len(t, txns, 3)
	sell := txns[1]
	assert.Equal(t, models.Sell, sell.Side)
	assert.Equal(t, 115.0, sell.Price)
	assert.Equal(t, models.ReasonTrailing, sell.Reason)
	// shares = 1000/80 = 12.5, pnl = (115-80)*12.5
	assert.InDelta(t, 437.5, sell.RealizedPNL, 1e-9)
	assert.InDelta(t, 1000.0, sell.CostBasis, 1e-9)
	require.Len(t, trader.Position().Lots, 1)
	assert.Equal(t, 115.0, trader.Position().Lots[0].EntryPrice)
}

// 价格回落穿过激活参考价时追踪卖出单取消
func TestTrailingSellCancelsOnRegression(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             1,
		GridIntervalPercent: 0.10,
		SellActivation:      0.10,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
	})
	bars := makeBars(80, 110, 105)
	trader.StepDay(bars[0], AllowAll{})
	trader.StepDay(bars[1], AllowAll{})
	require.True(t, trader.HasTrailingSell())

	// 105 低于激活参考价 110, 撤单; 但 105 仍高于触发价之上的废弃路径,
	// 撤单必须发生在执行检查之前
	txns := trader.StepDay(bars[2], AllowAll{})
	assert.Empty(t, txns)
	assert.False(t, trader.HasTrailingSell())
	assert.Len(t, trader.Position().Lots, 1)
}

// 卖出成交后立即挂 OCO 对; 次日价格跌破限价腿则限价买回成交,
// 另一腿取消, 对清空
func TestOCOLimitLegExecutes(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             2,
		GridIntervalPercent: 0.20,
		SellActivation:      0.10,
		BuyActivation:       0.05,
		BuyRebound:          0.03,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
		EnableOCO:           true,
	})
	// 100 建仓 → 115 激活追踪 → 116 卖出并挂 OCO (限价腿 116*0.95=110.2)
	bars := makeBars(100, 115, 116, 109)
	txns := stepAll(trader, bars[:3])
	require.Len(t, txns, 2)
	require.True(t, trader.HasOCO())

	txns = trader.StepDay(bars[3], AllowAll{})
	require.Len(t, txns, 1)
	assert.Equal(t, models.Buy, txns[0].Side)
	assert.Equal(t, models.ReasonOCOLimit, txns[0].Reason)
	assert.Equal(t, 109.0, txns[0].Price)
	assert.False(t, trader.HasOCO())
}

// OCO 追踪买入腿: 价格先压低参考价再反弹到触发价时成交
func TestOCOTrailingLegExecutes(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             2,
		GridIntervalPercent: 0.20,
		SellActivation:      0.10,
		BuyActivation:       0.05,
		BuyRebound:          0.03,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
		EnableOCO:           true,
	})
	// 卖出价 116: 限价腿 110.2; 111 压低参考价 (触发价 111*1.03=114.33),
	// 115 反弹穿过触发价 → 追踪腿成交
	bars := makeBars(100, 115, 116, 111, 115)
	txns := stepAll(trader, bars)

	require.Len(t, txns, 3)
	buy := txns[2]
	assert.Equal(t, models.ReasonOCOTrailing, buy.Reason)
	assert.Equal(t, 115.0, buy.Price)
	assert.False(t, trader.HasOCO())
}

// OCO 挂单当日不参与解析, 次日才生效。
// 反弹比例取 0, 追踪腿触发价 == 卖出价, 若当日就解析则必然立即成交;
// 断言当日不成交, 次日同价才成交。
func TestOCONotResolvedOnCreationDay(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             2,
		GridIntervalPercent: 0.20,
		SellActivation:      0.10,
		BuyActivation:       0.05,
		BuyRebound:          0,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
		EnableOCO:           true,
	})
	bars := makeBars(100, 115, 116, 116)
	txns := stepAll(trader, bars[:3])
	require.Len(t, txns, 2)
	require.True(t, trader.HasOCO())

	txns = trader.StepDay(bars[3], AllowAll{})
	require.Len(t, txns, 1)
	assert.Equal(t, models.ReasonOCOTrailing, txns[0].Reason)
	assert.False(t, trader.HasOCO())
}

// OCO 挂单期间暂停普通网格买入
func TestGridBuySuspendedWhileOCOOutstanding(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.20,
		SellActivation:      0.10,
		BuyActivation:       0.30,
		BuyRebound:          0.50,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
		EnableOCO:           true,
	})
	// 卖出价 116 → 限价腿 81.2, 追踪腿触发远在上方。
	// 140 距离任何持仓都够远 (空仓本就无条件合格), 本该网格买入,
	// 但 OCO 挂单中 → 跳过
	bars := makeBars(100, 115, 116, 140)
	txns := stepAll(trader, bars)

	require.Len(t, txns, 2)
	assert.True(t, trader.HasOCO())
	assert.Empty(t, trader.Position().Lots)
}

// 平均成本在每次买卖后都等于未平仓手的股数加权均价
func TestAvgCostTracksOpenLots(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
	})
	txns := stepAll(trader, makeBars(100, 80, 60))
	require.Len(t, txns, 3)

	for _, txn := range txns {
		var value, shares float64
		for _, lot := range txn.OpenLots {
			value += lot.EntryPrice * lot.Shares
			shares += lot.Shares
		}
		require.Greater(t, shares, 0.0)
		assert.InDelta(t, value/shares, txn.AvgCost, 1e-9)
	}
	pos := trader.Position()
	assert.InDelta(t, pos.AvgCost(), txns[2].AvgCost, 1e-9)
}

// 加仓放大: 每多持有一手, 下一手金额按放大系数递增
func TestScalingIncreasesLotCost(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
		EnableScaling:       true,
		ScalingFactor:       0.5,
	})
	txns := stepAll(trader, makeBars(100, 80, 60))

	require.Len(t, txns, 3)
	assert.InDelta(t, 1000.0, txns[0].AmountUSD, 1e-9)
	assert.InDelta(t, 1500.0, txns[1].AmountUSD, 1e-9)
	assert.InDelta(t, 2000.0, txns[2].AmountUSD, 1e-9)
}

// 动态网格: 间距按 sqrt(当前价/基准价) 缩放, 基准取首笔成交价。
// 价格低于基准时有效间距收窄, 原本不合格的候选价变得合格。
func TestDynamicGridNarrowsSpacingBelowBaseline(t *testing.T) {
	static := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
	})
	dynamic := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
		EnableDynamicGrid:   true,
	})
	// 90.4 距 100 为 9.6%: 静态间距 10% 不合格;
	// 动态间距 = 0.10*sqrt(90.4/100) ≈ 9.508% < 9.6% → 合格
	bars := makeBars(100, 90.4)
	staticTxns := stepAll(static, bars)
	dynamicTxns := stepAll(dynamic, bars)

	assert.Len(t, staticTxns, 1)
	assert.Len(t, dynamicTxns, 2)
}

// 空头模式: 方向系数取反后, 价格上涨触发网格加仓, 下跌触发止盈
func TestShortModeProfitsOnDecline(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             1,
		GridIntervalPercent: 0.10,
		SellActivation:      0.10,
		OrderType:           models.OrderMarket,
		StrategyMode:        models.ModeShort,
		EnableTrailingSell:  true,
	})
	// 100 开空 → 85 盈利且距离足够 (100*0.90=90 >= 85) → 激活追踪
	// (参考价 85, 触发价 85*1.10=93.5) → 80 在触发价下方, 平仓在 80
	bars := makeBars(100, 85, 80)
	trader.StepDay(bars[0], AllowAll{})
	trader.StepDay(bars[1], AllowAll{})
	require.True(t, trader.HasTrailingSell())

	// 平仓后当日网格立即重新开空
	txns := trader.StepDay(bars[2], AllowAll{})
	require.Len(t, txns, 2)
	sell := txns[0]
	assert.Equal(t, models.Sell, sell.Side)
	// shares = 1000/100 = 10, 空头盈亏 = (100-80)*10
	assert.InDelta(t, 200.0, sell.RealizedPNL, 1e-9)
	require.Len(t, trader.Position().Lots, 1)
	assert.Equal(t, 80.0, trader.Position().Lots[0].EntryPrice)
}

// 每个标的同一时刻最多一张追踪卖出单、一对 OCO (结构上由单槽保证,
// 这里验证状态机在整段行情里从不同时挂出两者之外的组合)
func TestSingleSlotInvariants(t *testing.T) {
	trader := NewGridTrader("TSLA", models.Params{
		LotSizeUSD:          1000,
		MaxLots:             3,
		GridIntervalPercent: 0.10,
		SellActivation:      0.10,
		BuyActivation:       0.05,
		BuyRebound:          0.03,
		OrderType:           models.OrderMarket,
		EnableTrailingSell:  true,
		EnableOCO:           true,
	})
	closes := []float64{100, 88, 110, 121, 115, 108, 120, 95, 130, 125}
	for _, bar := range makeBars(closes...) {
		trader.StepDay(bar, AllowAll{})
		assert.LessOrEqual(t, len(trader.Position().Lots), 3)
	}
}
