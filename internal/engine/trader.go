package engine

import (
	"fmt"
	"math"
	"time"

	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/models"

	"github.com/jxskiss/base62"
)

// BuyGate 决定一笔买入是否允许执行。
// 单标的模式下资金不设限; 组合模式由资金池实现这个接口,
// 拒绝时由资金池一侧记录 RejectedOrder, 当日不再重试。
type BuyGate interface {
	ApproveBuy(symbol string, date time.Time, cost float64) bool
}

// AllowAll 是单标的模式的放行闸门: 买入资金不受约束。
type AllowAll struct{}

// ApproveBuy 总是放行
func (AllowAll) ApproveBuy(string, time.Time, float64) bool { return true }

// GridTrader 是一个标的的订单状态机。
// 它逐日消费收盘价, 维护持仓手、追踪卖出单和 OCO 买回对,
// 产出买卖成交记录。所有触发/执行比较只使用当日收盘价,
// 不模拟K线内部路径, 也没有部分成交。
type GridTrader struct {
	symbol string
	params models.Params

	position     models.Position
	trailingSell *models.TrailingOrder // 单槽: 同一时刻最多一张
	oco          *models.OCOPair       // 单槽: 同一时刻最多一对

	gridBaseline float64 // 动态网格的基准价, 取本次运行第一笔买入价, 之后固定不变
	realizedPNL  float64
	maxOpenLots  int
	txnSeq       int64
}

// NewGridTrader 创建一个标的的订单状态机。参数需已通过校验。
func NewGridTrader(symbol string, params models.Params) *GridTrader {
	return &GridTrader{symbol: symbol, params: params}
}

// dir 返回策略方向系数: 多头 +1, 空头 -1。
// 多空分发集中在这一个点, 其余逻辑全部用方向系数表达,
// 不做运行时类型判断, 也不引入继承层次。
func (t *GridTrader) dir() float64 {
	if t.params.StrategyMode == models.ModeShort {
		return -1
	}
	return 1
}

// StepDay 按单标的模式的严格顺序处理一个交易日:
//  1. 更新或取消追踪卖出单
//  2. 解析 OCO 买回对 (先限价腿后追踪腿, 任一成交即取消另一腿)
//  3. 检查追踪卖出执行; 成交后立即以卖出价为基准挂新的 OCO 对
//  4. 无 OCO 挂单且未满仓时评估网格买入
//  5. 尝试(重新)激活追踪卖出
//
// 没有任何动作满足条件的日子不改变状态。
func (t *GridTrader) StepDay(bar models.PriceBar, gate BuyGate) []models.Transaction {
	var txns []models.Transaction
	t.updateTrailingSell(bar)
	txns = append(txns, t.resolveOCO(bar, gate)...)
	txns = append(txns, t.executeTrailingSell(bar)...)
	txns = append(txns, t.gridBuy(bar, gate)...)
	t.armTrailingSell(bar)
	return txns
}

// SellPhase 只执行卖出侧 (步骤 1 和 3)。组合模式下由资金分配器调用:
// 全部标的的卖出先于任何买入执行。
func (t *GridTrader) SellPhase(bar models.PriceBar) []models.Transaction {
	t.updateTrailingSell(bar)
	return t.executeTrailingSell(bar)
}

// BuyPhase 执行买入侧 (步骤 2、4) 和追踪卖出的重新激活 (步骤 5)。
// OCO 解析仍然先于重新激活, 与单标的模式保持一致。
func (t *GridTrader) BuyPhase(bar models.PriceBar, gate BuyGate) []models.Transaction {
	var txns []models.Transaction
	txns = append(txns, t.resolveOCO(bar, gate)...)
	txns = append(txns, t.gridBuy(bar, gate)...)
	t.armTrailingSell(bar)
	return txns
}

// --- 步骤 1: 追踪卖出单的更新与取消 ---

// updateTrailingSell 让参考价朝有利方向棘轮移动, 并检查取消条件:
// 价格跌回激活参考价之下, 或跌破平均持仓成本。
func (t *GridTrader) updateTrailingSell(bar models.PriceBar) {
	if t.trailingSell == nil {
		return
	}
	dir := t.dir()
	close := bar.Close
	order := t.trailingSell

	// 参考价只朝有利方向移动
	if dir*(close-order.Reference) > 0 {
		order.Reference = close
		order.TriggerPrice = order.Reference * (1 - dir*t.params.SellActivation)
	}

	avgCost := t.position.AvgCost()
	if dir*(close-avgCost) < 0 {
		logger.S().Debugf("[%s] %s 追踪卖出单取消: 收盘 %.4f 跌破持仓成本 %.4f",
			t.symbol, bar.Date.Format("2006-01-02"), close, avgCost)
		t.trailingSell = nil
		return
	}
	if dir*(close-order.ArmedReference) < 0 {
		logger.S().Debugf("[%s] %s 追踪卖出单取消: 收盘 %.4f 回落穿过激活参考价 %.4f",
			t.symbol, bar.Date.Format("2006-01-02"), close, order.ArmedReference)
		t.trailingSell = nil
	}
}

// --- 步骤 2: OCO 对的解析 ---

// resolveOCO 检查两腿的触发条件, 先检查限价买回腿, 再检查追踪买入腿。
// 任一腿成交即清掉整对; 都未触发则继续挂着。
// 当日刚挂出的对不参与解析, 下个交易日才生效。
func (t *GridTrader) resolveOCO(bar models.PriceBar, gate BuyGate) []models.Transaction {
	if t.oco == nil || t.oco.Created.Equal(bar.Date) {
		return nil
	}
	dir := t.dir()
	close := bar.Close
	pair := t.oco

	// 满仓时这对订单已无意义, 直接撤掉
	if len(t.position.Lots) >= t.params.MaxLots {
		logger.S().Debugf("[%s] %s OCO 对撤销: 持仓已满", t.symbol, bar.Date.Format("2006-01-02"))
		t.oco = nil
		return nil
	}

	// 限价买回腿: 价格回落到限价之下成交
	if dir*(close-pair.LimitPrice) <= 0 {
		t.oco = nil // 无论资金是否放行, 这一腿已触发, 另一腿取消, 整对消耗掉
		if txn, ok := t.buyLot(bar, gate, models.ReasonOCOLimit); ok {
			return []models.Transaction{txn}
		}
		return nil
	}

	// 追踪买入腿: 参考价跟随激活以来的最低(多头)价格, 反弹到触发价成交
	leg := &pair.TrailingBuy
	if dir*(close-leg.Reference) < 0 {
		leg.Reference = close
		leg.TriggerPrice = leg.Reference * (1 + dir*t.params.BuyRebound)
	}
	if dir*(close-leg.TriggerPrice) >= 0 {
		t.oco = nil
		if txn, ok := t.buyLot(bar, gate, models.ReasonOCOTrailing); ok {
			return []models.Transaction{txn}
		}
		return nil
	}
	return nil
}

// --- 步骤 3: 追踪卖出执行 ---

// executeTrailingSell 用当日收盘价检查追踪卖出单。
// 触发后: LIMIT 类型在执行价越过记录的限价时被拦截并撤单
// (这是预期的业务结果, 不是错误); MARKET 类型一经触发必然执行。
// 成交时整手实现盈亏、重算平均成本、清掉追踪单, 并立即
// 以卖出价为基准挂出新的 OCO 买回对。
func (t *GridTrader) executeTrailingSell(bar models.PriceBar) []models.Transaction {
	if t.trailingSell == nil {
		return nil
	}
	dir := t.dir()
	close := bar.Close
	order := t.trailingSell

	// 未到触发价: 继续等
	if dir*(close-order.TriggerPrice) < 0 {
		return nil
	}

	execPrice := close
	if order.OrderType == models.OrderLimit && dir*(execPrice-order.LimitPrice) > 0 {
		// 执行价越过了记录的限价: 拦截执行并撤单
		logger.S().Infof("[%s] %s 限价追踪卖出被拦截并撤单: 执行价 %.4f 超出限价 %.4f",
			t.symbol, bar.Date.Format("2006-01-02"), execPrice, order.LimitPrice)
		t.trailingSell = nil
		return nil
	}

	lot, ok := t.takeLot(order.TargetEntry)
	if !ok {
		// 锁定的那手已不存在 (防御性, 正常流程不会发生)
		t.trailingSell = nil
		return nil
	}

	pnl := dir * (execPrice - lot.EntryPrice) * lot.Shares
	t.realizedPNL += pnl
	t.trailingSell = nil

	txn := t.record(bar.Date, models.Sell, execPrice, lot.Shares, models.ReasonTrailing)
	txn.RealizedPNL = pnl
	txn.CostBasis = lot.Cost()

	// 卖出即挂 OCO 买回对, 以卖出价为基准
	if t.params.EnableOCO {
		t.oco = &models.OCOPair{
			SalePrice:  execPrice,
			LimitPrice: execPrice * (1 - dir*t.params.BuyActivation),
			TrailingBuy: models.TrailingOrder{
				ArmedReference: execPrice,
				Reference:      execPrice,
				TriggerPrice:   execPrice * (1 + dir*t.params.BuyRebound),
				OrderType:      models.OrderMarket,
				ArmedDate:      bar.Date,
			},
			Created: bar.Date,
		}
	}
	return []models.Transaction{txn}
}

// --- 步骤 4: 网格买入 ---

// gridSpacing 返回某个候选价生效的网格间距。
// 动态网格按归一化价格水平的平方根缩放间距, 基准取本次运行的
// 第一笔成交价并固定不变。这是一个可调policy, 不是推导出的规则。
func (t *GridTrader) gridSpacing(price float64) float64 {
	spacing := t.params.GridIntervalPercent
	if t.params.EnableDynamicGrid && t.gridBaseline > 0 {
		spacing *= math.Sqrt(price / t.gridBaseline)
	}
	return spacing
}

// gridBuy 评估网格买入。候选价必须与【每一手】未平仓的建仓价
// 都保持超过网格间距的相对距离 (严格大于; 距离恰好等于间距视为
// 不合格, 见 DESIGN.md 的边界取舍)。OCO 挂单期间暂停网格买入。
func (t *GridTrader) gridBuy(bar models.PriceBar, gate BuyGate) []models.Transaction {
	if t.oco != nil {
		return nil
	}
	if len(t.position.Lots) >= t.params.MaxLots {
		return nil
	}
	close := bar.Close
	spacing := t.gridSpacing(close)
	for _, lot := range t.position.Lots {
		if math.Abs(close-lot.EntryPrice)/lot.EntryPrice <= spacing {
			return nil
		}
	}
	if txn, ok := t.buyLot(bar, gate, models.ReasonGrid); ok {
		return []models.Transaction{txn}
	}
	return nil
}

// --- 步骤 5: 追踪卖出的(重新)激活 ---

// armTrailingSell 在持仓盈利、当前没有追踪卖出单、且存在合格手
// (建仓价最高的那手距当前价足够远) 时挂出新的追踪卖出单。
// 参考价取当日收盘, 触发价 = 参考价*(1-sellActivation),
// 限价 = 合格手建仓价按回调系数上浮。
func (t *GridTrader) armTrailingSell(bar models.PriceBar) {
	if !t.params.EnableTrailingSell || t.trailingSell != nil || len(t.position.Lots) == 0 {
		return
	}
	dir := t.dir()
	close := bar.Close

	if dir*(close-t.position.AvgCost()) <= 0 {
		return // 持仓未盈利
	}

	// 合格手: 建仓价最高(多头)的那手, 且距当前价至少 sellActivation
	best := t.position.Lots[0]
	for _, lot := range t.position.Lots[1:] {
		if dir*(lot.EntryPrice-best.EntryPrice) > 0 {
			best = lot
		}
	}
	if dir*(close-best.EntryPrice*(1+dir*t.params.SellActivation)) < 0 {
		return
	}

	t.trailingSell = &models.TrailingOrder{
		ArmedReference: close,
		Reference:      close,
		TriggerPrice:   close * (1 - dir*t.params.SellActivation),
		OrderType:      t.params.OrderType,
		TargetEntry:    best.EntryPrice,
		ArmedDate:      bar.Date,
	}
	if t.params.OrderType == models.OrderLimit {
		t.trailingSell.LimitPrice = best.EntryPrice * (1 + dir*t.params.SellPullback)
	}
}

// --- 持仓与成交记录的内部操作 ---

// lotCost 返回下一手的买入金额。启用加仓放大时, 金额随已持有手数放大。
func (t *GridTrader) lotCost() float64 {
	cost := t.params.LotSizeUSD
	if t.params.EnableScaling {
		cost *= 1 + t.params.ScalingFactor*float64(len(t.position.Lots))
	}
	return cost
}

// buyLot 在闸门放行后按收盘价买入一手
func (t *GridTrader) buyLot(bar models.PriceBar, gate BuyGate, reason string) (models.Transaction, bool) {
	if len(t.position.Lots) >= t.params.MaxLots {
		return models.Transaction{}, false
	}
	cost := t.lotCost()
	if !gate.ApproveBuy(t.symbol, bar.Date, cost) {
		return models.Transaction{}, false
	}
	shares := cost / bar.Close
	t.position.Lots = append(t.position.Lots, models.Lot{
		EntryPrice: bar.Close,
		Shares:     shares,
		EntryDate:  bar.Date,
	})
	if t.gridBaseline == 0 {
		t.gridBaseline = bar.Close
	}
	if len(t.position.Lots) > t.maxOpenLots {
		t.maxOpenLots = len(t.position.Lots)
	}
	return t.record(bar.Date, models.Buy, bar.Close, shares, reason), true
}

// takeLot 按建仓价取出并销毁一手。找不到完全匹配时退回建仓价
// 方向上最极端的那手, 保证卖出总能落在一手真实持仓上。
func (t *GridTrader) takeLot(entryPrice float64) (models.Lot, bool) {
	if len(t.position.Lots) == 0 {
		return models.Lot{}, false
	}
	idx := -1
	for i, lot := range t.position.Lots {
		if lot.EntryPrice == entryPrice {
			idx = i
			break
		}
	}
	if idx < 0 {
		dir := t.dir()
		idx = 0
		for i, lot := range t.position.Lots {
			if dir*(lot.EntryPrice-t.position.Lots[idx].EntryPrice) > 0 {
				idx = i
			}
		}
	}
	lot := t.position.Lots[idx]
	t.position.Lots = append(t.position.Lots[:idx], t.position.Lots[idx+1:]...)
	return lot, true
}

// record 生成一条成交记录并附上成交后的持仓快照
func (t *GridTrader) record(date time.Time, side models.Side, price, shares float64, reason string) models.Transaction {
	t.txnSeq++
	snapshot := make([]models.Lot, len(t.position.Lots))
	copy(snapshot, t.position.Lots)
	return models.Transaction{
		ID:        fmt.Sprintf("%s-%s", t.symbol, base62.FormatInt(t.txnSeq)),
		Date:      date,
		Symbol:    t.symbol,
		Side:      side,
		Price:     price,
		Shares:    shares,
		AmountUSD: price * shares,
		Reason:    reason,
		AvgCost:   t.position.AvgCost(),
		OpenLots:  snapshot,
	}
}

// --- 只读访问器 ---

// Position 返回当前持仓的副本
func (t *GridTrader) Position() models.Position {
	lots := make([]models.Lot, len(t.position.Lots))
	copy(lots, t.position.Lots)
	return models.Position{Lots: lots}
}

// RealizedPNL 返回累计已实现盈亏
func (t *GridTrader) RealizedPNL() float64 { return t.realizedPNL }

// UnrealizedPNL 返回按给定收盘价计算的未实现盈亏
func (t *GridTrader) UnrealizedPNL(close float64) float64 {
	dir := t.dir()
	var pnl float64
	for _, lot := range t.position.Lots {
		pnl += dir * (close - lot.EntryPrice) * lot.Shares
	}
	return pnl
}

// DeployedCost 返回未平仓手的建仓成本之和
func (t *GridTrader) DeployedCost() float64 { return t.position.DeployedCost() }

// MaxOpenLots 返回整个运行期间同时持有的最大手数
func (t *GridTrader) MaxOpenLots() int { return t.maxOpenLots }

// HasTrailingSell 报告当前是否有激活的追踪卖出单
func (t *GridTrader) HasTrailingSell() bool { return t.trailingSell != nil }

// HasOCO 报告当前是否有挂出的 OCO 对
func (t *GridTrader) HasOCO() bool { return t.oco != nil }
