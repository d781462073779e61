package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderKind 定义了止损/止盈订单的执行方式
type OrderKind string

const (
	OrderLimit  OrderKind = "LIMIT"
	OrderMarket OrderKind = "MARKET"
)

// StrategyMode 定义了策略的多空方向
type StrategyMode string

const (
	ModeLong  StrategyMode = "LONG"
	ModeShort StrategyMode = "SHORT"
)

// Params 定义了单个标的的全部策略参数。
// 组合模式下可以按标的覆盖（见 config.MergeParams 的三级合并）。
type Params struct {
	LotSizeUSD          float64      `json:"lot_size_usd"`          // 每手买入金额 (USD)
	MaxLots             int          `json:"max_lots"`              // 最大持有手数
	GridIntervalPercent float64      `json:"grid_interval_percent"` // 网格间距比例, (0,1)
	SellActivation      float64      `json:"sell_activation"`       // 追踪卖出激活比例
	SellPullback        float64      `json:"sell_pullback"`         // 卖出限价相对持仓成本的回调系数
	BuyActivation       float64      `json:"buy_activation"`        // OCO 限价买回相对卖出价的折价比例
	BuyRebound          float64      `json:"buy_rebound"`           // 追踪买入的反弹触发比例
	OrderType           OrderKind    `json:"order_type"`            // 追踪卖出的订单类型: LIMIT 或 MARKET
	StrategyMode        StrategyMode `json:"strategy_mode"`         // 多空模式: LONG 或 SHORT
	EnableTrailingSell  bool         `json:"enable_trailing_sell"`  // 是否启用追踪止盈卖出
	EnableOCO           bool         `json:"enable_oco"`            // 是否在卖出后挂 OCO 买回单
	EnableDynamicGrid   bool         `json:"enable_dynamic_grid"`   // 是否启用动态(平方根)网格间距
	EnableScaling       bool         `json:"enable_scaling"`        // 是否按持仓深度放大每手金额
	ScalingFactor       float64      `json:"scaling_factor"`        // 每多持有一手, 下一手金额的放大比例
}

// ParamPatch 是 Params 的稀疏覆盖层。
// 只有非 nil 的字段参与合并，合并本身是纯函数，不依赖任何全局状态。
type ParamPatch struct {
	LotSizeUSD          *float64      `json:"lot_size_usd,omitempty"`
	MaxLots             *int          `json:"max_lots,omitempty"`
	GridIntervalPercent *float64      `json:"grid_interval_percent,omitempty"`
	SellActivation      *float64      `json:"sell_activation,omitempty"`
	SellPullback        *float64      `json:"sell_pullback,omitempty"`
	BuyActivation       *float64      `json:"buy_activation,omitempty"`
	BuyRebound          *float64      `json:"buy_rebound,omitempty"`
	OrderType           *OrderKind    `json:"order_type,omitempty"`
	StrategyMode        *StrategyMode `json:"strategy_mode,omitempty"`
	EnableTrailingSell  *bool         `json:"enable_trailing_sell,omitempty"`
	EnableOCO           *bool         `json:"enable_oco,omitempty"`
	EnableDynamicGrid   *bool         `json:"enable_dynamic_grid,omitempty"`
	EnableScaling       *bool         `json:"enable_scaling,omitempty"`
	ScalingFactor       *float64      `json:"scaling_factor,omitempty"`
}

// Config 结构体定义了一次回测运行的所有配置参数
type Config struct {
	Symbol  string   `json:"symbol,omitempty"`  // 单标的模式的标的, 如 "TSLA"
	Symbols []string `json:"symbols,omitempty"` // 组合模式的标的列表

	StartDate string `json:"start_date"` // 回测开始日期 (YYYY-MM-DD)
	EndDate   string `json:"end_date"`   // 回测结束日期 (YYYY-MM-DD)

	Params // 全局默认策略参数 (内嵌, JSON 字段拍平)

	// 组合模式专用
	TotalCapital       float64               `json:"total_capital,omitempty"`       // 共享资金池总额 (USD)
	InstrumentDefaults map[string]ParamPatch `json:"instrument_defaults,omitempty"` // 按标的静态默认值
	RunOverrides       map[string]ParamPatch `json:"run_overrides,omitempty"`       // 本次运行的显式覆盖, 优先级最高

	MinBars int `json:"min_bars,omitempty"` // 每个标的要求的最小K线数量, 默认 30

	DBPath    string    `json:"db_path,omitempty"` // 结果归档数据库路径, 为空则不归档
	LogConfig LogConfig `json:"log"`               // 日志配置
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// PriceBar 是外部数据源提供的单日行情。只读, 严格按时间升序, 每个交易日一条。
type PriceBar struct {
	Date       time.Time          `json:"date"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	AdjClose   float64            `json:"adj_close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"` // 外部预计算的指标, 可为空
}

// Lot 代表一手独立建仓的持仓, 买入时创建, 卖出时整手销毁 (不拆手)。
type Lot struct {
	EntryPrice float64   `json:"entry_price"`
	Shares     float64   `json:"shares"`
	EntryDate  time.Time `json:"entry_date"`
}

// Cost 返回这手持仓的建仓成本
func (l Lot) Cost() float64 {
	return l.EntryPrice * l.Shares
}

// Position 是一个标的的全部未平仓手, 按建仓顺序排列。
// 只允许订单状态机修改它。
type Position struct {
	Lots []Lot `json:"lots"`
}

// AvgCost 返回按股数加权的平均持仓成本, 空仓时返回 0。
func (p *Position) AvgCost() float64 {
	var value, shares float64
	for _, lot := range p.Lots {
		value += lot.EntryPrice * lot.Shares
		shares += lot.Shares
	}
	if shares == 0 {
		return 0
	}
	return value / shares
}

// TotalShares 返回持有的总股数
func (p *Position) TotalShares() float64 {
	var shares float64
	for _, lot := range p.Lots {
		shares += lot.Shares
	}
	return shares
}

// DeployedCost 返回全部未平仓手的建仓成本之和
func (p *Position) DeployedCost() float64 {
	var cost float64
	for _, lot := range p.Lots {
		cost += lot.Cost()
	}
	return cost
}

// MarketValue 返回按给定价格计算的持仓市值
func (p *Position) MarketValue(price float64) float64 {
	return p.TotalShares() * price
}

// TrailingOrder 是一张追踪订单。参考价只朝有利方向移动。
// 不变式: 每个标的同一时刻最多一张追踪卖出单和一张追踪买入单。
type TrailingOrder struct {
	ArmedReference float64   `json:"armed_reference"` // 激活时的初始参考价
	Reference      float64   `json:"reference"`       // 激活以来的最优价格
	TriggerPrice   float64   `json:"trigger_price"`   // 当前触发价
	LimitPrice     float64   `json:"limit_price"`     // LIMIT 类型的执行价上限, MARKET 类型为 0
	OrderType      OrderKind `json:"order_type"`
	TargetEntry    float64   `json:"target_entry"` // 追踪卖出锁定的那一手的建仓价
	ArmedDate      time.Time `json:"armed_date"`
}

// OCOPair 是卖出成交后挂出的一对买回单: 限价买回腿 + 追踪买入腿。
// 任意一腿成交即取消另一腿; 挂单期间暂停普通网格买入。
// 每个标的同一时刻最多一对 (显式单槽, 不用集合)。
type OCOPair struct {
	SalePrice   float64       `json:"sale_price"`  // 触发这对订单的卖出成交价
	LimitPrice  float64       `json:"limit_price"` // 限价买回腿的触发价
	TrailingBuy TrailingOrder `json:"trailing_buy"`
	Created     time.Time     `json:"created"`
}

// CapitalPool 是组合模式下所有标的共享的资金池。
// 不变式: 每个交易日结束时 Deployed + Cash == Total。
type CapitalPool struct {
	Total    float64 `json:"total"`
	Deployed float64 `json:"deployed"`
	Cash     float64 `json:"cash"`
}

// Transaction 是一条不可变的成交记录, 只追加, 不修改。
type Transaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Shares      float64   `json:"shares"`
	AmountUSD   float64   `json:"amount_usd"`
	RealizedPNL float64   `json:"realized_pnl,omitempty"` // 仅卖出时有值
	CostBasis   float64   `json:"cost_basis,omitempty"`   // 卖出的那手的建仓成本, 仅卖出时有值
	Reason      string    `json:"reason"`                 // GRID / TRAILING_SELL / OCO_LIMIT / OCO_TRAILING
	AvgCost     float64   `json:"avg_cost"`               // 成交后的平均持仓成本
	OpenLots    []Lot     `json:"open_lots"`              // 成交后的持仓快照
}

// 成交原因常量
const (
	ReasonGrid        = "GRID"
	ReasonTrailing    = "TRAILING_SELL"
	ReasonOCOLimit    = "OCO_LIMIT"
	ReasonOCOTrailing = "OCO_TRAILING"
)

// RejectedOrder 记录一次因资金不足被拒绝的买入。只记录一次, 不会自动重试。
type RejectedOrder struct {
	Date             time.Time   `json:"date"`
	Symbol           string      `json:"symbol"`
	RequiredCapital  float64     `json:"required_capital"`
	AvailableCapital float64     `json:"available_capital"`
	Shortfall        float64     `json:"shortfall"`
	Pool             CapitalPool `json:"pool"` // 拒单时刻的资金池快照
}

// SeriesPoint 是每日序列中的一个点 (权益曲线、已投入资金等)
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ScoreComponent 是适配度评分的一个子项, 满分 25 分, 附带原始统计量。
type ScoreComponent struct {
	Points float64 `json:"points"`
	Raw    float64 `json:"raw"`
	Stat   string  `json:"stat"` // 原始统计量的含义, e.g. "trades per instrument per year"
}

// SuitabilityScore 是 DCA 适配度综合评分, 范围 [0,100], 四个子项等权各 25 分。
type SuitabilityScore struct {
	Total              float64        `json:"total"`
	TradeActivity      ScoreComponent `json:"trade_activity"`
	ProfitableExits    ScoreComponent `json:"profitable_exits"`
	CapitalUtilization ScoreComponent `json:"capital_utilization"`
	GridUtilization    ScoreComponent `json:"grid_utilization"`
}

// Metrics 存储一次回测计算出的所有性能指标
type Metrics struct {
	InitialCapital   float64          `json:"initial_capital"`
	FinalCapital     float64          `json:"final_capital"`
	TotalReturn      float64          `json:"total_return"`      // 绝对收益 (USD)
	TotalReturnPct   float64          `json:"total_return_pct"`  // 收益率 (%)
	MaxDrawdown      float64          `json:"max_drawdown"`      // 最大回撤 (USD)
	MaxDrawdownPct   float64          `json:"max_drawdown_pct"`  // 最大回撤 (%)
	AnnualVolatility float64          `json:"annual_volatility"` // 年化波动率 (252日)
	SharpeRatio      float64          `json:"sharpe_ratio"`
	SortinoRatio     float64          `json:"sortino_ratio"`
	WinRate          float64          `json:"win_rate"` // 盈利卖出占全部卖出的比例
	NumTrades        int              `json:"num_trades"`
	TotalBuys        int              `json:"total_buys"`
	TotalSells       int              `json:"total_sells"`
	AvgBuyPrice      float64          `json:"avg_buy_price"`
	AvgSellPrice     float64          `json:"avg_sell_price"`
	Suitability      SuitabilityScore `json:"dca_suitability_score"`
}

// SingleResult 是单标的回测的完整输出。核心不做任何格式化或序列化,
// 这些纯结构由外部的展示/归档组件消费。
type SingleResult struct {
	Symbol        string          `json:"symbol"`
	Params        Params          `json:"params"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	FinalPosition Position        `json:"final_position"`
	AvgCost       float64         `json:"avg_cost"`
	RealizedPNL   float64         `json:"realized_pnl"`
	UnrealizedPNL float64         `json:"unrealized_pnl"`
	FinalEquity   float64         `json:"final_equity"`
	Transactions  []Transaction   `json:"transactions"`
	Rejected      []RejectedOrder `json:"rejected,omitempty"`
	Equity        []SeriesPoint   `json:"equity"`
	Deployed      []SeriesPoint   `json:"deployed"`
	Metrics       Metrics         `json:"metrics"`
}

// Contribution 是组合中单个标的的收益归因
type Contribution struct {
	Symbol  string  `json:"symbol"`
	PNL     float64 `json:"pnl"`     // 已实现 + 未实现
	Percent float64 `json:"percent"` // 占组合总盈亏的百分比
}

// PortfolioResult 是组合回测的完整输出
type PortfolioResult struct {
	TotalCapital  float64         `json:"total_capital"`
	Instruments   []SingleResult  `json:"instruments"` // 按标的字母序
	Equity        []SeriesPoint   `json:"equity"`
	Utilization   []SeriesPoint   `json:"utilization"` // 已投入资金 / 总资金
	Rejected      []RejectedOrder `json:"rejected"`
	Contributions []Contribution  `json:"contributions"`
	TotalPNL      float64         `json:"total_pnl"`
	Metrics       Metrics         `json:"metrics"`
}
