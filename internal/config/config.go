package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dca-backtest-go/internal/models"
)

// DefaultMinBars 是每个标的要求的最小K线数量
const DefaultMinBars = 30

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &models.Config{}
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件 %s: %w", path, err)
	}
	ApplyDefaults(config)
	return config, nil
}

// ApplyDefaults 填充未设置的可选字段
func ApplyDefaults(cfg *models.Config) {
	if cfg.MinBars <= 0 {
		cfg.MinBars = DefaultMinBars
	}
	if cfg.OrderType == "" {
		cfg.OrderType = models.OrderLimit
	}
	if cfg.StrategyMode == "" {
		cfg.StrategyMode = models.ModeLong
	}
}

// ValidateParams 校验策略参数的定义域。任何越界都返回 ConfigurationError,
// 回测在开始前就失败, 并指出出错的字段。
func ValidateParams(p models.Params) error {
	if p.LotSizeUSD <= 0 {
		return &models.ConfigurationError{Field: "lot_size_usd", Reason: fmt.Sprintf("must be > 0, got %v", p.LotSizeUSD)}
	}
	if p.MaxLots <= 0 {
		return &models.ConfigurationError{Field: "max_lots", Reason: fmt.Sprintf("must be > 0, got %v", p.MaxLots)}
	}
	if p.GridIntervalPercent <= 0 || p.GridIntervalPercent >= 1 {
		return &models.ConfigurationError{Field: "grid_interval_percent", Reason: fmt.Sprintf("must be inside (0,1), got %v", p.GridIntervalPercent)}
	}
	if p.SellActivation < 0 || p.SellActivation >= 1 {
		return &models.ConfigurationError{Field: "sell_activation", Reason: fmt.Sprintf("must be inside [0,1), got %v", p.SellActivation)}
	}
	if p.BuyActivation < 0 || p.BuyActivation >= 1 {
		return &models.ConfigurationError{Field: "buy_activation", Reason: fmt.Sprintf("must be inside [0,1), got %v", p.BuyActivation)}
	}
	if p.BuyRebound < 0 || p.BuyRebound >= 1 {
		return &models.ConfigurationError{Field: "buy_rebound", Reason: fmt.Sprintf("must be inside [0,1), got %v", p.BuyRebound)}
	}
	switch p.OrderType {
	case models.OrderLimit, models.OrderMarket:
	default:
		return &models.ConfigurationError{Field: "order_type", Reason: fmt.Sprintf("must be LIMIT or MARKET, got %q", p.OrderType)}
	}
	switch p.StrategyMode {
	case models.ModeLong, models.ModeShort:
	default:
		return &models.ConfigurationError{Field: "strategy_mode", Reason: fmt.Sprintf("must be LONG or SHORT, got %q", p.StrategyMode)}
	}
	if p.EnableScaling && p.ScalingFactor < 0 {
		return &models.ConfigurationError{Field: "scaling_factor", Reason: fmt.Sprintf("must be >= 0, got %v", p.ScalingFactor)}
	}
	return nil
}

// Validate 校验整体配置。组合模式额外要求总资金为正。
func Validate(cfg *models.Config) error {
	if err := ValidateParams(cfg.Params); err != nil {
		return err
	}
	if cfg.StartDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.StartDate); err != nil {
			return &models.ConfigurationError{Field: "start_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	if cfg.EndDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.EndDate); err != nil {
			return &models.ConfigurationError{Field: "end_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	if len(cfg.Symbols) > 0 && cfg.TotalCapital <= 0 {
		return &models.ConfigurationError{Field: "total_capital", Reason: fmt.Sprintf("portfolio mode requires total_capital > 0, got %v", cfg.TotalCapital)}
	}
	// 每个标的合并后的参数也必须各自合法
	for _, sym := range cfg.Symbols {
		merged := ResolveParams(cfg, sym)
		if err := ValidateParams(merged); err != nil {
			return fmt.Errorf("instrument %s: %w", sym, err)
		}
	}
	return nil
}

// MergeParams 把一层稀疏覆盖应用到基础参数上, 返回合并结果。
// 纯函数: 不修改入参, 不读取任何全局状态。
func MergeParams(base models.Params, patch *models.ParamPatch) models.Params {
	if patch == nil {
		return base
	}
	out := base
	if patch.LotSizeUSD != nil {
		out.LotSizeUSD = *patch.LotSizeUSD
	}
	if patch.MaxLots != nil {
		out.MaxLots = *patch.MaxLots
	}
	if patch.GridIntervalPercent != nil {
		out.GridIntervalPercent = *patch.GridIntervalPercent
	}
	if patch.SellActivation != nil {
		out.SellActivation = *patch.SellActivation
	}
	if patch.SellPullback != nil {
		out.SellPullback = *patch.SellPullback
	}
	if patch.BuyActivation != nil {
		out.BuyActivation = *patch.BuyActivation
	}
	if patch.BuyRebound != nil {
		out.BuyRebound = *patch.BuyRebound
	}
	if patch.OrderType != nil {
		out.OrderType = *patch.OrderType
	}
	if patch.StrategyMode != nil {
		out.StrategyMode = *patch.StrategyMode
	}
	if patch.EnableTrailingSell != nil {
		out.EnableTrailingSell = *patch.EnableTrailingSell
	}
	if patch.EnableOCO != nil {
		out.EnableOCO = *patch.EnableOCO
	}
	if patch.EnableDynamicGrid != nil {
		out.EnableDynamicGrid = *patch.EnableDynamicGrid
	}
	if patch.EnableScaling != nil {
		out.EnableScaling = *patch.EnableScaling
	}
	if patch.ScalingFactor != nil {
		out.ScalingFactor = *patch.ScalingFactor
	}
	return out
}

// ResolveParams 返回某个标的最终生效的参数。
// 优先级: 显式运行覆盖 > 标的默认值 > 全局默认值。
func ResolveParams(cfg *models.Config, symbol string) models.Params {
	merged := cfg.Params
	if patch, ok := cfg.InstrumentDefaults[symbol]; ok {
		merged = MergeParams(merged, &patch)
	}
	if patch, ok := cfg.RunOverrides[symbol]; ok {
		merged = MergeParams(merged, &patch)
	}
	return merged
}
