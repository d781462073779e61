package models

import "fmt"

// ConfigurationError 表示配置参数非法或超出定义域。
// 属于致命错误, 必须在模拟开始前暴露。
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field %q: %s", e.Field, e.Reason)
}

// InsufficientDataError 表示某个标的的K线数量不足以完成模拟。
// 属于致命错误, 必须在模拟开始前暴露。
type InsufficientDataError struct {
	Symbol  string
	Bars    int
	MinBars int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: got %d bars, need at least %d", e.Symbol, e.Bars, e.MinBars)
}

// InvariantViolation 表示资金池账目不平, 是内部缺陷的信号。
// 绝不允许被静默修正, 必须中止整个回测。
type InvariantViolation struct {
	Date     string
	Deployed float64
	Cash     float64
	Total    float64
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("capital pool invariant violated on %s: deployed %.4f + cash %.4f != total %.4f",
		e.Date, e.Deployed, e.Cash, e.Total)
}
