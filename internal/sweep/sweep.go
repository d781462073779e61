package sweep

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"dca-backtest-go/internal/engine"
	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/models"
)

// Combo 是一次扫描中的一个参数组合
type Combo struct {
	GridIntervalPercent float64
	SellActivation      float64
}

// Outcome 是一个参数组合的运行结果。失败的组合带回错误而不是中止整个扫描。
type Outcome struct {
	Combo  Combo
	Result *models.SingleResult
	Err    error
}

// Grid 展开网格间距和激活比例的笛卡尔积
func Grid(intervals, activations []float64) []Combo {
	combos := make([]Combo, 0, len(intervals)*len(activations))
	for _, interval := range intervals {
		for _, act := range activations {
			combos = append(combos, Combo{GridIntervalPercent: interval, SellActivation: act})
		}
	}
	return combos
}

// Run 对同一段行情并行扫描一组参数组合。
// 各组合完全独立、CPU 密集、不共享可变状态, worker 数量以核数封顶。
// 取消只发生在整次运行之间: 已开始的组合总是跑完, 不产生半截输出;
// ctx 取消后剩余组合不再启动, 返回已完成的部分和 ctx.Err()。
// 返回结果按收益率降序排列, 同分按参数字典序, 排序与提交顺序无关。
func Run(ctx context.Context, symbol string, bars []models.PriceBar, base models.Params, combos []Combo, minBars int) ([]Outcome, error) {
	workers := runtime.NumCPU()
	if workers > len(combos) {
		workers = len(combos)
	}
	if workers < 1 {
		workers = 1
	}
	logger.S().Infof("[%s] 参数扫描开始: %d 个组合, %d 个 worker", symbol, len(combos), workers)

	jobs := make(chan Combo)
	outcomes := make(chan Outcome, len(combos))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for combo := range jobs {
				params := base
				params.GridIntervalPercent = combo.GridIntervalPercent
				params.SellActivation = combo.SellActivation
				result, err := engine.Run(symbol, bars, params, minBars)
				outcomes <- Outcome{Combo: combo, Result: result, Err: err}
			}
		}()
	}

	var cancelled error
feed:
	for _, combo := range combos {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- combo:
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	collected := make([]Outcome, 0, len(combos))
	for outcome := range outcomes {
		if outcome.Err != nil {
			logger.S().Warnf("[%s] 组合 (间距 %.4f, 激活 %.4f) 失败: %v",
				symbol, outcome.Combo.GridIntervalPercent, outcome.Combo.SellActivation, outcome.Err)
		}
		collected = append(collected, outcome)
	}
	sortOutcomes(collected)

	if cancelled != nil {
		logger.S().Warnf("[%s] 参数扫描被取消, 已完成 %d/%d 个组合", symbol, len(collected), len(combos))
	}
	return collected, cancelled
}

// sortOutcomes 按收益率降序排列, 失败的组合排在最后;
// 同分按参数字典序保证确定性
func sortOutcomes(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err == nil && a.Result.Metrics.TotalReturnPct != b.Result.Metrics.TotalReturnPct {
			return a.Result.Metrics.TotalReturnPct > b.Result.Metrics.TotalReturnPct
		}
		if a.Combo.GridIntervalPercent != b.Combo.GridIntervalPercent {
			return a.Combo.GridIntervalPercent < b.Combo.GridIntervalPercent
		}
		return a.Combo.SellActivation < b.Combo.SellActivation
	})
}
