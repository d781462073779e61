package portfolio

import (
	"math"

	"dca-backtest-go/internal/models"
)

// poolEpsilon 是账目核对允许的浮点累积误差
const poolEpsilon = 1e-6

// Pool 是组合模式下所有标的共享的资金池。
// 只有两种变更: 买入成交占用资金, 卖出成交释放资金。
// 卖出按建仓成本从已投入划回, 盈亏直接计入总额,
// 这样 Deployed + Cash == Total 在任何时刻都成立。
type Pool struct {
	models.CapitalPool
}

// NewPool 创建资金池, 初始时全部资金都在现金侧
func NewPool(total float64) *Pool {
	return &Pool{models.CapitalPool{Total: total, Cash: total}}
}

// Debit 尝试为一笔买入占用资金。现金不足时拒绝且不做任何变更。
func (p *Pool) Debit(cost float64) bool {
	if p.Cash < cost {
		return false
	}
	p.Cash -= cost
	p.Deployed += cost
	return true
}

// Credit 为一笔卖出释放资金
func (p *Pool) Credit(costBasis, proceeds float64) {
	p.Deployed -= costBasis
	p.Cash += proceeds
	p.Total += proceeds - costBasis
}

// CheckInvariant 核对账目。不平意味着内部缺陷, 调用方必须中止回测,
// 绝不允许静默修正。
func (p *Pool) CheckInvariant(date string) error {
	if math.Abs(p.Deployed+p.Cash-p.Total) > poolEpsilon {
		return &models.InvariantViolation{Date: date, Deployed: p.Deployed, Cash: p.Cash, Total: p.Total}
	}
	return nil
}

// Snapshot 返回资金池的当前值副本
func (p *Pool) Snapshot() models.CapitalPool {
	return p.CapitalPool
}
