package reporter

import (
	"fmt"
	"io"

	"dca-backtest-go/internal/metrics"
	"dca-backtest-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Reporter 把回测结果渲染成终端表格。
// 核心引擎只产出纯结构, 所有格式化都收在这里。
type Reporter struct {
	out io.Writer
}

func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

func (r *Reporter) newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	return tw
}

// PrintSingle 输出单标的回测的汇总、适配度评分和成交明细
func (r *Reporter) PrintSingle(result *models.SingleResult) {
	m := result.Metrics
	tw := r.newTable(fmt.Sprintf("回测汇总 - %s (%s ~ %s)",
		result.Symbol, result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02")))
	tw.AppendRows([]table.Row{
		{"初始资金", fmt.Sprintf("%.2f", m.InitialCapital)},
		{"期末权益", fmt.Sprintf("%.2f", m.FinalCapital)},
		{"总收益", fmt.Sprintf("%.2f (%.2f%%)", m.TotalReturn, m.TotalReturnPct)},
		{"已实现盈亏", fmt.Sprintf("%.2f", result.RealizedPNL)},
		{"未实现盈亏", fmt.Sprintf("%.2f", result.UnrealizedPNL)},
		{"最大回撤", fmt.Sprintf("%.2f (%.2f%%)", m.MaxDrawdown, m.MaxDrawdownPct)},
		{"年化波动率", fmt.Sprintf("%.4f", m.AnnualVolatility)},
		{"夏普比率", fmt.Sprintf("%.4f", m.SharpeRatio)},
		{"索提诺比率", fmt.Sprintf("%.4f", m.SortinoRatio)},
		{"胜率", fmt.Sprintf("%.2f%%", m.WinRate*100)},
		{"成交笔数", fmt.Sprintf("%d (买 %d / 卖 %d)", m.NumTrades, m.TotalBuys, m.TotalSells)},
		{"平均买入价", fmt.Sprintf("%.4f", m.AvgBuyPrice)},
		{"平均卖出价", fmt.Sprintf("%.4f", m.AvgSellPrice)},
		{"期末持仓", fmt.Sprintf("%d 手, 均价 %.4f", len(result.FinalPosition.Lots), result.AvgCost)},
	})
	tw.Render()

	r.printSuitability(m.Suitability)
	r.PrintTransactions(result.Transactions)
}

func (r *Reporter) printSuitability(score models.SuitabilityScore) {
	tw := r.newTable(fmt.Sprintf("DCA 适配度评分: %.1f / 100 — %s",
		score.Total, metrics.Interpretation(score.Total)))
	tw.AppendHeader(table.Row{"子项", "得分", "原始统计量"})
	for _, row := range []struct {
		name string
		c    models.ScoreComponent
	}{
		{"交易活跃度", score.TradeActivity},
		{"盈利退出", score.ProfitableExits},
		{"资金利用率", score.CapitalUtilization},
		{"网格利用率", score.GridUtilization},
	} {
		tw.AppendRow(table.Row{row.name, fmt.Sprintf("%.1f / 25", row.c.Points),
			fmt.Sprintf("%.4f (%s)", row.c.Raw, row.c.Stat)})
	}
	tw.Render()
}

// PrintTransactions 输出成交明细表
func (r *Reporter) PrintTransactions(txns []models.Transaction) {
	if len(txns) == 0 {
		fmt.Fprintln(r.out, "没有任何成交")
		return
	}
	tw := r.newTable("成交明细")
	tw.AppendHeader(table.Row{"#", "日期", "标的", "方向", "原因", "价格", "数量", "金额", "已实现盈亏", "持仓手数"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	for i, txn := range txns {
		pnl := ""
		if txn.Side == models.Sell {
			pnl = fmt.Sprintf("%.2f", txn.RealizedPNL)
		}
		tw.AppendRow(table.Row{
			i + 1,
			txn.Date.Format("2006-01-02"),
			txn.Symbol,
			string(txn.Side),
			txn.Reason,
			fmt.Sprintf("%.4f", txn.Price),
			fmt.Sprintf("%.4f", txn.Shares),
			fmt.Sprintf("%.2f", txn.AmountUSD),
			pnl,
			len(txn.OpenLots),
		})
	}
	tw.Render()
}

// PrintPortfolio 输出组合回测的汇总、收益归因和拒单记录
func (r *Reporter) PrintPortfolio(result *models.PortfolioResult) {
	m := result.Metrics
	tw := r.newTable("组合回测汇总")
	tw.AppendRows([]table.Row{
		{"总资金", fmt.Sprintf("%.2f", result.TotalCapital)},
		{"期末权益", fmt.Sprintf("%.2f", m.FinalCapital)},
		{"总盈亏", fmt.Sprintf("%.2f (%.2f%%)", m.TotalReturn, m.TotalReturnPct)},
		{"最大回撤", fmt.Sprintf("%.2f (%.2f%%)", m.MaxDrawdown, m.MaxDrawdownPct)},
		{"夏普比率", fmt.Sprintf("%.4f", m.SharpeRatio)},
		{"成交笔数", fmt.Sprintf("%d", m.NumTrades)},
		{"拒单次数", fmt.Sprintf("%d", len(result.Rejected))},
		{"适配度评分", fmt.Sprintf("%.1f / 100 — %s", m.Suitability.Total, metrics.Interpretation(m.Suitability.Total))},
	})
	tw.Render()

	tw = r.newTable("收益归因")
	tw.AppendHeader(table.Row{"标的", "盈亏", "占比", "成交笔数", "期末持仓手数"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for i, contrib := range result.Contributions {
		inst := result.Instruments[i]
		tw.AppendRow(table.Row{
			contrib.Symbol,
			fmt.Sprintf("%.2f", contrib.PNL),
			fmt.Sprintf("%.2f%%", contrib.Percent),
			len(inst.Transactions),
			len(inst.FinalPosition.Lots),
		})
	}
	tw.Render()

	r.printRejected(result.Rejected)
}

func (r *Reporter) printRejected(rejected []models.RejectedOrder) {
	if len(rejected) == 0 {
		return
	}
	tw := r.newTable("拒单记录 (资金不足)")
	tw.AppendHeader(table.Row{"日期", "标的", "需要资金", "可用现金", "缺口"})
	for _, rej := range rejected {
		tw.AppendRow(table.Row{
			rej.Date.Format("2006-01-02"),
			rej.Symbol,
			fmt.Sprintf("%.2f", rej.RequiredCapital),
			fmt.Sprintf("%.2f", rej.AvailableCapital),
			fmt.Sprintf("%.2f", rej.Shortfall),
		})
	}
	tw.Render()
}

// PrintSweep 输出参数扫描的排名表, 按总收益降序
func (r *Reporter) PrintSweep(rows []SweepRow) {
	tw := r.newTable("参数扫描排名 (按收益率降序)")
	tw.AppendHeader(table.Row{"#", "网格间距", "激活比例", "收益率", "最大回撤", "夏普", "成交笔数", "适配度"})
	for i, row := range rows {
		tw.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.2f%%", row.GridInterval*100),
			fmt.Sprintf("%.2f%%", row.SellActivation*100),
			fmt.Sprintf("%.2f%%", row.TotalReturnPct),
			fmt.Sprintf("%.2f%%", row.MaxDrawdownPct),
			fmt.Sprintf("%.4f", row.SharpeRatio),
			row.NumTrades,
			fmt.Sprintf("%.1f", row.Suitability),
		})
	}
	tw.Render()
}

// SweepRow 是扫描排名表的一行, 由扫描器从每次运行的结果里摘出来
type SweepRow struct {
	GridInterval   float64
	SellActivation float64
	TotalReturnPct float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	NumTrades      int
	Suitability    float64
}
