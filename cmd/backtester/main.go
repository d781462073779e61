package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dca-backtest-go/internal/config"
	"dca-backtest-go/internal/engine"
	"dca-backtest-go/internal/feed"
	"dca-backtest-go/internal/logger"
	"dca-backtest-go/internal/models"
	"dca-backtest-go/internal/persistence"
	"dca-backtest-go/internal/portfolio"
	"dca-backtest-go/internal/reporter"
	"dca-backtest-go/internal/sweep"

	"github.com/joho/godotenv"
	"github.com/jxskiss/base62"
)

// 扫描模式的参数阶梯。扫描只变动网格间距和激活比例,
// 其余参数沿用配置文件。
var (
	sweepIntervals   = []float64{0.03, 0.05, 0.08, 0.10, 0.15}
	sweepActivations = []float64{0.03, 0.05, 0.08, 0.10}
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "single", "running mode: single, portfolio or sweep")
	dataDir := flag.String("data", "data", "directory holding historical data CSV files")
	symbol := flag.String("symbol", "", "symbol override for single/sweep mode (e.g., TSLA)")
	startDate := flag.String("start", "", "start date override (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date override (YYYY-MM-DD)")
	dbPath := flag.String("db", "", "result archive database path override")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 加载 .env 和配置文件之前也需要能记录日志, 先用默认配置初始化一次
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	applyOverrides(cfg, *symbol, *startDate, *endDate, *dbPath)

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if err := config.Validate(cfg); err != nil {
		logger.S().Fatalf("配置校验失败: %v", err)
	}

	// 扫描模式允许 Ctrl-C 在组合之间取消, 已开始的组合总是跑完
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "single":
		runSingleMode(ctx, cfg, *dataDir)
	case "portfolio":
		runPortfolioMode(ctx, cfg, *dataDir)
	case "sweep":
		runSweepMode(ctx, cfg, *dataDir)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'single'、'portfolio' 或 'sweep'。", *mode)
	}
}

// applyOverrides 把命令行覆盖合并进配置, 命令行优先
func applyOverrides(cfg *models.Config, symbol, startDate, endDate, dbPath string) {
	if symbol != "" {
		cfg.Symbol = symbol
	}
	if startDate != "" {
		cfg.StartDate = startDate
	}
	if endDate != "" {
		cfg.EndDate = endDate
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
}

// loadSeries 取到一个标的在配置区间内的K线: 本地缓存命中则直接读,
// 否则先下载再读。
func loadSeries(ctx context.Context, dataDir, symbol string, cfg *models.Config) ([]models.PriceBar, error) {
	path := feed.CacheFileName(dataDir, symbol, cfg.StartDate, cfg.EndDate)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		start, err := time.Parse("2006-01-02", cfg.StartDate)
		if err != nil {
			return nil, fmt.Errorf("start_date 格式错误: %w", err)
		}
		end, err := time.Parse("2006-01-02", cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("end_date 格式错误: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
		logger.S().Infof("本地无缓存, 开始下载 %s 从 %s 到 %s 的日线数据...", symbol, cfg.StartDate, cfg.EndDate)
		if err := feed.NewBarDownloader().DownloadDailyBars(ctx, symbol, path, start, end); err != nil {
			return nil, fmt.Errorf("下载数据失败: %w", err)
		}
	}

	bars, err := feed.LoadBars(path)
	if err != nil {
		return nil, err
	}
	start, _ := time.Parse("2006-01-02", cfg.StartDate)
	end, _ := time.Parse("2006-01-02", cfg.EndDate)
	return feed.ClipBars(bars, start, end), nil
}

func runSingleMode(ctx context.Context, cfg *models.Config, dataDir string) {
	logger.S().Info("--- 启动单标的回测模式 ---")
	if cfg.Symbol == "" {
		logger.S().Fatal("单标的模式需要在配置或 --symbol 参数中指定标的")
	}

	bars, err := loadSeries(ctx, dataDir, cfg.Symbol, cfg)
	if err != nil {
		logger.S().Fatalf("加载 %s 行情失败: %v", cfg.Symbol, err)
	}

	result, err := engine.Run(cfg.Symbol, bars, config.ResolveParams(cfg, cfg.Symbol), cfg.MinBars)
	if err != nil {
		logger.S().Fatalf("回测失败: %v", err)
	}

	reporter.New(os.Stdout).PrintSingle(result)
	archive(cfg, &persistence.ArchivedRun{Mode: "single", Single: result})
}

func runPortfolioMode(ctx context.Context, cfg *models.Config, dataDir string) {
	logger.S().Info("--- 启动组合回测模式 ---")
	if len(cfg.Symbols) == 0 {
		logger.S().Fatal("组合模式需要在配置的 symbols 中指定至少一个标的")
	}

	series := make(map[string][]models.PriceBar, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		bars, err := loadSeries(ctx, dataDir, sym, cfg)
		if err != nil {
			logger.S().Fatalf("加载 %s 行情失败: %v", sym, err)
		}
		series[sym] = bars
	}

	result, err := portfolio.Run(cfg, series)
	if err != nil {
		logger.S().Fatalf("组合回测失败: %v", err)
	}

	reporter.New(os.Stdout).PrintPortfolio(result)
	archive(cfg, &persistence.ArchivedRun{Mode: "portfolio", Portfolio: result})
}

func runSweepMode(ctx context.Context, cfg *models.Config, dataDir string) {
	logger.S().Info("--- 启动参数扫描模式 ---")
	if cfg.Symbol == "" {
		logger.S().Fatal("扫描模式需要在配置或 --symbol 参数中指定标的")
	}

	bars, err := loadSeries(ctx, dataDir, cfg.Symbol, cfg)
	if err != nil {
		logger.S().Fatalf("加载 %s 行情失败: %v", cfg.Symbol, err)
	}

	combos := sweep.Grid(sweepIntervals, sweepActivations)
	outcomes, err := sweep.Run(ctx, cfg.Symbol, bars, config.ResolveParams(cfg, cfg.Symbol), combos, cfg.MinBars)
	if err != nil {
		logger.S().Warnf("扫描提前结束: %v", err)
	}

	rows := make([]reporter.SweepRow, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		m := outcome.Result.Metrics
		rows = append(rows, reporter.SweepRow{
			GridInterval:   outcome.Combo.GridIntervalPercent,
			SellActivation: outcome.Combo.SellActivation,
			TotalReturnPct: m.TotalReturnPct,
			MaxDrawdownPct: m.MaxDrawdownPct,
			SharpeRatio:    m.SharpeRatio,
			NumTrades:      m.NumTrades,
			Suitability:    m.Suitability.Total,
		})
	}
	reporter.New(os.Stdout).PrintSweep(rows)

	if len(outcomes) > 0 && outcomes[0].Err == nil {
		archive(cfg, &persistence.ArchivedRun{Mode: "single", Single: outcomes[0].Result})
	}
}

// archive 把结果写入结果库。未配置 db_path 时跳过。
// 归档键带时间戳, 不影响结果本身的确定性。
func archive(cfg *models.Config, run *persistence.ArchivedRun) {
	if cfg.DBPath == "" {
		return
	}
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Errorf("打开结果库失败, 跳过归档: %v", err)
		return
	}
	defer repo.Close()

	label := cfg.Symbol
	if run.Mode == "portfolio" {
		label = "portfolio"
	}
	run.RunID = fmt.Sprintf("%s-%s", base62.FormatInt(time.Now().Unix()), label)
	run.SavedAt = time.Now()
	if err := repo.SaveRun(run); err != nil {
		logger.S().Errorf("归档失败: %v", err)
		return
	}
	logger.S().Infof("结果已归档: %s", run.RunID)
}
