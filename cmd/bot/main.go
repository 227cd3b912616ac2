package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"okx-spot-bot-go/internal/config"
	"okx-spot-bot-go/internal/exchange"
	"okx-spot-bot-go/internal/ledger"
	"okx-spot-bot-go/internal/logger"
	"okx-spot-bot-go/internal/models"
	"okx-spot-bot-go/internal/persistence"
	"okx-spot-bot-go/internal/reporter"
	"okx-spot-bot-go/internal/strategy"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	strategyName := flag.String("strategy", "martingale", "strategy variant: martingale or sigma")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 为了在加载.env或配置时就能记录日志，先用默认配置建一个临时logger
	log := logger.New(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		log.Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		log.Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	log = logger.New(cfg.LogConfig)
	defer log.Sync()

	// --- 初始化交易所 ---
	ex, closer, err := buildExchange(cfg, log)
	if err != nil {
		log.Fatalf("初始化交易所失败: %v", err)
	}
	if closer != nil {
		defer closer()
	}
	if err := ex.LoadMarkets(); err != nil {
		log.Warnf("拉取交易规则失败，下单数量将不做修正: %v", err)
	}

	// --- 初始化持久化与账本 ---
	store, err := buildRepository(cfg)
	if err != nil {
		log.Fatalf("初始化状态存储失败: %v", err)
	}
	defer store.Close()

	ledgerPath := cfg.LedgerPath
	if ledgerPath == "" {
		ledgerPath = "data/trades.csv"
	}
	led, err := ledger.New(ledgerPath)
	if err != nil {
		log.Fatalf("初始化成交账本失败: %v", err)
	}

	// --- 构造策略 ---
	var strat interface {
		Run(stop <-chan struct{})
		State() *models.PositionState
	}
	switch *strategyName {
	case "martingale":
		strat, err = strategy.NewMartingale(cfg, ex, store, led, log)
	case "sigma":
		strat, err = strategy.NewSigma(cfg, ex, store, led, log)
	default:
		log.Fatalf("未知的策略变体: %s。请选择 'martingale' 或 'sigma'。", *strategyName)
	}
	if err != nil {
		log.Fatalf("策略初始化失败: %v", err)
	}

	log.Infof("--- 启动 %s 策略 symbol=%s dry_run=%v order_type=%s ---",
		*strategyName, cfg.Symbol, cfg.DryRun, cfg.OrderType)

	// --- 运行直到收到中断信号 ---
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		strat.Run(stop)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	close(stop)
	<-done

	// --- 退出时打印会话汇总 ---
	reporter.PrintSummary(cfg.Symbol, strat.State(), led)
	log.Info("机器人已成功停止。")
}

// buildExchange 根据配置构造交易所实现。
// 返回的closer用于释放实时连接(如行情WebSocket)。
func buildExchange(cfg *models.Config, log *zap.SugaredLogger) (exchange.Exchange, func(), error) {
	if cfg.SimulatedEnv || cfg.Exchange == "simulated" {
		log.Info("正在使用内置模拟交易所...")
		return exchange.NewSimulatedExchange(), nil, nil
	}

	switch cfg.Exchange {
	case "okx", "":
		apiKey := os.Getenv("OKX_API_KEY")
		secretKey := os.Getenv("OKX_SECRET")
		passphrase := os.Getenv("OKX_PASSWORD")
		if !cfg.DryRun && (apiKey == "" || secretKey == "") {
			log.Fatal("错误：OKX_API_KEY 和 OKX_SECRET 环境变量必须被设置。")
		}
		okx, err := exchange.NewOkxExchange(apiKey, secretKey, passphrase, cfg.IsTestnet, cfg.TimeoutMs, cfg.HTTPProxy, log)
		if err != nil {
			return nil, nil, err
		}
		if err := okx.StartTickerStream(cfg.Symbol); err != nil {
			log.Warnf("行情WebSocket订阅失败，将只使用REST查询: %v", err)
		}
		return okx, okx.Close, nil
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		secretKey := os.Getenv("BINANCE_SECRET_KEY")
		if !cfg.DryRun && (apiKey == "" || secretKey == "") {
			log.Fatal("错误：BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置。")
		}
		return exchange.NewBinanceExchange(apiKey, secretKey, cfg.Symbol, cfg.IsTestnet, log), nil, nil
	}

	log.Fatalf("未知的交易所: %s。请选择 'okx', 'binance' 或 'simulated'。", cfg.Exchange)
	return nil, nil, nil
}

// buildRepository 根据配置选择状态存储后端
func buildRepository(cfg *models.Config) (persistence.PositionRepository, error) {
	if cfg.StateBackend == "badger" {
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = "data/state_db"
		}
		return persistence.NewBadgerRepository(dbPath)
	}
	statePath := cfg.StatePath
	if statePath == "" {
		statePath = "data/state.json"
	}
	return persistence.NewFileRepository(statePath)
}
