package models

import "fmt"

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Exchange     string `json:"exchange"`      // 交易所名称: "okx", "binance" 或 "simulated"
	Symbol       string `json:"symbol"`        // 交易对，如 "ETH/USDT"
	IsTestnet    bool   `json:"is_testnet"`    // 是否使用测试网/模拟盘
	DryRun       bool   `json:"dry_run"`       // 干跑模式: 不真实下单，仅模拟成交
	SimulatedEnv bool   `json:"simulated_env"` // 模拟环境: 使用内置模拟交易所，强制开启干跑
	TimeoutMs    int    `json:"timeout_ms"`    // HTTP请求超时(毫秒)
	HTTPProxy    string `json:"http_proxy"`    // HTTP代理地址(可选)

	OrderType        string  `json:"order_type"`         // 下单类型: "market" 或 "limit"
	LimitSlippagePct float64 `json:"limit_slippage_pct"` // 限价单相对买一/卖一的滑点偏移比例

	// 马丁格尔策略 (martingale)
	BaseBuyUSDT   float64 `json:"base_buy_usdt"`   // 初次建仓的计价货币金额 (USDT)
	TakeProfitPct float64 `json:"take_profit_pct"` // 止盈比例
	DrawdownPct   float64 `json:"drawdown_pct"`    // 加仓触发的回撤比例
	Multiplicator float64 `json:"multiplicator"`   // 马丁格尔加仓倍数
	TPKeepDust    bool    `json:"tp_keep_dust"`    // 止盈时是否保留少量底仓而非全部卖出
	TPRemainUSDT  float64 `json:"tp_remain_usdt"`  // 保留底仓的计价货币价值 (USDT)

	// Sigma策略 (sigma)
	SigmaBuyBase         float64 `json:"sigma_buy_base"`           // 单次买入的基础货币数量
	SigmaMaxAdds         int     `json:"sigma_max_adds"`           // 最大加仓次数
	SigmaBuyCooldownSec  int     `json:"sigma_buy_cooldown_sec"`   // 买入冷却时间(秒)
	SigmaBuyPriceDropPct float64 `json:"sigma_buy_price_drop_pct"` // 加仓要求的相对均价跌幅
	SigmaSellProfitPct   float64 `json:"sigma_sell_profit_pct"`    // 卖出要求的浮盈比例
	SigmaSellLeaveBase   float64 `json:"sigma_sell_leave_base"`    // 卖出时保留的基础货币底仓数量
	SigmaMACDTimeframe   string  `json:"sigma_macd_timeframe"`     // 指标计算使用的K线周期

	PollIntervalSec   int    `json:"poll_interval_sec"`    // 轮询间隔(秒)
	ResetStateOnStart bool   `json:"reset_state_on_start"` // 启动时清零持仓状态
	StateBackend      string `json:"state_backend"`        // 状态存储后端: "file" 或 "badger"
	StatePath         string `json:"state_path"`           // 文件后端的状态快照路径
	DBPath            string `json:"db_path"`              // badger后端的数据库目录
	LedgerPath        string `json:"ledger_path"`          // 成交账本CSV路径

	LogConfig LogConfig `json:"log"` // 日志配置
}

// Normalize 收敛互相矛盾的开关组合。
// 模拟环境下强制开启干跑与测试网，避免误触真实资金。
func (c *Config) Normalize() {
	if c.SimulatedEnv {
		c.DryRun = true
		c.IsTestnet = true
	}
	if c.OrderType == "" {
		c.OrderType = "market"
	}
	if c.SigmaMACDTimeframe == "" {
		c.SigmaMACDTimeframe = "5m"
	}
	if c.PollIntervalSec <= 0 {
		c.PollIntervalSec = 30
	}
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

// Candle 代表一根K线，按时间戳升序排列
type Candle struct {
	Timestamp int64   `json:"timestamp"` // 开盘时间 (epoch毫秒)
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// Ticker 定义了最新行情报价
type Ticker struct {
	Last float64 `json:"last"` // 最新成交价
	Bid  float64 `json:"bid"`  // 买一价
	Ask  float64 `json:"ask"`  // 卖一价
}

// OrderResult 是下单请求的确认回执。
// 注意: 只表示订单已被交易所接受，不代表成交状态。
type OrderResult struct {
	ID     string  `json:"id"`     // 交易所订单ID
	Amount float64 `json:"amount"` // 市价单换算出的基础货币数量 (限价单为委托数量)
	Price  float64 `json:"price"`  // 限价单的委托价格
}

// TradeRecord 定义了交易所返回的历史成交记录
type TradeRecord struct {
	Side   string  `json:"side"`   // "buy" 或 "sell"
	Price  float64 `json:"price"`  // 成交价格
	Amount float64 `json:"amount"` // 成交数量 (基础货币)
}

// APIError 定义了交易所API返回的错误信息结构
type APIError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%s, msg=%s", e.Code, e.Msg)
}
