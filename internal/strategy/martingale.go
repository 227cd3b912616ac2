package strategy

import (
	"fmt"
	"time"

	"okx-spot-bot-go/internal/exchange"
	"okx-spot-bot-go/internal/indicator"
	"okx-spot-bot-go/internal/ledger"
	"okx-spot-bot-go/internal/models"
	"okx-spot-bot-go/internal/persistence"

	"go.uber.org/zap"
)

const (
	martingaleTimeframe = "5m"
	baselineRefreshSec  = 3600 // 基准线最多每小时重算一次
	baselineWindow      = 48   // 覆盖前一日所需的1小时K线数量
)

// Martingale 实现回撤加仓+整体止盈的策略变体:
// 价格低于前一日均价基准线时建仓; 持仓回撤到触发价且出现金叉时
// 按当前持仓的倍数加仓; 浮盈达到止盈比例时清仓。
type Martingale struct {
	*Engine

	baseline   float64
	baselineAt time.Time
}

// NewMartingale 构造martingale策略实例并完成启动对账
func NewMartingale(cfg *models.Config, ex exchange.Exchange, store persistence.PositionRepository,
	led *ledger.Ledger, logger *zap.SugaredLogger) (*Martingale, error) {

	eng, err := NewEngine(cfg, ex, store, led, logger, martingaleTimeframe, false)
	if err != nil {
		return nil, err
	}
	return &Martingale{Engine: eng}, nil
}

// Run 以配置的轮询间隔驱动策略直到收到停止信号
func (m *Martingale) Run(stop <-chan struct{}) {
	RunLoop(m, m.cfg.PollIntervalSec, m.logger, stop)
}

// Step 执行一个完整的轮询周期:
// 对账 → 基准线 → K线缓存 → 指标 → 三段式决策(建仓/加仓/止盈)。
func (m *Martingale) Step() error {
	if err := m.RefreshFromBalance(); err != nil {
		return err
	}

	baseline := m.cachedBaseline()

	// K线刷新失败直接中止本周期，不允许在陈旧窗口上做决策
	if err := m.UpdateCandleCache(); err != nil {
		return fmt.Errorf("刷新K线缓存失败: %w", err)
	}
	closes := m.Closes()
	goldenCross := len(closes) > 0 && indicator.DetectGoldenCross(closes)

	lastPrice, err := m.latestPrice()
	if err != nil {
		return err
	}

	if err := m.initialBuyIfNeeded(lastPrice, baseline); err != nil {
		return err
	}
	if err := m.martingaleBuyIfNeeded(lastPrice, goldenCross); err != nil {
		return err
	}
	return m.takeProfitIfNeeded(lastPrice)
}

// cachedBaseline 返回缓存的基准线，每小时至多重算一次。
// 计算失败时缓存0(基准线为0意味着本轮不会触发建仓)。
func (m *Martingale) cachedBaseline() float64 {
	now := time.Now()
	if !m.baselineAt.IsZero() && now.Sub(m.baselineAt) < baselineRefreshSec*time.Second {
		return m.baseline
	}

	m.baselineAt = now
	candles, err := m.exchange.FetchOHLCV(m.symbol, "1h", 0, baselineWindow)
	if err != nil {
		m.logger.Warnf("拉取基准线K线失败: %v", err)
		m.baseline = 0
		return m.baseline
	}
	m.baseline = indicator.PrevDayBaseline(candles, now)
	m.logger.Infof("基准线已更新: %.6f", m.baseline)
	return m.baseline
}

// initialBuyIfNeeded 空仓且价格低于基准线时，按固定计价货币金额建仓
func (m *Martingale) initialBuyIfNeeded(lastPrice, baseline float64) error {
	if m.state.BaseAmount > 0 {
		m.logger.Infof("跳过建仓: base_amount=%.8f > 0", m.state.BaseAmount)
		return nil
	}
	if lastPrice >= baseline {
		m.logger.Infof("跳过建仓: last_price=%.6f >= baseline=%.6f", lastPrice, baseline)
		return nil
	}
	return m.BuyQuote(m.cfg.BaseBuyUSDT)
}

// martingaleBuyIfNeeded 持仓回撤达到触发价并确认金叉时，按持仓倍数加仓。
// 实盘路径会重新获取一次最新价来换算加仓金额(与干跑路径的价格可能不同)。
func (m *Martingale) martingaleBuyIfNeeded(lastPrice float64, goldenCross bool) error {
	if m.state.BaseAmount <= 0 {
		return nil
	}
	triggerPrice := m.state.AvgCost * (1.0 - m.cfg.DrawdownPct)
	if lastPrice > triggerPrice {
		return nil
	}
	if !goldenCross {
		return nil
	}

	addAmount := m.state.BaseAmount * m.cfg.Multiplicator
	if m.cfg.DryRun {
		return m.BuyQuote(addAmount * lastPrice)
	}

	ticker, err := m.exchange.FetchTicker(m.symbol)
	if err != nil {
		return err
	}
	return m.BuyQuote(addAmount * ticker.Last)
}

// takeProfitIfNeeded 浮盈达到止盈比例(含边界)时清仓，
// 或按配置保留少量底仓。
func (m *Martingale) takeProfitIfNeeded(lastPrice float64) error {
	if m.PnLRatio(lastPrice) < m.cfg.TakeProfitPct {
		return nil
	}
	if m.cfg.TPKeepDust {
		return m.SellKeepQuote(m.cfg.TPRemainUSDT)
	}
	return m.SellAll()
}
