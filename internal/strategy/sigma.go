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

// Sigma 实现冷却门控的渐进式加仓策略变体:
// 买入受冷却时间、跌幅、金叉和最大加仓次数四重门控;
// 卖出只在浮盈达标且上一根K线收阴时把仓位卖到底仓线。
type Sigma struct {
	*Engine
}

// NewSigma 构造sigma策略实例并完成启动对账
func NewSigma(cfg *models.Config, ex exchange.Exchange, store persistence.PositionRepository,
	led *ledger.Ledger, logger *zap.SugaredLogger) (*Sigma, error) {

	eng, err := NewEngine(cfg, ex, store, led, logger, cfg.SigmaMACDTimeframe, true)
	if err != nil {
		return nil, err
	}
	return &Sigma{Engine: eng}, nil
}

// Run 以配置的轮询间隔驱动策略直到收到停止信号
func (s *Sigma) Run(stop <-chan struct{}) {
	RunLoop(s, s.cfg.PollIntervalSec, s.logger, stop)
}

// Step 执行一个完整的轮询周期。买卖两个门控独立判定，
// 任一门控不通过只是跳过该动作，并把各谓词的取值写进日志便于排查。
func (s *Sigma) Step() error {
	if err := s.RefreshFromBalance(); err != nil {
		s.logger.Warnf("刷新持仓失败(保持原状态): %v", err)
	}

	// K线刷新失败直接中止本周期，不允许在陈旧窗口上做决策
	if err := s.UpdateCandleCache(); err != nil {
		return fmt.Errorf("刷新K线缓存失败: %w", err)
	}
	closes := s.Closes()
	goldenCross := len(closes) > 0 && indicator.DetectGoldenCross(closes)

	lastPrice, err := s.latestPrice()
	if err != nil {
		return err
	}
	nowMs := time.Now().UnixMilli()

	// 买入门控
	cooldownOK := nowMs-s.state.LastBuyMs >= int64(s.cfg.SigmaBuyCooldownSec)*1000
	priceOK := s.state.BaseAmount <= 0 ||
		(s.state.AvgCost > 0 && lastPrice <= s.state.AvgCost*(1.0-s.cfg.SigmaBuyPriceDropPct))
	addsOK := s.state.BuyCount < s.cfg.SigmaMaxAdds
	canBuy := priceOK && cooldownOK && goldenCross && addsOK

	if canBuy {
		if err := s.BuyBase(s.cfg.SigmaBuyBase); err != nil {
			return err
		}
		s.state.LastBuyMs = nowMs
		s.state.BuyCount++
		if err := s.saveState(); err != nil {
			return err
		}
	} else {
		s.logger.Infof("cant buy: price_ok=%v cooldown_ok=%v golden_cross=%v adds_ok=%v (base=%.8f avg=%.6f last=%.6f buy_count=%d)",
			priceOK, cooldownOK, goldenCross, addsOK,
			s.state.BaseAmount, s.state.AvgCost, lastPrice, s.state.BuyCount)
	}

	// 卖出门控
	prevBearish := false
	if prev, ok := s.PrevCandle(); ok {
		prevBearish = prev.Open > prev.Close
	}
	amountOK := s.state.BaseAmount >= s.cfg.SigmaSellLeaveBase
	profitOK := s.state.AvgCost > 0 && lastPrice >= s.state.AvgCost*(1.0+s.cfg.SigmaSellProfitPct)
	canSell := amountOK && profitOK && prevBearish

	if canSell {
		if err := s.SellKeepBase(s.cfg.SigmaSellLeaveBase); err != nil {
			return err
		}
	} else {
		s.logger.Infof("cant sell: amount_ok=%v profit_ok=%v prev_bearish=%v (base=%.8f avg=%.6f last=%.6f)",
			amountOK, profitOK, prevBearish,
			s.state.BaseAmount, s.state.AvgCost, lastPrice)
	}

	// 周期状态行
	balances, err := s.exchange.FetchBalance()
	if err != nil {
		return err
	}
	usdtFree := balances[exchange.QuoteAsset(s.symbol)]
	pnlRatio := s.PnLRatio(lastPrice)
	pnlAmount := 0.0
	if s.state.AvgCost > 0 && s.state.BaseAmount > 0 {
		pnlAmount = s.state.BaseAmount * (lastPrice - s.state.AvgCost)
	}
	s.logger.Infof("state: base=%.8f avg_cost=%.6f buy_count=%d price=%.6f pnl_ratio=%.6f pnl_amount=%.6f %s_free=%.2f",
		s.state.BaseAmount, s.state.AvgCost, s.state.BuyCount,
		lastPrice, pnlRatio, pnlAmount, exchange.QuoteAsset(s.symbol), usdtFree)
	return nil
}
