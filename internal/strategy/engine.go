// Package strategy 实现仓位对账与规则驱动的买卖决策。
//
// Engine 承载两个策略变体共享的部分: 持仓状态、快照存储、成交账本、
// K线缓存、对账逻辑和下单执行; 各变体只实现自己的门控规则。
package strategy

import (
	"time"

	"okx-spot-bot-go/internal/exchange"
	"okx-spot-bot-go/internal/ledger"
	"okx-spot-bot-go/internal/models"
	"okx-spot-bot-go/internal/persistence"

	"go.uber.org/zap"
)

const defaultCandleLimit = 200

// Engine 是两个策略变体共享的核心组件
type Engine struct {
	cfg      *models.Config
	exchange exchange.Exchange
	store    persistence.PositionRepository
	ledger   *ledger.Ledger
	logger   *zap.SugaredLogger

	symbol    string
	timeframe string
	state     *models.PositionState

	candles     []models.Candle
	candleLimit int

	// sigma变体在实盘模式下每个周期都从成交历史刷新成本价
	refreshCostBasis bool
}

// NewEngine 加载持久化快照并执行一次启动对账。
// 对账是尽力而为的: 失败只记录日志，不阻止启动。
func NewEngine(cfg *models.Config, ex exchange.Exchange, store persistence.PositionRepository,
	led *ledger.Ledger, logger *zap.SugaredLogger, timeframe string, refreshCostBasis bool) (*Engine, error) {

	state, err := store.Load()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:              cfg,
		exchange:         ex,
		store:            store,
		ledger:           led,
		logger:           logger,
		symbol:           cfg.Symbol,
		timeframe:        timeframe,
		state:            state,
		candleLimit:      defaultCandleLimit,
		refreshCostBasis: refreshCostBasis,
	}

	if err := e.Bootstrap(); err != nil {
		e.logger.Warnf("启动对账失败，保持已加载状态继续运行: %v", err)
	}
	return e, nil
}

// State 返回当前持仓快照(引擎独占所有权，调用方只读)
func (e *Engine) State() *models.PositionState {
	return e.state
}

// saveState 立即持久化当前快照。持久化失败视为该操作的致命错误。
func (e *Engine) saveState() error {
	return e.store.Save(e.state)
}

// UpdateCandleCache 惰性维护K线缓存:
// 首次调用拉取整个窗口，之后只拉取最新一根; 时间戳相同则原地更新，
// 否则追加并按FIFO淘汰最旧的一根，窗口上限200根。
func (e *Engine) UpdateCandleCache() error {
	if len(e.candles) == 0 {
		data, err := e.exchange.FetchOHLCV(e.symbol, e.timeframe, 0, e.candleLimit)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			e.candles = data
		}
		return nil
	}

	latest, err := e.exchange.FetchOHLCV(e.symbol, e.timeframe, 0, 1)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		return nil
	}

	candle := latest[len(latest)-1]
	last := len(e.candles) - 1
	if e.candles[last].Timestamp == candle.Timestamp {
		e.candles[last] = candle
	} else {
		e.candles = append(e.candles, candle)
		if len(e.candles) > e.candleLimit {
			e.candles = e.candles[1:]
		}
	}
	return nil
}

// Closes 返回缓存K线的收盘价序列
func (e *Engine) Closes() []float64 {
	closes := make([]float64, len(e.candles))
	for i, c := range e.candles {
		closes[i] = c.Close
	}
	return closes
}

// PrevCandle 返回倒数第二根K线(即最近一根已收盘的K线)
func (e *Engine) PrevCandle() (models.Candle, bool) {
	if len(e.candles) < 2 {
		return models.Candle{}, false
	}
	return e.candles[len(e.candles)-2], true
}

// PnLRatio 计算相对均价的浮盈比例。空仓或成本未知时定义为0。
func (e *Engine) PnLRatio(price float64) float64 {
	if e.state.BaseAmount <= 0 || e.state.AvgCost <= 0 {
		return 0
	}
	return (price - e.state.AvgCost) / e.state.AvgCost
}

// Stepper 执行一个轮询周期
type Stepper interface {
	Step() error
}

// RunLoop 以固定间隔驱动策略直到收到停止信号。
// 周期内的任何错误都在这里兜底记录，下个周期照常重试，没有退避。
func RunLoop(s Stepper, intervalSec int, logger *zap.SugaredLogger, stop <-chan struct{}) {
	interval := time.Duration(intervalSec) * time.Second
	for {
		if err := s.Step(); err != nil {
			logger.Errorf("轮询周期执行失败: %v", err)
		}
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}
