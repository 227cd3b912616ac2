package exchange

import (
	"sync"
	"time"

	"okx-spot-bot-go/internal/models"
)

// SimulatedExchange 实现了 Exchange 接口，提供确定性的合成行情，
// 用于模拟环境和测试。不持有任何真实资金。
type SimulatedExchange struct {
	mu    sync.Mutex
	price float64
}

// NewSimulatedExchange 创建一个模拟交易所，初始最新价为100。
func NewSimulatedExchange() *SimulatedExchange {
	return &SimulatedExchange{price: 100.0}
}

// SetPrice 设置最新成交价，测试和演示场景使用
func (e *SimulatedExchange) SetPrice(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.price = p
}

func (e *SimulatedExchange) LoadMarkets() error {
	return nil
}

// FetchOHLCV 返回合成K线: 1h周期为24根从100到101的缓升序列，
// 其他周期为先跌(100→99, 50根)后涨(99→101, 150根)的V形序列。
// 所有K线共享当前时间戳。
func (e *SimulatedExchange) FetchOHLCV(symbol, timeframe string, since int64, limit int) ([]models.Candle, error) {
	now := time.Now().UnixMilli()

	var closes []float64
	if timeframe == "1h" {
		closes = linspace(100.0, 101.0, 24)
	} else {
		closes = append(linspace(100.0, 99.0, 50), linspace(99.0, 101.0, 150)...)
	}
	if limit > 0 && limit < len(closes) {
		closes = closes[:limit]
	}

	candles := make([]models.Candle, 0, len(closes))
	for _, c := range closes {
		candles = append(candles, models.Candle{Timestamp: now, Close: c})
	}
	return candles, nil
}

func (e *SimulatedExchange) FetchTicker(symbol string) (*models.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &models.Ticker{Last: e.price, Bid: e.price, Ask: e.price}, nil
}

func (e *SimulatedExchange) CreateMarketBuy(symbol string, quoteCost float64) (*models.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price := e.price
	if price <= 0 {
		price = 1e-9
	}
	return &models.OrderResult{ID: "sim_buy", Amount: quoteCost / price}, nil
}

func (e *SimulatedExchange) CreateMarketSell(symbol string, baseAmount float64) (*models.OrderResult, error) {
	return &models.OrderResult{ID: "sim_sell", Amount: baseAmount}, nil
}

func (e *SimulatedExchange) CreateLimitBuy(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return &models.OrderResult{ID: "sim_limit_buy", Amount: baseAmount, Price: price}, nil
}

func (e *SimulatedExchange) CreateLimitSell(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return &models.OrderResult{ID: "sim_limit_sell", Amount: baseAmount, Price: price}, nil
}

func (e *SimulatedExchange) FetchBalance() (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (e *SimulatedExchange) FetchMyTrades(symbol string, since int64) ([]models.TradeRecord, error) {
	return nil, nil
}

// linspace 生成从start到stop的n个等间距采样点(包含端点)
func linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}
