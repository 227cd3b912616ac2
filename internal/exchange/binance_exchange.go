package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"okx-spot-bot-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// BinanceExchange 实现了 Exchange 接口，通过官方SDK进行币安现货交易。
type BinanceExchange struct {
	client *binance.Client
	symbol string
	logger *zap.SugaredLogger

	// 交易规则缓存
	minQty      float64
	stepSize    float64
	minNotional float64 // 最小下单名义价值(计价货币)
}

// NewBinanceExchange 创建一个新的 BinanceExchange 实例。
func NewBinanceExchange(apiKey, secretKey, symbol string, testnet bool, logger *zap.SugaredLogger) *BinanceExchange {
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceExchange{
		client: binance.NewClient(apiKey, secretKey),
		symbol: symbol,
		logger: logger,
	}
}

// binanceSymbol 将 "ETH/USDT" 转换为币安的 "ETHUSDT"
func binanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// LoadMarkets 拉取并缓存所配置交易对的下单规则
func (e *BinanceExchange) LoadMarkets() error {
	info, err := e.client.NewExchangeInfoService().Symbol(binanceSymbol(e.symbol)).Do(context.Background())
	if err != nil {
		return fmt.Errorf("拉取 %s 交易规则失败: %w", e.symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != binanceSymbol(e.symbol) {
			continue
		}
		if f := s.LotSizeFilter(); f != nil {
			e.minQty, _ = strconv.ParseFloat(f.MinQuantity, 64)
			e.stepSize, _ = strconv.ParseFloat(f.StepSize, 64)
		}
		// 现货的名义价值下限: 新接口为NOTIONAL，旧接口为MIN_NOTIONAL
		for _, f := range s.Filters {
			ft, _ := f["filterType"].(string)
			if ft != "NOTIONAL" && ft != "MIN_NOTIONAL" {
				continue
			}
			if v, ok := f["minNotional"].(string); ok {
				e.minNotional, _ = strconv.ParseFloat(v, 64)
			}
		}
	}
	e.logger.Infof("已缓存 %s 的交易规则 minQty=%v stepSize=%v minNotional=%v",
		e.symbol, e.minQty, e.stepSize, e.minNotional)
	return nil
}

// normalizeAmount 按交易规则修正下单数量: 不足最小量抬升到最小量，
// 名义价值不足时按价格抬升到名义下限(价格未知时跳过)，再向下对齐步长。
func (e *BinanceExchange) normalizeAmount(amount, price float64) float64 {
	if e.minQty > 0 && amount < e.minQty {
		amount = e.minQty
	}
	if e.minNotional > 0 && price > 0 && amount*price < e.minNotional {
		amount = e.minNotional / price
	}
	if e.stepSize > 0 {
		amount = math.Floor(amount/e.stepSize) * e.stepSize
	}
	return amount
}

// FetchOHLCV 返回按时间升序排列的K线
func (e *BinanceExchange) FetchOHLCV(symbol, timeframe string, since int64, limit int) ([]models.Candle, error) {
	svc := e.client.NewKlinesService().Symbol(binanceSymbol(symbol)).Interval(timeframe)
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	if since > 0 {
		svc = svc.StartTime(since)
	}
	klines, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("拉取K线失败: %w", err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		open, errO := strconv.ParseFloat(k.Open, 64)
		high, errH := strconv.ParseFloat(k.High, 64)
		low, errL := strconv.ParseFloat(k.Low, 64)
		closePx, errC := strconv.ParseFloat(k.Close, 64)
		if errO != nil || errH != nil || errL != nil || errC != nil {
			continue
		}
		candles = append(candles, models.Candle{Timestamp: k.OpenTime, Open: open, High: high, Low: low, Close: closePx})
	}
	return candles, nil
}

func (e *BinanceExchange) FetchTicker(symbol string) (*models.Ticker, error) {
	prices, err := e.client.NewListPricesService().Symbol(binanceSymbol(symbol)).Do(context.Background())
	if err != nil || len(prices) == 0 {
		return nil, fmt.Errorf("拉取最新价失败: %v", err)
	}
	last, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return nil, fmt.Errorf("解析最新价失败: %w", err)
	}

	ticker := &models.Ticker{Last: last, Bid: last, Ask: last}
	books, err := e.client.NewListBookTickersService().Symbol(binanceSymbol(symbol)).Do(context.Background())
	if err == nil && len(books) > 0 {
		if bid, err := strconv.ParseFloat(books[0].BidPrice, 64); err == nil && bid > 0 {
			ticker.Bid = bid
		}
		if ask, err := strconv.ParseFloat(books[0].AskPrice, 64); err == nil && ask > 0 {
			ticker.Ask = ask
		}
	}
	return ticker, nil
}

// CreateMarketBuy 按计价货币金额市价买入 (quoteOrderQty)
func (e *BinanceExchange) CreateMarketBuy(symbol string, quoteCost float64) (*models.OrderResult, error) {
	resp, err := e.client.NewCreateOrderService().
		Symbol(binanceSymbol(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(strconv.FormatFloat(quoteCost, 'f', -1, 64)).
		NewClientOrderID(newClientOrderID()).
		Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("市价买入失败: %w", err)
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	e.logger.Infof("订单已提交 symbol=%s side=buy type=market quote=%.4f executed=%.8f orderId=%d",
		symbol, quoteCost, executed, resp.OrderID)
	return &models.OrderResult{ID: strconv.FormatInt(resp.OrderID, 10), Amount: executed}, nil
}

func (e *BinanceExchange) CreateMarketSell(symbol string, baseAmount float64) (*models.OrderResult, error) {
	amount := e.normalizeAmount(baseAmount, 0)
	resp, err := e.client.NewCreateOrderService().
		Symbol(binanceSymbol(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		NewClientOrderID(newClientOrderID()).
		Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("市价卖出失败: %w", err)
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if executed <= 0 {
		executed = amount
	}
	return &models.OrderResult{ID: strconv.FormatInt(resp.OrderID, 10), Amount: executed}, nil
}

func (e *BinanceExchange) createLimitOrder(symbol string, side binance.SideType, baseAmount, price float64) (*models.OrderResult, error) {
	amount := e.normalizeAmount(baseAmount, price)
	resp, err := e.client.NewCreateOrderService().
		Symbol(binanceSymbol(symbol)).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		Price(strconv.FormatFloat(price, 'f', -1, 64)).
		NewClientOrderID(newClientOrderID()).
		Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("限价下单失败: %w", err)
	}
	return &models.OrderResult{ID: strconv.FormatInt(resp.OrderID, 10), Amount: amount, Price: price}, nil
}

func (e *BinanceExchange) CreateLimitBuy(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return e.createLimitOrder(symbol, binance.SideTypeBuy, baseAmount, price)
}

func (e *BinanceExchange) CreateLimitSell(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return e.createLimitOrder(symbol, binance.SideTypeSell, baseAmount, price)
}

// FetchBalance 返回 资产->可用余额 的映射
func (e *BinanceExchange) FetchBalance() (map[string]float64, error) {
	account, err := e.client.NewGetAccountService().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("获取账户余额失败: %w", err)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		if v, err := strconv.ParseFloat(b.Free, 64); err == nil {
			balances[b.Asset] = v
		}
	}
	return balances, nil
}

// FetchMyTrades 返回按时间升序排列的历史成交
func (e *BinanceExchange) FetchMyTrades(symbol string, since int64) ([]models.TradeRecord, error) {
	svc := e.client.NewListTradesService().Symbol(binanceSymbol(symbol))
	if since > 0 {
		svc = svc.StartTime(since)
	}
	trades, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("获取历史成交失败: %w", err)
	}

	records := make([]models.TradeRecord, 0, len(trades))
	for _, t := range trades {
		price, errP := strconv.ParseFloat(t.Price, 64)
		amount, errA := strconv.ParseFloat(t.Quantity, 64)
		if errP != nil || errA != nil {
			continue
		}
		side := "sell"
		if t.IsBuyer {
			side = "buy"
		}
		records = append(records, models.TradeRecord{Side: side, Price: price, Amount: amount})
	}
	return records, nil
}
