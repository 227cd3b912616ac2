package exchange

import (
	"strings"

	"okx-spot-bot-go/internal/models"
)

// Exchange 定义了所有交易所实现必须提供的通用方法。
// 这使得策略可以在真实交易和模拟环境之间轻松切换。
type Exchange interface {
	// LoadMarkets 拉取并缓存交易规则(精度、最小下单量等)
	LoadMarkets() error
	// FetchOHLCV 返回按时间升序排列的K线
	FetchOHLCV(symbol, timeframe string, since int64, limit int) ([]models.Candle, error)
	FetchTicker(symbol string) (*models.Ticker, error)
	// CreateMarketBuy 按计价货币金额市价买入
	CreateMarketBuy(symbol string, quoteCost float64) (*models.OrderResult, error)
	// CreateMarketSell 按基础货币数量市价卖出
	CreateMarketSell(symbol string, baseAmount float64) (*models.OrderResult, error)
	CreateLimitBuy(symbol string, baseAmount, price float64) (*models.OrderResult, error)
	CreateLimitSell(symbol string, baseAmount, price float64) (*models.OrderResult, error)
	// FetchBalance 返回 资产->可用余额 的映射
	FetchBalance() (map[string]float64, error)
	// FetchMyTrades 返回按时间升序排列的历史成交
	FetchMyTrades(symbol string, since int64) ([]models.TradeRecord, error)
}

// BaseAsset 从形如 "ETH/USDT" 的交易对中取出基础货币
func BaseAsset(symbol string) string {
	parts := strings.Split(symbol, "/")
	return parts[0]
}

// QuoteAsset 从交易对中取出计价货币
func QuoteAsset(symbol string) string {
	parts := strings.Split(symbol, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
