package exchange

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"okx-spot-bot-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

const (
	okxRESTBaseURL   = "https://www.okx.com"
	okxPublicWSURL   = "wss://ws.okx.com:8443/ws/v5/public"
	tickerAgeMaxMs   = 5000 // WebSocket行情的最大可用年龄
	wsPingIntervalMs = 20000
)

// okxInstrument 缓存一个交易对的下单规则
type okxInstrument struct {
	InstID string `json:"instId"`
	LotSz  string `json:"lotSz"` // 下单数量精度步长
	MinSz  string `json:"minSz"` // 最小下单数量
	TickSz string `json:"tickSz"`
}

// OkxExchange 实现了 Exchange 接口，通过OKX v5 REST接口进行现货交易。
// 可选地订阅公共行情WebSocket，用缓存的最新报价降低REST调用频率。
type OkxExchange struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	simulated  bool // OKX模拟盘 (x-simulated-trading)
	httpClient *http.Client
	logger     *zap.SugaredLogger

	mu          sync.Mutex
	instruments map[string]okxInstrument

	tickerMu   sync.RWMutex
	wsTicker   models.Ticker
	wsTickerAt int64 // 最近一次ws行情的本地时间戳(毫秒)
	wsConn     *websocket.Conn
	wsStop     chan struct{}
}

// NewOkxExchange 创建一个新的 OkxExchange 实例。
func NewOkxExchange(apiKey, secretKey, passphrase string, testnet bool, timeoutMs int, proxy string, logger *zap.SugaredLogger) (*OkxExchange, error) {
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	transport := &http.Transport{}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("解析代理地址失败: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &OkxExchange{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		baseURL:    okxRESTBaseURL,
		simulated:  testnet,
		httpClient: &http.Client{
			Timeout:   time.Duration(timeoutMs) * time.Millisecond,
			Transport: transport,
		},
		logger:      logger,
		instruments: make(map[string]okxInstrument),
		wsStop:      make(chan struct{}),
	}, nil
}

// instID 将 "ETH/USDT" 转换为OKX的 "ETH-USDT"
func instID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

// okxBar 将通用周期写法映射为OKX的bar参数 (小时及以上为大写)
func okxBar(timeframe string) string {
	if strings.HasSuffix(timeframe, "h") || strings.HasSuffix(timeframe, "d") {
		return strings.ToUpper(timeframe)
	}
	return timeframe
}

// sign 生成OKX v5签名: Base64(HMAC-SHA256(timestamp+method+path+body))
func (e *OkxExchange) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// doRequest 是一个通用的请求处理函数，用于向OKX API发送请求。
func (e *OkxExchange) doRequest(method, requestPath string, body interface{}, signed bool) (json.RawMessage, error) {
	var bodyStr string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyStr = string(data)
	}

	req, err := http.NewRequest(method, e.baseURL+requestPath, bytes.NewBufferString(bodyStr))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", e.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", e.sign(timestamp, method, requestPath, bodyStr))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", e.passphrase)
	}
	if e.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("执行请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	// OKX统一响应信封: {"code":"0","msg":"","data":[...]}
	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w (%s)", err, string(data))
	}
	if envelope.Code != "0" {
		return nil, &models.APIError{Code: envelope.Code, Msg: envelope.Msg}
	}
	return envelope.Data, nil
}

// LoadMarkets 拉取SPOT交易规则并缓存
func (e *OkxExchange) LoadMarkets() error {
	data, err := e.doRequest("GET", "/api/v5/public/instruments?instType=SPOT", nil, false)
	if err != nil {
		return fmt.Errorf("拉取交易规则失败: %w", err)
	}

	var list []okxInstrument
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("解析交易规则失败: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range list {
		e.instruments[inst.InstID] = inst
	}
	e.logger.Infof("已缓存 %d 个SPOT交易对的交易规则", len(list))
	return nil
}

// normalizeAmount 按交易规则修正下单数量: 不足最小量时抬升到最小量，再向下对齐数量步长。
func (e *OkxExchange) normalizeAmount(symbol string, amount float64) float64 {
	e.mu.Lock()
	inst, ok := e.instruments[instID(symbol)]
	e.mu.Unlock()
	if !ok {
		return amount
	}

	if minSz, err := strconv.ParseFloat(inst.MinSz, 64); err == nil && minSz > 0 && amount < minSz {
		amount = minSz
	}
	if lotSz, err := strconv.ParseFloat(inst.LotSz, 64); err == nil && lotSz > 0 {
		amount = math.Floor(amount/lotSz) * lotSz
	}
	return amount
}

// normalizePrice 将价格向下对齐到最小报价步长
func (e *OkxExchange) normalizePrice(symbol string, price float64) float64 {
	e.mu.Lock()
	inst, ok := e.instruments[instID(symbol)]
	e.mu.Unlock()
	if !ok {
		return price
	}
	if tickSz, err := strconv.ParseFloat(inst.TickSz, 64); err == nil && tickSz > 0 {
		price = math.Floor(price/tickSz) * tickSz
	}
	return price
}

// FetchOHLCV 返回按时间升序排列的K线。OKX返回的是最新在前，这里做一次反转。
func (e *OkxExchange) FetchOHLCV(symbol, timeframe string, since int64, limit int) ([]models.Candle, error) {
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s", instID(symbol), okxBar(timeframe))
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	if since > 0 {
		path += fmt.Sprintf("&before=%d", since)
	}

	data, err := e.doRequest("GET", path, nil, false)
	if err != nil {
		return nil, fmt.Errorf("拉取K线失败: %w", err)
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("解析K线失败: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 5 {
			continue
		}
		ts, errT := strconv.ParseInt(row[0], 10, 64)
		open, errO := strconv.ParseFloat(row[1], 64)
		high, errH := strconv.ParseFloat(row[2], 64)
		low, errL := strconv.ParseFloat(row[3], 64)
		closePx, errC := strconv.ParseFloat(row[4], 64)
		if errT != nil || errO != nil || errH != nil || errL != nil || errC != nil {
			continue
		}
		candles = append(candles, models.Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: closePx})
	}
	return candles, nil
}

// FetchTicker 优先使用足够新鲜的WebSocket行情缓存，否则回退到REST查询。
func (e *OkxExchange) FetchTicker(symbol string) (*models.Ticker, error) {
	e.tickerMu.RLock()
	cached := e.wsTicker
	cachedAt := e.wsTickerAt
	e.tickerMu.RUnlock()
	age := time.Now().UnixMilli() - cachedAt
	if cachedAt > 0 && age >= 0 && age < tickerAgeMaxMs && cached.Last > 0 {
		return &cached, nil
	}

	path := fmt.Sprintf("/api/v5/market/ticker?instId=%s", instID(symbol))
	data, err := e.doRequest("GET", path, nil, false)
	if err != nil {
		return nil, fmt.Errorf("拉取行情失败: %w", err)
	}

	var rows []struct {
		Last  string `json:"last"`
		BidPx string `json:"bidPx"`
		AskPx string `json:"askPx"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("解析行情失败: %v (%s)", err, string(data))
	}

	last, _ := strconv.ParseFloat(rows[0].Last, 64)
	bid, _ := strconv.ParseFloat(rows[0].BidPx, 64)
	ask, _ := strconv.ParseFloat(rows[0].AskPx, 64)
	if bid <= 0 {
		bid = last
	}
	if ask <= 0 {
		ask = last
	}
	return &models.Ticker{Last: last, Bid: bid, Ask: ask}, nil
}

// newClientOrderID 生成OKX允许的字母数字clOrdId
func newClientOrderID() string {
	return "b" + string(base62.FormatInt(time.Now().UnixNano()))
}

// placeOrder 提交现货订单并返回交易所回执
func (e *OkxExchange) placeOrder(symbol, side, ordType string, size, price float64, tgtCcy string) (*models.OrderResult, error) {
	body := map[string]string{
		"instId":  instID(symbol),
		"tdMode":  "cash",
		"clOrdId": newClientOrderID(),
		"side":    side,
		"ordType": ordType,
		"sz":      strconv.FormatFloat(size, 'f', -1, 64),
	}
	if ordType == "limit" {
		body["px"] = strconv.FormatFloat(price, 'f', -1, 64)
	}
	if tgtCcy != "" {
		body["tgtCcy"] = tgtCcy
	}

	data, err := e.doRequest("POST", "/api/v5/trade/order", body, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("解析下单回执失败: %v (%s)", err, string(data))
	}
	if rows[0].SCode != "0" {
		return nil, &models.APIError{Code: rows[0].SCode, Msg: rows[0].SMsg}
	}

	result := &models.OrderResult{ID: rows[0].OrdID, Amount: size, Price: price}
	e.logger.Infof("订单已提交 symbol=%s side=%s type=%s sz=%.8f ordId=%s", symbol, side, ordType, size, result.ID)
	return result, nil
}

// CreateMarketBuy 按计价货币金额市价买入。
// 先按最新价把金额换算成基础货币数量，再按交易规则修正后下单。
func (e *OkxExchange) CreateMarketBuy(symbol string, quoteCost float64) (*models.OrderResult, error) {
	ticker, err := e.FetchTicker(symbol)
	if err != nil {
		return nil, err
	}
	if ticker.Last <= 0 {
		return nil, fmt.Errorf("无效的最新价: %f", ticker.Last)
	}
	baseAmount := e.normalizeAmount(symbol, quoteCost/ticker.Last)
	return e.placeOrder(symbol, "buy", "market", baseAmount, 0, "base_ccy")
}

func (e *OkxExchange) CreateMarketSell(symbol string, baseAmount float64) (*models.OrderResult, error) {
	return e.placeOrder(symbol, "sell", "market", e.normalizeAmount(symbol, baseAmount), 0, "base_ccy")
}

func (e *OkxExchange) CreateLimitBuy(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return e.placeOrder(symbol, "buy", "limit", e.normalizeAmount(symbol, baseAmount), e.normalizePrice(symbol, price), "")
}

func (e *OkxExchange) CreateLimitSell(symbol string, baseAmount, price float64) (*models.OrderResult, error) {
	return e.placeOrder(symbol, "sell", "limit", e.normalizeAmount(symbol, baseAmount), e.normalizePrice(symbol, price), "")
}

// FetchBalance 返回 资产->可用余额 的映射
func (e *OkxExchange) FetchBalance() (map[string]float64, error) {
	data, err := e.doRequest("GET", "/api/v5/account/balance", nil, true)
	if err != nil {
		return nil, fmt.Errorf("获取账户余额失败: %w", err)
	}

	var rows []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("解析余额数据失败: %w", err)
	}

	balances := make(map[string]float64)
	for _, row := range rows {
		for _, d := range row.Details {
			if v, err := strconv.ParseFloat(d.AvailBal, 64); err == nil {
				balances[d.Ccy] = v
			}
		}
	}
	return balances, nil
}

// FetchMyTrades 返回按时间升序排列的历史成交。OKX返回的是最新在前。
func (e *OkxExchange) FetchMyTrades(symbol string, since int64) ([]models.TradeRecord, error) {
	path := fmt.Sprintf("/api/v5/trade/fills?instType=SPOT&instId=%s&limit=100", instID(symbol))
	if since > 0 {
		path += fmt.Sprintf("&begin=%d", since)
	}

	data, err := e.doRequest("GET", path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("获取历史成交失败: %w", err)
	}

	var rows []struct {
		Side   string `json:"side"`
		FillPx string `json:"fillPx"`
		FillSz string `json:"fillSz"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("解析历史成交失败: %w", err)
	}

	trades := make([]models.TradeRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		price, errP := strconv.ParseFloat(rows[i].FillPx, 64)
		amount, errA := strconv.ParseFloat(rows[i].FillSz, 64)
		if errP != nil || errA != nil {
			continue
		}
		trades = append(trades, models.TradeRecord{Side: strings.ToLower(rows[i].Side), Price: price, Amount: amount})
	}
	return trades, nil
}

// StartTickerStream 订阅公共行情WebSocket，持续刷新本地报价缓存。
// 连接断开或读取出错时只记录日志，FetchTicker会自动回退到REST。
func (e *OkxExchange) StartTickerStream(symbol string) error {
	conn, _, err := websocket.DefaultDialer.Dial(okxPublicWSURL, nil)
	if err != nil {
		return fmt.Errorf("无法连接到行情WebSocket: %w", err)
	}
	e.wsConn = conn

	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "tickers", "instId": instID(symbol)},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("订阅行情频道失败: %w", err)
	}

	go e.tickerLoop(conn)
	go e.pingLoop(conn)
	e.logger.Infof("已订阅 %s 的行情WebSocket", instID(symbol))
	return nil
}

// tickerLoop 持续读取行情消息并更新缓存
func (e *OkxExchange) tickerLoop(conn *websocket.Conn) {
	for {
		select {
		case <-e.wsStop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			e.logger.Warnf("行情WebSocket读取失败，停止缓存更新: %v", err)
			return
		}
		if string(msg) == "pong" {
			continue
		}

		var event struct {
			Arg struct {
				Channel string `json:"channel"`
			} `json:"arg"`
			Data []struct {
				Last  string `json:"last"`
				BidPx string `json:"bidPx"`
				AskPx string `json:"askPx"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &event); err != nil || event.Arg.Channel != "tickers" || len(event.Data) == 0 {
			continue
		}

		last, _ := strconv.ParseFloat(event.Data[0].Last, 64)
		bid, _ := strconv.ParseFloat(event.Data[0].BidPx, 64)
		ask, _ := strconv.ParseFloat(event.Data[0].AskPx, 64)
		if last <= 0 {
			continue
		}
		if bid <= 0 {
			bid = last
		}
		if ask <= 0 {
			ask = last
		}

		e.tickerMu.Lock()
		e.wsTicker = models.Ticker{Last: last, Bid: bid, Ask: ask}
		e.wsTickerAt = time.Now().UnixMilli()
		e.tickerMu.Unlock()
	}
}

// pingLoop 定期发送ping保持连接存活
func (e *OkxExchange) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.wsStop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// Close 关闭WebSocket连接和后台任务
func (e *OkxExchange) Close() {
	close(e.wsStop)
	if e.wsConn != nil {
		e.wsConn.Close()
	}
}
