package exchange

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"okx-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOkx(t *testing.T, handler http.HandlerFunc) (*OkxExchange, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ex, err := NewOkxExchange("key", "secret", "pass", false, 2000, "", zap.NewNop().Sugar())
	require.NoError(t, err)
	ex.baseURL = srv.URL
	return ex, srv
}

func TestInstID(t *testing.T) {
	assert.Equal(t, "ETH-USDT", instID("ETH/USDT"))
	assert.Equal(t, "BTC-USDT", instID("BTC-USDT"))
}

func TestOkxBar(t *testing.T) {
	assert.Equal(t, "5m", okxBar("5m"))
	assert.Equal(t, "1H", okxBar("1h"))
	assert.Equal(t, "1D", okxBar("1d"))
}

func TestNormalizeAmountAppliesLotRules(t *testing.T) {
	ex := &OkxExchange{instruments: map[string]okxInstrument{
		"ETH-USDT": {InstID: "ETH-USDT", LotSz: "0.001", MinSz: "0.01", TickSz: "0.01"},
	}}

	// below minSz the amount is lifted to the minimum first
	assert.InDelta(t, 0.01, ex.normalizeAmount("ETH/USDT", 0.005), 1e-12)
	// then floored to the lot step
	assert.InDelta(t, 1.234, ex.normalizeAmount("ETH/USDT", 1.23456), 1e-12)
	// unknown symbols pass through untouched
	assert.InDelta(t, 1.23456, ex.normalizeAmount("XRP/USDT", 1.23456), 1e-12)

	assert.InDelta(t, 1999.99, ex.normalizePrice("ETH/USDT", 1999.999), 1e-9)
}

func TestFetchOHLCVReversesNewestFirst(t *testing.T) {
	ex, _ := newTestOkx(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/candles", r.URL.Path)
		assert.Equal(t, "ETH-USDT", r.URL.Query().Get("instId"))
		// OKX returns the newest candle first
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["3000","103","104","102","103.5","1"],
			["2000","102","103","101","102.5","1"],
			["1000","101","102","100","101.5","1"]
		]}`))
	})

	candles, err := ex.FetchOHLCV("ETH/USDT", "5m", 0, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, int64(1000), candles[0].Timestamp)
	assert.Equal(t, int64(3000), candles[2].Timestamp)
	assert.InDelta(t, 103.5, candles[2].Close, 1e-9)
}

func TestFetchTickerPrefersFreshWSCache(t *testing.T) {
	called := false
	ex, _ := newTestOkx(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"code":"0","msg":"","data":[{"last":"99","bidPx":"98.9","askPx":"99.1"}]}`))
	})

	ex.wsTicker = models.Ticker{Last: 100.0, Bid: 99.9, Ask: 100.1}
	ex.wsTickerAt = time.Now().UnixMilli()

	ticker, err := ex.FetchTicker("ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, ticker.Last, 1e-9)
	assert.False(t, called, "a fresh cache entry must not trigger a REST call")

	// a stale cache falls back to REST
	ex.wsTickerAt = time.Now().UnixMilli() - tickerAgeMaxMs - 1
	ticker, err = ex.FetchTicker("ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 99.0, ticker.Last, 1e-9)
	assert.True(t, called)
}

func TestFetchTickerConcurrentWithCacheUpdates(t *testing.T) {
	ex, _ := newTestOkx(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"last":"99","bidPx":"98.9","askPx":"99.1"}]}`))
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// simulates tickerLoop refreshing the cache while readers run
		for i := 0; i < 200; i++ {
			ex.tickerMu.Lock()
			ex.wsTicker = models.Ticker{Last: 100.0 + float64(i), Bid: 100.0, Ask: 100.1}
			ex.wsTickerAt = time.Now().UnixMilli()
			ex.tickerMu.Unlock()
		}
	}()

	for i := 0; i < 200; i++ {
		ticker, err := ex.FetchTicker("ETH/USDT")
		require.NoError(t, err)
		assert.Greater(t, ticker.Last, 0.0)
	}
	wg.Wait()
}

func TestDoRequestSurfacesAPIError(t *testing.T) {
	ex, _ := newTestOkx(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51000","msg":"Parameter error","data":[]}`))
	})

	_, err := ex.FetchOHLCV("ETH/USDT", "5m", 0, 1)
	require.Error(t, err)

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "51000", apiErr.Code)
}

func TestPlaceOrderRejectsFailedSCode(t *testing.T) {
	ex, _ := newTestOkx(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v5/market/ticker" {
			w.Write([]byte(`{"code":"0","msg":"","data":[{"last":"100","bidPx":"99.9","askPx":"100.1"}]}`))
			return
		}
		assert.Equal(t, "/api/v5/trade/order", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`))
	})

	_, err := ex.CreateMarketBuy("ETH/USDT", 100.0)
	require.Error(t, err)

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "51008", apiErr.Code)
}

func TestNewClientOrderIDAlphanumeric(t *testing.T) {
	id := newClientOrderID()
	assert.NotEmpty(t, id)
	for _, r := range id {
		ok := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		assert.True(t, ok, "clOrdId must stay alphanumeric, got %q", id)
	}
}
