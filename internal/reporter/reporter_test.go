package reporter

import (
	"path/filepath"
	"testing"

	"okx-spot-bot-go/internal/ledger"
	"okx-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSummary(t *testing.T) {
	led, err := ledger.New(filepath.Join(t.TempDir(), "trades.csv"))
	require.NoError(t, err)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 1.0, 0, ""))
	require.NoError(t, led.Record("buy", "ETH/USDT", 90.0, 0.5, 0, ""))
	require.NoError(t, led.Record("sell", "ETH/USDT", 110.0, 0.5, 0, ""))
	require.NoError(t, led.Record("buy", "BTC/USDT", 50000.0, 1.0, 0, ""))

	state := &models.PositionState{BaseAmount: 1.0, AvgCost: 96.67, BuyCount: 2}
	s := calculateSummary("ETH/USDT", state, led)

	assert.Equal(t, 3, s.TotalTrades, "other symbols are excluded")
	assert.Equal(t, 2, s.BuyTrades)
	assert.Equal(t, 1, s.SellTrades)
	assert.InDelta(t, 145.0, s.BuyVolume, 1e-9)
	assert.InDelta(t, 55.0, s.SellVolume, 1e-9)
	assert.False(t, s.FirstTrade.IsZero())
	assert.False(t, s.FirstTrade.After(s.LastTrade))
	assert.InDelta(t, 1.0, s.BaseAmount, 1e-9)
}
