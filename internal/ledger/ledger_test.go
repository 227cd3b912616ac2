package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	led, err := New(filepath.Join(t.TempDir(), "trades.csv"))
	require.NoError(t, err)
	return led
}

func TestNewWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	_, err := New(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,side,symbol,price,amount,fee,order_id", strings.TrimSpace(string(data)))

	// reopening an existing ledger must not add a second header
	_, err = New(path)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "time,side"))
}

// Sells must not reduce the accumulated buy cost: after buying 1.0 @ 100,
// selling 0.4 @ 110 and buying 0.4 @ 90 the net amount is back to 1.0 and the
// average cost is (1.0*100 + 0.4*90) / 1.0 = 136.
func TestRebuildPositionSellsKeepBuyCost(t *testing.T) {
	led := newTestLedger(t)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 1.0, 0, ""))
	require.NoError(t, led.Record("sell", "ETH/USDT", 110.0, 0.4, 0, ""))
	require.NoError(t, led.Record("buy", "ETH/USDT", 90.0, 0.4, 0, ""))

	avg, amt, err := led.RebuildPosition("ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, amt, 1e-9)
	assert.InDelta(t, 136.0, avg, 1e-9)
}

func TestRebuildPositionFiltersBySymbol(t *testing.T) {
	led := newTestLedger(t)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 2.0, 0, ""))
	require.NoError(t, led.Record("buy", "BTC/USDT", 50000.0, 1.0, 0, ""))

	avg, amt, err := led.RebuildPosition("ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, amt, 1e-9)
	assert.InDelta(t, 100.0, avg, 1e-9)
}

func TestRebuildPositionFlatOrNegativeReturnsZero(t *testing.T) {
	led := newTestLedger(t)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 1.0, 0, ""))
	require.NoError(t, led.Record("sell", "ETH/USDT", 110.0, 1.0, 0, ""))

	avg, amt, err := led.RebuildPosition("ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
	assert.Equal(t, 0.0, amt)
}

func TestRebuildPositionMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	led, err := New(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	avg, amt, err := led.RebuildPosition("ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
	assert.Equal(t, 0.0, amt)
}

func TestRebuildPositionSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	led, err := New(path)
	require.NoError(t, err)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 1.0, 0, ""))

	// a truncated row and one with an unparseable price
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("123,buy,ETH/USDT\n123,buy,ETH/USDT,not-a-price,1.0,0,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	avg, amt, err := led.RebuildPosition("ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, amt, 1e-9)
	assert.InDelta(t, 100.0, avg, 1e-9)
}

func TestEntriesReturnsParsedRowsOldestFirst(t *testing.T) {
	led := newTestLedger(t)

	require.NoError(t, led.Record("buy", "ETH/USDT", 100.0, 1.0, 0.1, "o1"))
	require.NoError(t, led.Record("sell", "ETH/USDT", 110.0, 0.5, 0.05, "o2"))

	entries, err := led.Entries("ETH/USDT")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "buy", entries[0].Side)
	assert.InDelta(t, 100.0, entries[0].Price, 1e-9)
	assert.Equal(t, "o1", entries[0].OrderID)
	assert.Equal(t, "sell", entries[1].Side)
	assert.InDelta(t, 0.5, entries[1].Amount, 1e-9)
	assert.LessOrEqual(t, entries[0].Time, entries[1].Time)
}
