package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinanceSymbol(t *testing.T) {
	assert.Equal(t, "ETHUSDT", binanceSymbol("ETH/USDT"))
	assert.Equal(t, "BTCUSDT", binanceSymbol("BTCUSDT"))
}

func TestBinanceNormalizeAmountAppliesFilters(t *testing.T) {
	ex := &BinanceExchange{minQty: 0.001, stepSize: 0.001, minNotional: 10.0}

	// below minQty the amount is lifted to the minimum
	assert.InDelta(t, 0.001, ex.normalizeAmount(0.0005, 0), 1e-12)
	// notional below the floor is lifted to minNotional/price
	assert.InDelta(t, 0.1, ex.normalizeAmount(0.002, 100.0), 1e-12)
	// a healthy order passes through, floored to the step
	assert.InDelta(t, 0.5, ex.normalizeAmount(0.5, 100.0), 1e-12)
	assert.InDelta(t, 1.234, ex.normalizeAmount(1.23456, 100.0), 1e-12)
	// unknown price skips the notional check
	assert.InDelta(t, 0.002, ex.normalizeAmount(0.002, 0), 1e-12)
}

func TestBinanceNormalizeAmountWithoutRules(t *testing.T) {
	ex := &BinanceExchange{}
	assert.InDelta(t, 0.12345, ex.normalizeAmount(0.12345, 100.0), 1e-12)
}
