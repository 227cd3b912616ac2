package indicator

import (
	"testing"
	"time"

	"okx-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedsWithFirstValue(t *testing.T) {
	assert.Nil(t, EMA(nil, 12), "empty input should return nil")

	single := EMA([]float64{5.0}, 12)
	require.Len(t, single, 1)
	assert.Equal(t, 5.0, single[0], "a single value is its own EMA")

	// period=3 -> alpha=0.5, so the second value is the midpoint
	res := EMA([]float64{1.0, 2.0}, 3)
	require.Len(t, res, 2)
	assert.InDelta(t, 1.0, res[0], 1e-12)
	assert.InDelta(t, 1.5, res[1], 1e-12)
}

func TestEMAPeriodOneTracksInput(t *testing.T) {
	values := []float64{3.0, 7.0, 2.0, 9.0}
	res := EMA(values, 1)
	require.Len(t, res, len(values))
	for i := range values {
		assert.InDelta(t, values[i], res[i], 1e-12)
	}
}

func TestDetectGoldenCrossInsufficientData(t *testing.T) {
	assert.False(t, DetectGoldenCross(nil))
	assert.False(t, DetectGoldenCross([]float64{100.0}))
}

func TestDetectGoldenCrossNoCrossOnDecline(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100.0 - float64(i)*0.5
	}
	assert.False(t, DetectGoldenCross(closes), "a monotonic decline never produces a golden cross")
}

// A long decline followed by a sharp rebound must produce a golden cross at
// some point of the rebound. The exact bar depends on the EMA lag, so we scan
// the prefixes instead of pinning a single index.
func TestDetectGoldenCrossOnRebound(t *testing.T) {
	var closes []float64
	for i := 0; i < 50; i++ {
		closes = append(closes, 100.0-float64(i)*0.2)
	}
	for i := 0; i < 50; i++ {
		closes = append(closes, 90.0+float64(i)*0.4)
	}

	crossed := false
	for n := 2; n <= len(closes); n++ {
		if DetectGoldenCross(closes[:n]) {
			crossed = true
			break
		}
	}
	assert.True(t, crossed, "expected a golden cross somewhere on the rebound")
}

func TestPrevDayBaselineUsesPreviousUTCDay(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	prevDay := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)

	candles := []models.Candle{
		{Timestamp: prevDay.Add(1 * time.Hour).UnixMilli(), Close: 100.0},
		{Timestamp: prevDay.Add(2 * time.Hour).UnixMilli(), Close: 102.0},
		// today's candle must not contribute to the baseline
		{Timestamp: now.Add(-1 * time.Hour).UnixMilli(), Close: 999.0},
	}
	assert.InDelta(t, 101.0, PrevDayBaseline(candles, now), 1e-9)
}

func TestPrevDayBaselineFallsBackToLastCandles(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	// no candle falls on 2024-05-09, so the mean of the last candles is used
	candles := []models.Candle{
		{Timestamp: now.Add(-3 * time.Hour).UnixMilli(), Close: 10.0},
		{Timestamp: now.Add(-2 * time.Hour).UnixMilli(), Close: 20.0},
		{Timestamp: now.Add(-1 * time.Hour).UnixMilli(), Close: 30.0},
	}
	assert.InDelta(t, 20.0, PrevDayBaseline(candles, now), 1e-9)

	assert.Equal(t, 0.0, PrevDayBaseline(nil, now), "no data means no baseline")
}
