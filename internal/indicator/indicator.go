package indicator

import (
	"time"

	"okx-spot-bot-go/internal/models"
)

// MACD参数沿用经典的12/26/9组合
const (
	fastPeriod   = 12
	slowPeriod   = 26
	signalPeriod = 9
)

// EMA 计算指数移动平均序列。
// 递推约定: 以首个元素作为种子，之后 res[i] = alpha*x[i] + (1-alpha)*res[i-1]，
// alpha = 2/(period+1)。序列为空时返回nil。
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	res := make([]float64, len(values))
	res[0] = values[0]
	for i := 1; i < len(values); i++ {
		res[i] = alpha*values[i] + (1-alpha)*res[i-1]
	}
	return res
}

// DetectGoldenCross 判断收盘价序列是否在最近两个采样点之间出现金叉:
// 震荡线(快慢EMA之差)在倒数第二个点不高于信号线，且在最后一个点严格高于信号线。
// 数据不足两个点时返回false，不报错。
func DetectGoldenCross(closes []float64) bool {
	if len(closes) < 2 {
		return false
	}
	emaFast := EMA(closes, fastPeriod)
	emaSlow := EMA(closes, slowPeriod)
	osc := make([]float64, len(closes))
	for i := range closes {
		osc[i] = emaFast[i] - emaSlow[i]
	}
	signal := EMA(osc, signalPeriod)

	n := len(osc)
	return osc[n-2] <= signal[n-2] && osc[n-1] > signal[n-1]
}

// PrevDayBaseline 计算前一UTC日1小时K线收盘价的均值，作为入场基准线。
// 如果K线中没有落在前一日的数据，则退化为最后24根的均值; 完全无数据时返回0。
func PrevDayBaseline(candles []models.Candle, now time.Time) float64 {
	prevDay := now.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	var closes []float64
	for _, c := range candles {
		ts := time.UnixMilli(c.Timestamp).UTC()
		if ts.Truncate(24 * time.Hour).Equal(prevDay) {
			closes = append(closes, c.Close)
		}
	}
	if len(closes) == 0 {
		start := len(candles) - 24
		if start < 0 {
			start = 0
		}
		for _, c := range candles[start:] {
			closes = append(closes, c.Close)
		}
	}
	if len(closes) == 0 {
		return 0
	}

	var sum float64
	for _, v := range closes {
		sum += v
	}
	return sum / float64(len(closes))
}
