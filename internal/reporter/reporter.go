package reporter

import (
	"os"
	"time"

	"okx-spot-bot-go/internal/ledger"
	"okx-spot-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary 存储一次运行会话的汇总指标
type Summary struct {
	Symbol      string
	BaseAmount  float64
	AvgCost     float64
	BuyCount    int
	TotalTrades int
	BuyTrades   int
	SellTrades  int
	BuyVolume   float64 // 累计买入的计价货币金额
	SellVolume  float64 // 累计卖出的计价货币金额
	FirstTrade  time.Time
	LastTrade   time.Time
}

// PrintSummary 在退出时打印持仓与账本汇总表格。
// 账本读取失败时只打印持仓部分，不阻塞退出流程。
func PrintSummary(symbol string, state *models.PositionState, led *ledger.Ledger) {
	s := calculateSummary(symbol, state, led)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("会话汇总 %s", s.Symbol)
	t.AppendRows([]table.Row{
		{"当前持仓", s.BaseAmount},
		{"持仓均价", s.AvgCost},
		{"买入计数", s.BuyCount},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"账本成交总数", s.TotalTrades},
		{"买入笔数", s.BuyTrades},
		{"卖出笔数", s.SellTrades},
		{"累计买入金额", s.BuyVolume},
		{"累计卖出金额", s.SellVolume},
	})
	if !s.FirstTrade.IsZero() {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"首笔成交", s.FirstTrade.Format("2006-01-02 15:04:05")},
			{"末笔成交", s.LastTrade.Format("2006-01-02 15:04:05")},
		})
	}
	t.Render()
}

func calculateSummary(symbol string, state *models.PositionState, led *ledger.Ledger) *Summary {
	s := &Summary{
		Symbol:     symbol,
		BaseAmount: state.BaseAmount,
		AvgCost:    state.AvgCost,
		BuyCount:   state.BuyCount,
	}

	entries, err := led.Entries(symbol)
	if err != nil {
		return s
	}

	for _, e := range entries {
		s.TotalTrades++
		switch e.Side {
		case "buy":
			s.BuyTrades++
			s.BuyVolume += e.Amount * e.Price
		case "sell":
			s.SellTrades++
			s.SellVolume += e.Amount * e.Price
		}
	}
	if len(entries) > 0 {
		s.FirstTrade = time.UnixMilli(entries[0].Time)
		s.LastTrade = time.UnixMilli(entries[len(entries)-1].Time)
	}
	return s
}
