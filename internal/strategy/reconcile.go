package strategy

import (
	"fmt"
	"math"

	"okx-spot-bot-go/internal/exchange"
)

// roundBalance 将交易所余额收敛到3位小数，忽略粉尘级差异
func roundBalance(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Bootstrap 在启动时解析权威持仓状态。优先级自上而下，命中即返回:
//  1. 配置了状态重置: 清零并持久化;
//  2. 干跑模式: 仅在快照不一致(空仓但残留成本价)时用账本重建;
//  3. 实盘模式: 以交易所余额为准，成本价缺失时依次用交易所成交历史、
//     本地账本重建。
//
// 任何数据源失败都返回错误且不改动已有状态，调用方按尽力而为处理。
func (e *Engine) Bootstrap() error {
	if e.cfg.ResetStateOnStart {
		e.state.Reset()
		return e.saveState()
	}

	if e.cfg.DryRun {
		if e.state.BaseAmount <= 0 && e.state.AvgCost != 0 {
			avg, amt, err := e.ledger.RebuildPosition(e.symbol)
			if err != nil {
				return fmt.Errorf("账本重建失败: %w", err)
			}
			if amt <= 0 {
				e.state.AvgCost = 0
			} else {
				e.state.AvgCost = avg
				e.state.BaseAmount = amt
			}
			return e.saveState()
		}
		return nil
	}

	// 实盘: 余额是数量的权威来源
	balances, err := e.exchange.FetchBalance()
	if err != nil {
		return fmt.Errorf("获取余额失败: %w", err)
	}
	amt := roundBalance(balances[exchange.BaseAsset(e.symbol)])
	e.state.BaseAmount = amt

	if amt <= 0 {
		if e.state.AvgCost != 0 {
			avg, ledgerAmt, err := e.ledger.RebuildPosition(e.symbol)
			if err != nil {
				return fmt.Errorf("账本重建失败: %w", err)
			}
			if ledgerAmt <= 0 {
				e.state.AvgCost = 0
			} else {
				e.state.AvgCost = avg
				e.state.BaseAmount = ledgerAmt
			}
			return e.saveState()
		}
		return nil
	}

	if e.state.AvgCost <= 0 {
		avg, net, err := e.rebuildFromVenueTrades()
		if err != nil {
			return err
		}
		if net > 0 {
			e.state.AvgCost = avg
			e.state.BaseAmount = net
			return e.saveState()
		}
		ledgerAvg, ledgerAmt, err := e.ledger.RebuildPosition(e.symbol)
		if err != nil {
			return fmt.Errorf("账本重建失败: %w", err)
		}
		if ledgerAmt > 0 {
			e.state.AvgCost = ledgerAvg
			e.state.BaseAmount = ledgerAmt
			return e.saveState()
		}
	}
	return nil
}

// RefreshFromBalance 在每个周期开始时用交易所余额刷新持仓数量。
// 干跑模式下为空操作。失败时不改动状态，由调用方决定是否中断本周期。
func (e *Engine) RefreshFromBalance() error {
	if e.cfg.DryRun {
		return nil
	}

	balances, err := e.exchange.FetchBalance()
	if err != nil {
		return fmt.Errorf("获取余额失败: %w", err)
	}
	e.state.BaseAmount = roundBalance(balances[exchange.BaseAsset(e.symbol)])

	if e.refreshCostBasis {
		e.state.AvgCost = e.openAvgCost()
	}

	// 空仓却残留成本价属于陈旧状态，清理后立即落盘
	if e.state.BaseAmount <= 0 && e.state.AvgCost > 0 {
		e.state.AvgCost = 0
		return e.saveState()
	}
	return nil
}

// rebuildFromVenueTrades 按账本重建的同一规则从交易所成交历史计算
// (均价, 净数量): 卖出不扣减买入成本累计。
func (e *Engine) rebuildFromVenueTrades() (float64, float64, error) {
	trades, err := e.exchange.FetchMyTrades(e.symbol, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("获取成交历史失败: %w", err)
	}

	var buyAmt, buyCost, sellAmt float64
	for _, t := range trades {
		switch t.Side {
		case "buy":
			buyAmt += t.Amount
			buyCost += t.Amount * t.Price
		case "sell":
			sellAmt += t.Amount
		}
	}

	net := buyAmt - sellAmt
	if net > 0 {
		return buyCost / net, net, nil
	}
	return 0, 0, nil
}

// openAvgCost 返回当前持仓的开仓均价。
// 干跑模式只看账本; 实盘优先交易所成交历史，失败或无净持仓时回退账本。
// 所有来源都不可用时返回0。
func (e *Engine) openAvgCost() float64 {
	if e.cfg.DryRun {
		avg, amt, err := e.ledger.RebuildPosition(e.symbol)
		if err != nil || amt <= 0 {
			return 0
		}
		return avg
	}

	avg, net, err := e.rebuildFromVenueTrades()
	if err == nil && net > 0 {
		return avg
	}
	ledgerAvg, ledgerAmt, err := e.ledger.RebuildPosition(e.symbol)
	if err != nil || ledgerAmt <= 0 {
		return 0
	}
	return ledgerAvg
}

// RebuildCostFromVenue 实盘市价买入成交后，从交易所成交历史重建
// (均价, 数量) 并落盘; 交易所无净持仓时回退账本。
func (e *Engine) RebuildCostFromVenue() error {
	avg, net, err := e.rebuildFromVenueTrades()
	if err != nil {
		return err
	}
	if net > 0 {
		e.state.AvgCost = avg
		e.state.BaseAmount = net
		return e.saveState()
	}
	ledgerAvg, ledgerAmt, err := e.ledger.RebuildPosition(e.symbol)
	if err != nil {
		return err
	}
	if ledgerAmt > 0 {
		e.state.AvgCost = ledgerAvg
		e.state.BaseAmount = ledgerAmt
		return e.saveState()
	}
	return nil
}
