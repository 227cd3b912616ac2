package strategy

import "fmt"

// 本文件实现买卖意图到实际执行的转换。
//
// 已知限制(沿袭既有行为，刻意保留): 实盘限价/市价下单只确认订单被
// 交易所接受，不轮询成交状态，持仓簿记在下单回执后立即更新。

// latestPrice 返回最新成交价
func (e *Engine) latestPrice() (float64, error) {
	t, err := e.exchange.FetchTicker(e.symbol)
	if err != nil {
		return 0, fmt.Errorf("获取最新价失败: %w", err)
	}
	return t.Last, nil
}

// limitPrices 计算限价单价格: 买价=买一*(1-滑点)，卖价=卖一*(1+滑点)
func (e *Engine) limitPrices() (float64, float64, error) {
	t, err := e.exchange.FetchTicker(e.symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("获取行情失败: %w", err)
	}
	bid, ask := t.Bid, t.Ask
	if bid <= 0 {
		bid = t.Last
	}
	if ask <= 0 {
		ask = t.Last
	}
	bp := bid * (1.0 - e.cfg.LimitSlippagePct)
	sp := ask * (1.0 + e.cfg.LimitSlippagePct)
	return bp, sp, nil
}

// applyBuyFill 按成交价更新加权平均成本和持仓数量
func (e *Engine) applyBuyFill(price, amount float64) {
	total := e.state.BaseAmount + amount
	if total > 0 {
		e.state.AvgCost = (e.state.AvgCost*e.state.BaseAmount + price*amount) / total
	} else {
		e.state.AvgCost = price
	}
	e.state.BaseAmount = total
}

// BuyQuote 按计价货币金额买入 (martingale变体的买入路径)。
// 干跑模式下假定立即按报价全部成交; 实盘限价单只下单不更新状态。
func (e *Engine) BuyQuote(quoteCost float64) error {
	if e.cfg.OrderType == "limit" {
		bp, _, err := e.limitPrices()
		if err != nil {
			return err
		}
		baseAmount := quoteCost / bp

		if e.cfg.DryRun {
			e.applyBuyFill(bp, baseAmount)
			if err := e.saveState(); err != nil {
				return err
			}
			if err := e.ledger.Record("buy", e.symbol, bp, baseAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("BUY-LIMIT %s price=%.6f amount=%.8f pos=%.8f pnl=%.5f",
				e.symbol, bp, baseAmount, e.state.BaseAmount, e.PnLRatio(bp))
			return nil
		}

		o, err := e.exchange.CreateLimitBuy(e.symbol, baseAmount, bp)
		if err != nil {
			return err
		}
		e.logger.Infof("PLACE BUY-LIMIT %s price=%.6f amount=%.8f order_id=%s", e.symbol, bp, baseAmount, o.ID)
		return nil
	}

	if e.cfg.DryRun {
		lastPrice, err := e.latestPrice()
		if err != nil {
			return err
		}
		baseAmount := quoteCost / lastPrice
		e.applyBuyFill(lastPrice, baseAmount)
		if err := e.saveState(); err != nil {
			return err
		}
		if err := e.ledger.Record("buy", e.symbol, lastPrice, baseAmount, 0, ""); err != nil {
			return err
		}
		e.logger.Infof("BUY %s price=%.6f amount=%.8f pos=%.8f pnl=%.5f",
			e.symbol, lastPrice, baseAmount, e.state.BaseAmount, e.PnLRatio(lastPrice))
		return nil
	}

	o, err := e.exchange.CreateMarketBuy(e.symbol, quoteCost)
	if err != nil {
		return err
	}
	// 成交价用下单后重新获取的最新价近似
	lastPrice, err := e.latestPrice()
	if err != nil {
		return err
	}
	if o.Amount > 0 {
		e.applyBuyFill(lastPrice, o.Amount)
		if err := e.saveState(); err != nil {
			return err
		}
		if err := e.ledger.Record("buy", e.symbol, lastPrice, o.Amount, 0, o.ID); err != nil {
			return err
		}
	}
	e.logger.Infof("BUY %s price=%.6f amount=%.8f pos=%.8f pnl=%.5f",
		e.symbol, lastPrice, o.Amount, e.state.BaseAmount, e.PnLRatio(lastPrice))
	return nil
}

// BuyBase 按基础货币数量买入 (sigma变体的买入路径)。
// 实盘市价路径成交后不直接按回执更新，而是从交易所成交历史重建成本。
func (e *Engine) BuyBase(baseAmount float64) error {
	if baseAmount <= 0 {
		return nil
	}

	if e.cfg.OrderType == "limit" {
		bp, _, err := e.limitPrices()
		if err != nil {
			return err
		}

		if e.cfg.DryRun {
			e.applyBuyFill(bp, baseAmount)
			if err := e.saveState(); err != nil {
				return err
			}
			if err := e.ledger.Record("buy", e.symbol, bp, baseAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("BUY-LIMIT %s price=%.6f amount=%.8f pos=%.8f", e.symbol, bp, baseAmount, e.state.BaseAmount)
			return nil
		}

		o, err := e.exchange.CreateLimitBuy(e.symbol, baseAmount, bp)
		if err != nil {
			return err
		}
		e.logger.Infof("PLACE BUY-LIMIT %s price=%.6f amount=%.8f order_id=%s", e.symbol, bp, baseAmount, o.ID)
		return nil
	}

	lastPrice, err := e.latestPrice()
	if err != nil {
		return err
	}

	if e.cfg.DryRun {
		e.applyBuyFill(lastPrice, baseAmount)
		if err := e.saveState(); err != nil {
			return err
		}
		if err := e.ledger.Record("buy", e.symbol, lastPrice, baseAmount, 0, ""); err != nil {
			return err
		}
		e.logger.Infof("BUY %s price=%.6f amount=%.8f pos=%.8f", e.symbol, lastPrice, baseAmount, e.state.BaseAmount)
		return nil
	}

	o, err := e.exchange.CreateMarketBuy(e.symbol, baseAmount*lastPrice)
	if err != nil {
		return err
	}
	if o.Amount > 0 {
		if err := e.RebuildCostFromVenue(); err != nil {
			e.logger.Warnf("成交后重建成本失败: %v", err)
		}
		if err := e.ledger.Record("buy", e.symbol, lastPrice, o.Amount, 0, o.ID); err != nil {
			return err
		}
	}
	e.logger.Infof("BUY %s price=%.6f amount=%.8f pos=%.8f", e.symbol, lastPrice, o.Amount, e.state.BaseAmount)
	return nil
}

// SellAll 清仓并把快照归零
func (e *Engine) SellAll() error {
	lastPrice, err := e.latestPrice()
	if err != nil {
		return err
	}
	baseAmount := e.state.BaseAmount
	if baseAmount <= 0 {
		return nil
	}

	if e.cfg.OrderType == "limit" {
		_, sp, err := e.limitPrices()
		if err != nil {
			return err
		}
		if e.cfg.DryRun {
			realized := baseAmount * (sp - e.state.AvgCost)
			if err := e.ledger.Record("sell", e.symbol, sp, baseAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("SELL-LIMIT %s price=%.6f amount=%.8f realized=%.6f", e.symbol, sp, baseAmount, realized)
		} else {
			o, err := e.exchange.CreateLimitSell(e.symbol, baseAmount, sp)
			if err != nil {
				return err
			}
			e.logger.Infof("PLACE SELL-LIMIT %s price=%.6f amount=%.8f order_id=%s", e.symbol, sp, baseAmount, o.ID)
		}
	} else {
		if e.cfg.DryRun {
			realized := baseAmount * (lastPrice - e.state.AvgCost)
			if err := e.ledger.Record("sell", e.symbol, lastPrice, baseAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, baseAmount, realized)
		} else {
			o, err := e.exchange.CreateMarketSell(e.symbol, baseAmount)
			if err != nil {
				return err
			}
			realized := baseAmount * (lastPrice - e.state.AvgCost)
			if err := e.ledger.Record("sell", e.symbol, lastPrice, baseAmount, 0, o.ID); err != nil {
				return err
			}
			e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, baseAmount, realized)
		}
	}

	e.state.BaseAmount = 0
	e.state.AvgCost = 0
	return e.saveState()
}

// SellKeepQuote 卖出仓位但保留价值约 remainQuote 计价货币的底仓。
// 与SellAll不同，成本均价保持不变，便于后续继续以原成本口径计算盈亏。
func (e *Engine) SellKeepQuote(remainQuote float64) error {
	lastPrice, err := e.latestPrice()
	if err != nil {
		return err
	}
	baseAmount := e.state.BaseAmount
	if baseAmount <= 0 {
		return nil
	}

	if e.cfg.OrderType == "limit" {
		_, sp, err := e.limitPrices()
		if err != nil {
			return err
		}
		baseKeep := remainQuote / sp
		if baseAmount <= baseKeep {
			return nil
		}
		sellAmount := baseAmount - baseKeep

		if e.cfg.DryRun {
			realized := sellAmount * (sp - e.state.AvgCost)
			if err := e.ledger.Record("sell", e.symbol, sp, sellAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("SELL-LIMIT %s price=%.6f amount=%.8f realized=%.6f", e.symbol, sp, sellAmount, realized)
		} else {
			o, err := e.exchange.CreateLimitSell(e.symbol, sellAmount, sp)
			if err != nil {
				return err
			}
			e.logger.Infof("PLACE SELL-LIMIT %s price=%.6f amount=%.8f order_id=%s", e.symbol, sp, sellAmount, o.ID)
		}
		e.state.BaseAmount = baseKeep
		return e.saveState()
	}

	baseKeep := remainQuote / lastPrice
	if baseAmount <= baseKeep {
		return nil
	}
	sellAmount := baseAmount - baseKeep

	if e.cfg.DryRun {
		realized := sellAmount * (lastPrice - e.state.AvgCost)
		if err := e.ledger.Record("sell", e.symbol, lastPrice, sellAmount, 0, ""); err != nil {
			return err
		}
		e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, sellAmount, realized)
	} else {
		o, err := e.exchange.CreateMarketSell(e.symbol, sellAmount)
		if err != nil {
			return err
		}
		realized := sellAmount * (lastPrice - e.state.AvgCost)
		if err := e.ledger.Record("sell", e.symbol, lastPrice, sellAmount, 0, o.ID); err != nil {
			return err
		}
		e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, sellAmount, realized)
	}
	e.state.BaseAmount = baseKeep
	return e.saveState()
}

// SellKeepBase 卖出超过底仓数量的部分，保留 baseKeep 数量的基础货币。
// 持仓不足底仓时不动作。
func (e *Engine) SellKeepBase(baseKeep float64) error {
	baseAmount := e.state.BaseAmount
	if baseAmount <= baseKeep {
		return nil
	}
	sellAmount := baseAmount - baseKeep

	lastPrice, err := e.latestPrice()
	if err != nil {
		return err
	}

	realizedAt := func(price float64) float64 {
		if e.state.AvgCost <= 0 {
			return 0
		}
		return sellAmount * (price - e.state.AvgCost)
	}

	if e.cfg.OrderType == "limit" {
		_, sp, err := e.limitPrices()
		if err != nil {
			return err
		}
		if e.cfg.DryRun {
			if err := e.ledger.Record("sell", e.symbol, sp, sellAmount, 0, ""); err != nil {
				return err
			}
			e.logger.Infof("SELL-LIMIT %s price=%.6f amount=%.8f realized=%.6f", e.symbol, sp, sellAmount, realizedAt(sp))
		} else {
			o, err := e.exchange.CreateLimitSell(e.symbol, sellAmount, sp)
			if err != nil {
				return err
			}
			e.logger.Infof("PLACE SELL-LIMIT %s price=%.6f amount=%.8f order_id=%s", e.symbol, sp, sellAmount, o.ID)
		}
		e.state.BaseAmount = baseKeep
		return e.saveState()
	}

	if e.cfg.DryRun {
		if err := e.ledger.Record("sell", e.symbol, lastPrice, sellAmount, 0, ""); err != nil {
			return err
		}
		e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, sellAmount, realizedAt(lastPrice))
	} else {
		o, err := e.exchange.CreateMarketSell(e.symbol, sellAmount)
		if err != nil {
			return err
		}
		if err := e.ledger.Record("sell", e.symbol, lastPrice, sellAmount, 0, o.ID); err != nil {
			return err
		}
		e.logger.Infof("SELL %s price=%.6f amount=%.8f realized=%.6f", e.symbol, lastPrice, sellAmount, realizedAt(lastPrice))
	}
	e.state.BaseAmount = baseKeep
	return e.saveState()
}
