package models

// PositionState 定义了需要持久化的持仓快照。
// 每个交易对只有一份实例，由策略引擎独占读写。
type PositionState struct {
	BaseAmount float64 `json:"base_amount"` // 当前持有的基础货币数量，永不为负
	AvgCost    float64 `json:"avg_cost"`    // 持仓的加权平均成本价; 空仓时必须为0
	LastBuyMs  int64   `json:"last_buy_ms"` // 上次买入动作的时间戳(毫秒)，用于冷却判定
	BuyCount   int     `json:"buy_count"`   // 自上次清零以来的买入次数，用于最大加仓限制
}

// Reset 将快照清零回初始状态
func (s *PositionState) Reset() {
	s.BaseAmount = 0
	s.AvgCost = 0
	s.LastBuyMs = 0
	s.BuyCount = 0
}

// HasPosition 判断当前是否持有仓位
func (s *PositionState) HasPosition() bool {
	return s.BaseAmount > 0
}
