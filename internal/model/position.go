package model

import "time"

// PositionStatus marks whether a position still has open exposure.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is an open exposure on one pair. At most one OPEN position
// exists per pair at any time. Stop-loss and take-profit prices are
// fixed when the position opens and are not recomputed later.
type Position struct {
	Pair            string         `json:"pair"`
	EntryPrice      float64        `json:"entry_price"`
	Quantity        float64        `json:"quantity"`
	OpenedAt        time.Time      `json:"opened_at"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	Status          PositionStatus `json:"status"`
}

// UnrealizedPnL computes the open profit/loss at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity
}
