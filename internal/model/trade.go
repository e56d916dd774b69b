package model

import (
	"encoding/json"
	"time"
)

// TradeSide is the direction of an executed trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trigger records why a trade executed.
type Trigger string

const (
	TriggerDecision   Trigger = "DECISION"
	TriggerStopLoss   Trigger = "STOP_LOSS"
	TriggerTakeProfit Trigger = "TAKE_PROFIT"
)

// Trade is an immutable execution record. The ledger's trade log is
// append-only and forms the audit trail.
type Trade struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	Side       TradeSide `json:"side"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`    // crypto quantity
	USDValue   float64   `json:"usd_value"` // USD moved by this trade
	Timestamp  time.Time `json:"timestamp"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidence"`
	Trigger    Trigger   `json:"trigger"`
}

// JSON returns the JSON-encoded trade (ignoring errors for hot-path usage).
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
