package model

import "fmt"

// Action is the verdict returned by the decision source.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// RiskLevel classifies market conditions for a potential trade.
// It is used for logging and telemetry, not gating.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// Decision is the structured verdict from the decision source.
// The core treats it as read-only input.
type Decision struct {
	Pair        string    `json:"pair"`
	Action      Action    `json:"action"`
	Confidence  float64   `json:"confidence"` // [0,1]
	RiskLevel   RiskLevel `json:"risk_level"`
	Reasoning   string    `json:"reasoning"`
	KeyFactors  []string  `json:"key_factors,omitempty"`
	PriceTarget float64   `json:"price_target,omitempty"` // 0 = none
}

// Validate checks the decision against the schema the core expects.
// A decision failing validation is treated as DecisionUnavailable.
func (d *Decision) Validate() error {
	switch d.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("invalid action %q", d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", d.Confidence)
	}
	switch d.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskExtreme, "":
	default:
		return fmt.Errorf("invalid risk level %q", d.RiskLevel)
	}
	return nil
}
