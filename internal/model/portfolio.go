package model

import "time"

// Portfolio is a point-in-time view of the simulated holdings. The
// ledger is the single authority for the balances behind it; this
// struct is a read-only snapshot handed to consumers.
type Portfolio struct {
	USDBalance     float64            `json:"usd_balance"`
	CryptoBalances map[string]float64 `json:"crypto_balances"`
	TotalValueUSD  float64            `json:"total_value_usd"`
	LastUpdated    time.Time          `json:"last_updated"`
}
