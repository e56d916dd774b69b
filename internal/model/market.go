// Package model defines the shared data types for the trading simulator:
// price series, market snapshots, decisions, trades, positions, and the
// portfolio view.
package model

import (
	"encoding/json"
	"time"
)

// PricePoint is a single OHLCV sample. Open may equal Close when the
// market source only provides spot prices.
type PricePoint struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketSnapshot is the per-pair view returned by the market-data source
// for one cycle: latest quote, 24h stats, and enough history for the
// indicator windows.
type MarketSnapshot struct {
	Pair      string       `json:"pair"`
	Price     float64      `json:"price"`
	High24h   float64      `json:"high_24h"`
	Low24h    float64      `json:"low_24h"`
	Volume24h float64      `json:"volume_24h"`
	Change24h float64      `json:"change_24h"` // percent
	FetchedAt time.Time    `json:"fetched_at"`
	History   []PricePoint `json:"history,omitempty"` // ascending by TS
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (m *MarketSnapshot) JSON() []byte {
	b, _ := json.Marshal(m)
	return b
}

// SortedAscending reports whether the history is strictly ascending by
// timestamp with no duplicates.
func SortedAscending(points []PricePoint) bool {
	for i := 1; i < len(points); i++ {
		if !points[i].TS.After(points[i-1].TS) {
			return false
		}
	}
	return true
}
