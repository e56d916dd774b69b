// Package ledger is the single authority for balance mutation in the
// simulated portfolio. Every BUY/SELL runs under one mutex, so two
// pairs can never race on the USD balance, and each execution appends
// exactly one immutable trade record.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptobot/internal/model"
)

var (
	// ErrInsufficientFunds guards the USD balance invariant. With
	// correct sizing it should be unreachable.
	ErrInsufficientFunds = errors.New("ledger: insufficient USD balance")
	// ErrInsufficientHoldings guards the crypto balance invariant.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
	// ErrInvalidRequest rejects non-positive prices or fractions.
	ErrInvalidRequest = errors.New("ledger: invalid execution request")
)

// minNotionalUSD is the smallest trade worth recording.
const minNotionalUSD = 1.0

// Request describes one execution the orchestrator wants applied.
type Request struct {
	Pair       string
	Side       model.TradeSide
	Fraction   float64 // sized fraction of balance/holdings; ignored on forced sells
	Price      float64
	Reasoning  string
	Confidence float64
	Trigger    model.Trigger
}

type costEntry struct {
	Qty      float64
	AvgPrice float64
}

// Ledger owns the USD balance, per-asset holdings, and the append-only
// trade log.
type Ledger struct {
	mu       sync.Mutex
	usd      float64
	holdings map[string]float64
	trades   []model.Trade

	// Cost basis per pair for realized P/L on sells.
	costBasis map[string]costEntry
	// Realized P/L per sell trade ID; folded into Stats together
	// with the trade log.
	realized map[string]float64

	now   func() time.Time
	newID func() string
}

// New creates a ledger with the given starting USD balance.
func New(initialUSD float64) *Ledger {
	return &Ledger{
		usd:       initialUSD,
		holdings:  make(map[string]float64),
		costBasis: make(map[string]costEntry),
		realized:  make(map[string]float64),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// SetClock overrides the time source. Test hook.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Seed credits a crypto balance directly, bypassing the trade log.
// Intended for tests and manually seeded portfolios.
func (l *Ledger) Seed(pair string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[pair] += amount
}

// Execute applies one trade. On success the balances are updated and
// the returned trade has been appended to the log; on error nothing
// changed.
func (l *Ledger) Execute(req Request) (model.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Price <= 0 {
		return model.Trade{}, ErrInvalidRequest
	}

	switch req.Side {
	case model.SideBuy:
		return l.executeBuy(req)
	case model.SideSell:
		return l.executeSell(req)
	default:
		return model.Trade{}, ErrInvalidRequest
	}
}

func (l *Ledger) executeBuy(req Request) (model.Trade, error) {
	if req.Fraction <= 0 || req.Fraction > 1 {
		return model.Trade{}, ErrInvalidRequest
	}

	usdSpent := l.usd * req.Fraction
	if usdSpent < minNotionalUSD || usdSpent > l.usd {
		return model.Trade{}, ErrInsufficientFunds
	}
	amount := usdSpent / req.Price

	l.usd -= usdSpent
	l.holdings[req.Pair] += amount

	entry := l.costBasis[req.Pair]
	total := entry.Qty + amount
	if total > 0 {
		entry.AvgPrice = (entry.AvgPrice*entry.Qty + req.Price*amount) / total
	}
	entry.Qty = total
	l.costBasis[req.Pair] = entry

	return l.record(req, model.SideBuy, amount, usdSpent), nil
}

func (l *Ledger) executeSell(req Request) (model.Trade, error) {
	held := l.holdings[req.Pair]

	var amount float64
	if req.Trigger == model.TriggerStopLoss || req.Trigger == model.TriggerTakeProfit {
		// Forced exits always liquidate the full remaining quantity.
		amount = held
	} else {
		if req.Fraction <= 0 || req.Fraction > 1 {
			return model.Trade{}, ErrInvalidRequest
		}
		amount = held * req.Fraction
	}

	if amount <= 0 || amount > held {
		return model.Trade{}, ErrInsufficientHoldings
	}
	usdReceived := amount * req.Price

	l.holdings[req.Pair] = held - amount
	if l.holdings[req.Pair] <= 1e-12 {
		l.holdings[req.Pair] = 0
	}
	l.usd += usdReceived

	trade := l.record(req, model.SideSell, amount, usdReceived)

	entry := l.costBasis[req.Pair]
	lot := amount
	if lot > entry.Qty {
		lot = entry.Qty
	}
	if lot > 0 {
		l.realized[trade.ID] = (req.Price - entry.AvgPrice) * lot
		entry.Qty -= lot
		if entry.Qty <= 1e-12 {
			entry = costEntry{}
		}
		l.costBasis[req.Pair] = entry
	}

	return trade, nil
}

// record appends the immutable trade. Caller holds l.mu.
func (l *Ledger) record(req Request, side model.TradeSide, amount, usdValue float64) model.Trade {
	trade := model.Trade{
		ID:         l.newID(),
		Pair:       req.Pair,
		Side:       side,
		Price:      req.Price,
		Amount:     amount,
		USDValue:   usdValue,
		Timestamp:  l.now(),
		Reasoning:  req.Reasoning,
		Confidence: req.Confidence,
		Trigger:    req.Trigger,
	}
	l.trades = append(l.trades, trade)
	return trade
}

// USDBalance returns the current USD balance.
func (l *Ledger) USDBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usd
}

// Holding returns the crypto balance for a pair.
func (l *Ledger) Holding(pair string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings[pair]
}

// Trades returns the newest trades first, at most limit (0 = all).
func (l *Ledger) Trades(limit int) []model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.trades[i])
	}
	return out
}

// Snapshot returns the portfolio valued at the given latest prices.
// Pairs without a price contribute only their holdings entry.
func (l *Ledger) Snapshot(prices map[string]float64) model.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[string]float64, len(l.holdings))
	total := l.usd
	for pair, amount := range l.holdings {
		balances[pair] = amount
		if price, ok := prices[pair]; ok {
			total += amount * price
		}
	}
	return model.Portfolio{
		USDBalance:     l.usd,
		CryptoBalances: balances,
		TotalValueUSD:  total,
		LastUpdated:    l.now(),
	}
}
