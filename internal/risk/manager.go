// Package risk gates trades and owns per-pair exposure state: the open
// position, cooldown timer, and daily trade counter.
//
// Policy notes (pinned by the test suite):
//   - Forced stop-loss/take-profit exits bypass the cooldown and the
//     daily cap and are not counted toward it. They do update the
//     cooldown timer so a re-entry cannot fire on the next cycle.
//   - A BUY on a pair with an open position is denied unless
//     AllowExtend is set, in which case the entry price becomes the
//     volume-weighted average while the original stop/take prices
//     stay fixed.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"cryptobot/internal/indicator"
	"cryptobot/internal/model"
)

// Denial reason codes surfaced in the activity log.
const (
	ReasonCooldown     = "COOLDOWN"
	ReasonDailyLimit   = "DAILY_LIMIT"
	ReasonPositionOpen = "POSITION_OPEN"
	ReasonNoHoldings   = "NO_HOLDINGS"
)

// Denial is the expected, non-error control-flow outcome of a failed
// authorization. It still satisfies error so callers can propagate it.
type Denial struct {
	Code   string
	Detail string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("risk denied (%s): %s", d.Code, d.Detail)
}

// Params holds the tunable risk controls.
type Params struct {
	BaseTradeFraction float64       // fraction of balance per trade before confidence scaling
	MaxPositionSize   float64       // upper clamp on the sized fraction
	StopLossPct       float64       // e.g. 0.05 = exit 5% below entry
	TakeProfitPct     float64       // e.g. 0.10 = exit 10% above entry
	MaxDailyTrades    int           // per pair, per UTC day
	Cooldown          time.Duration // minimum gap between trades on a pair
	AllowExtend       bool          // permit BUYs that extend an open position

	Levels LevelThresholds
}

// LevelThresholds configures risk-level classification. All values are
// ascending cutoffs; the classification feeds logging and telemetry,
// never gating.
type LevelThresholds struct {
	// Bollinger band width as percent of price.
	WidthMediumPct  float64 `yaml:"width_medium_pct"`
	WidthHighPct    float64 `yaml:"width_high_pct"`
	WidthExtremePct float64 `yaml:"width_extreme_pct"`
	// RSI distance beyond the 30-70 neutral band.
	RSIDeepDistance float64 `yaml:"rsi_deep_distance"`
	// Absolute 7d trend percent.
	TrendMediumPct  float64 `yaml:"trend_medium_pct"`
	TrendHighPct    float64 `yaml:"trend_high_pct"`
	TrendExtremePct float64 `yaml:"trend_extreme_pct"`
	// Score cutoffs.
	MediumScore  int `yaml:"medium_score"`
	HighScore    int `yaml:"high_score"`
	ExtremeScore int `yaml:"extreme_score"`
}

// DefaultLevelThresholds returns the default classification cutoffs.
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{
		WidthMediumPct:  2,
		WidthHighPct:    5,
		WidthExtremePct: 10,
		RSIDeepDistance: 10,
		TrendMediumPct:  2,
		TrendHighPct:    5,
		TrendExtremePct: 10,
		MediumScore:     2,
		HighScore:       4,
		ExtremeScore:    6,
	}
}

// ForcedExit instructs the orchestrator to close a position in full.
type ForcedExit struct {
	Trigger  model.Trigger
	Position model.Position
	Reason   string
}

type pairState struct {
	position    *model.Position
	lastTradeAt time.Time
	dailyCount  int
	dailyDay    time.Time // UTC midnight the counter belongs to
}

// Manager owns per-pair risk state and gates every trade.
type Manager struct {
	mu     sync.Mutex
	params Params
	pairs  map[string]*pairState
	now    func() time.Time
}

// NewManager creates a risk manager with the given parameters.
func NewManager(params Params) *Manager {
	if params.Levels == (LevelThresholds{}) {
		params.Levels = DefaultLevelThresholds()
	}
	return &Manager{
		params: params,
		pairs:  make(map[string]*pairState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) state(pair string) *pairState {
	st, ok := m.pairs[pair]
	if !ok {
		st = &pairState{}
		m.pairs[pair] = st
	}
	return st
}

// EvaluateTriggers checks the pair's open position against its exit
// prices. Stop-loss is checked first; the two triggers are mutually
// exclusive within one cycle. Runs before any decision-source call.
func (m *Manager) EvaluateTriggers(pair string, price float64) (ForcedExit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.pairs[pair]
	if !ok || st.position == nil {
		return ForcedExit{}, false
	}
	pos := *st.position

	if price <= pos.StopLossPrice {
		return ForcedExit{
			Trigger:  model.TriggerStopLoss,
			Position: pos,
			Reason: fmt.Sprintf("price %.2f breached stop loss %.2f (entry %.2f)",
				price, pos.StopLossPrice, pos.EntryPrice),
		}, true
	}
	if price >= pos.TakeProfitPrice {
		return ForcedExit{
			Trigger:  model.TriggerTakeProfit,
			Position: pos,
			Reason: fmt.Sprintf("price %.2f reached take profit %.2f (entry %.2f)",
				price, pos.TakeProfitPrice, pos.EntryPrice),
		}, true
	}
	return ForcedExit{}, false
}

// Authorize gates a non-forced BUY/SELL decision. A nil return means
// ALLOW; otherwise the error is a *Denial carrying the reason code.
func (m *Manager) Authorize(pair string, action model.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := m.state(pair)
	m.rollDay(st, now)

	if !st.lastTradeAt.IsZero() {
		if since := now.Sub(st.lastTradeAt); since < m.params.Cooldown {
			return &Denial{
				Code:   ReasonCooldown,
				Detail: fmt.Sprintf("%s remaining of %s cooldown", m.params.Cooldown-since, m.params.Cooldown),
			}
		}
	}

	if st.dailyCount >= m.params.MaxDailyTrades {
		return &Denial{
			Code:   ReasonDailyLimit,
			Detail: fmt.Sprintf("daily trade limit reached (%d)", m.params.MaxDailyTrades),
		}
	}

	if action == model.ActionBuy && st.position != nil && !m.params.AllowExtend {
		return &Denial{
			Code:   ReasonPositionOpen,
			Detail: "position already open, pyramiding disabled",
		}
	}

	return nil
}

// PositionSize scales the base trade fraction by confidence:
// confidence 0 trades half the base size, confidence 1 the full base
// size. The result is clamped to [0, MaxPositionSize].
func (m *Manager) PositionSize(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	sized := m.params.BaseTradeFraction * (0.5 + 0.5*confidence)
	if sized < 0 {
		return 0
	}
	if sized > m.params.MaxPositionSize {
		return m.params.MaxPositionSize
	}
	return sized
}

// ApplyFill records a confirmed execution: position bookkeeping plus
// cooldown and daily-counter updates. Counters only move here, after
// the ledger reports success — never optimistically.
func (m *Manager) ApplyFill(trade model.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := m.state(trade.Pair)
	m.rollDay(st, now)

	forced := trade.Trigger != model.TriggerDecision
	st.lastTradeAt = now
	if !forced {
		st.dailyCount++
	}

	switch trade.Side {
	case model.SideBuy:
		if st.position == nil {
			st.position = &model.Position{
				Pair:            trade.Pair,
				EntryPrice:      trade.Price,
				Quantity:        trade.Amount,
				OpenedAt:        trade.Timestamp,
				StopLossPrice:   trade.Price * (1 - m.params.StopLossPct),
				TakeProfitPrice: trade.Price * (1 + m.params.TakeProfitPct),
				Status:          model.PositionOpen,
			}
			return
		}
		// Extend: volume-weighted entry, exit prices stay fixed.
		pos := st.position
		total := pos.Quantity + trade.Amount
		if total > 0 {
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + trade.Price*trade.Amount) / total
		}
		pos.Quantity = total

	case model.SideSell:
		if st.position == nil {
			return
		}
		pos := st.position
		pos.Quantity -= trade.Amount
		if forced || pos.Quantity <= 1e-12 {
			pos.Quantity = 0
			pos.Status = model.PositionClosed
			st.position = nil
		}
	}
}

// Position returns a copy of the pair's open position, if any.
func (m *Manager) Position(pair string) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.pairs[pair]
	if !ok || st.position == nil {
		return model.Position{}, false
	}
	return *st.position, true
}

// OpenPositions returns copies of all open positions keyed by pair.
func (m *Manager) OpenPositions() map[string]model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Position)
	for pair, st := range m.pairs {
		if st.position != nil {
			out[pair] = *st.position
		}
	}
	return out
}

// DailyCount returns the pair's trade count for the current UTC day.
func (m *Manager) DailyCount(pair string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.pairs[pair]
	if !ok {
		return 0
	}
	m.rollDay(st, m.now())
	return st.dailyCount
}

// ResetDaily zeroes every pair's daily counter. Called by the UTC
// midnight cron; rollDay covers the case where the cron is absent.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.now().Truncate(24 * time.Hour)
	for _, st := range m.pairs {
		st.dailyCount = 0
		st.dailyDay = day
	}
}

// rollDay lazily resets the counter when the UTC day changed.
// Caller holds m.mu.
func (m *Manager) rollDay(st *pairState, now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if !st.dailyDay.Equal(day) {
		st.dailyDay = day
		st.dailyCount = 0
	}
}

// Classify scores market conditions into a risk level from band width
// relative to price, RSI distance outside the neutral band, and the
// 7d trend. Readings that are absent contribute nothing.
func (m *Manager) Classify(snap indicator.Snapshot) model.RiskLevel {
	c := m.params.Levels
	score := 0

	if snap.Bollinger.Ready && snap.Price > 0 {
		widthPct := snap.Bollinger.Width / snap.Price * 100
		switch {
		case widthPct >= c.WidthExtremePct:
			score += 3
		case widthPct >= c.WidthHighPct:
			score += 2
		case widthPct >= c.WidthMediumPct:
			score++
		}
	}

	if snap.RSI.Ready {
		var dist float64
		if snap.RSI.Value > 70 {
			dist = snap.RSI.Value - 70
		} else if snap.RSI.Value < 30 {
			dist = 30 - snap.RSI.Value
		}
		switch {
		case dist >= c.RSIDeepDistance:
			score += 3
		case dist > 0:
			score += 2
		}
	}

	if snap.Trend.Has7d {
		t := math.Abs(snap.Trend.Change7d)
		switch {
		case t >= c.TrendExtremePct:
			score += 3
		case t >= c.TrendHighPct:
			score += 2
		case t >= c.TrendMediumPct:
			score++
		}
	}

	switch {
	case score >= c.ExtremeScore:
		return model.RiskExtreme
	case score >= c.HighScore:
		return model.RiskHigh
	case score >= c.MediumScore:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
