// Package bot runs the trading loop: fetch market data, compute
// indicators, check forced exits, consult the decision source, gate
// through risk, and execute on the ledger. One cycle runs at a time;
// the loop, the manual cycle endpoint, and shutdown all serialize on
// the same mutex.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cryptobot/internal/activity"
	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/oracle"
	"cryptobot/internal/risk"
)

// MarketSource supplies quotes and history for a pair.
type MarketSource interface {
	Snapshot(ctx context.Context, pair string) (model.MarketSnapshot, error)
}

// DecisionSource returns a validated trade verdict.
type DecisionSource interface {
	Decide(ctx context.Context, req oracle.Request) (model.Decision, error)
}

// TradeJournal persists executed trades. Optional.
type TradeJournal interface {
	Record(trade model.Trade) error
}

// StatePublisher mirrors latest state to external consumers. Optional.
type StatePublisher interface {
	PublishSnapshot(ctx context.Context, snap indicator.Snapshot)
	PublishDecision(ctx context.Context, decision model.Decision)
	PublishPortfolio(ctx context.Context, pf model.Portfolio)
	PublishTrade(ctx context.Context, trade model.Trade)
}

// Config holds the loop parameters.
type Config struct {
	Pairs        []string
	Interval     time.Duration
	CycleTimeout time.Duration // per-cycle deadline; default 2*Interval
}

// Deps wires the bot's collaborators. Market, Oracle, Indicators,
// Risk, Ledger, and Activity are required; the rest may be nil.
type Deps struct {
	Market     MarketSource
	Oracle     DecisionSource
	Indicators *indicator.Engine
	Risk       *risk.Manager
	Ledger     *ledger.Ledger
	Activity   *activity.Log
	Journal    TradeJournal
	Publisher  StatePublisher
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
}

// Bot owns the trading loop lifecycle.
type Bot struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// cycleMu serializes cycles: the interval loop, the manual
	// /api/bot/cycle trigger, and tests never overlap.
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	cycles      int64
	lastCycleAt time.Time

	state *stateCache
}

// New creates a bot. It does not start the loop.
func New(cfg Config, deps Deps) *Bot {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * cfg.Interval
	}
	return &Bot{
		cfg:   cfg,
		deps:  deps,
		log:   slog.Default().With("component", "bot"),
		state: newStateCache(),
	}
}

// Start launches the interval loop. Starting an already-running bot is
// a no-op.
func (b *Bot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	if b.deps.Health != nil {
		b.deps.Health.SetBotRunning(true)
	}
	b.deps.Activity.Append(activity.Entry{
		Type:    activity.TypeBotStatus,
		Message: "bot started",
	})
	b.log.Info("bot started", "pairs", b.Pairs(), "interval", b.cfg.Interval)

	go b.loop(ctx, done)
}

// Stop halts the loop. An in-flight cycle runs to completion; Stop
// returns once it has.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	cancel()
	<-done

	if b.deps.Health != nil {
		b.deps.Health.SetBotRunning(false)
	}
	b.deps.Activity.Append(activity.Entry{
		Type:    activity.TypeBotStatus,
		Message: "bot stopped",
	})
	b.log.Info("bot stopped")
}

// Running reports whether the interval loop is active.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status summarizes the loop for the API.
type Status struct {
	Running     bool      `json:"running"`
	Pairs       []string  `json:"pairs"`
	Interval    string    `json:"interval"`
	Cycles      int64     `json:"cycles_completed"`
	LastCycleAt time.Time `json:"last_cycle_at"`
}

// Status returns the current loop status.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Running:     b.running,
		Pairs:       append([]string(nil), b.cfg.Pairs...),
		Interval:    b.cfg.Interval.String(),
		Cycles:      b.cycles,
		LastCycleAt: b.lastCycleAt,
	}
}

// Pairs returns the currently traded pairs.
func (b *Bot) Pairs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cfg.Pairs...)
}

// SetPairs replaces the traded pair set, taking effect from the next
// cycle. Risk and ledger state for removed pairs is retained so their
// positions stay intact if the pair is added back.
func (b *Bot) SetPairs(pairs []string) {
	if len(pairs) == 0 {
		return
	}
	b.mu.Lock()
	b.cfg.Pairs = append([]string(nil), pairs...)
	b.mu.Unlock()

	b.deps.Activity.Append(activity.Entry{
		Type:    activity.TypeBotStatus,
		Message: fmt.Sprintf("trading pairs set to %v", pairs),
	})
	b.log.Info("pairs updated", "pairs", pairs)
}

func (b *Bot) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// First cycle immediately, then on the ticker.
	b.RunCycle(ctx)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full trading cycle across all pairs. Safe to
// call whether or not the loop is running; concurrent calls serialize.
func (b *Bot) RunCycle(ctx context.Context) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	b.runCycle(cctx)
	elapsed := time.Since(start)

	b.mu.Lock()
	b.cycles++
	b.lastCycleAt = time.Now().UTC()
	last := b.lastCycleAt
	b.mu.Unlock()

	if b.deps.Metrics != nil {
		b.deps.Metrics.CyclesTotal.Inc()
		b.deps.Metrics.CycleDur.Observe(elapsed.Seconds())
	}
	if b.deps.Health != nil {
		b.deps.Health.SetLastCycleAt(last)
	}
	b.log.Info("cycle complete", "elapsed", elapsed.Round(time.Millisecond))
}
