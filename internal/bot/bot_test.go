package bot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"cryptobot/internal/activity"
	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/model"
	"cryptobot/internal/oracle"
	"cryptobot/internal/risk"
)

type fakeMarket struct {
	mu    sync.Mutex
	price map[string]float64
	fail  map[string]bool
}

func (f *fakeMarket) setPrice(pair string, price float64) {
	f.mu.Lock()
	f.price[pair] = price
	f.mu.Unlock()
}

func (f *fakeMarket) Snapshot(ctx context.Context, pair string) (model.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[pair] {
		return model.MarketSnapshot{}, errors.New("source down")
	}
	price := f.price[pair]

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	history := make([]model.PricePoint, 60)
	for i := range history {
		history[i] = model.PricePoint{
			TS:     base.Add(time.Duration(i) * time.Hour),
			Close:  price,
			Volume: 100,
		}
	}
	return model.MarketSnapshot{
		Pair:    pair,
		Price:   price,
		History: history,
	}, nil
}

type fakeOracle struct {
	mu        sync.Mutex
	decisions map[string]model.Decision
	err       error
	calls     map[string]int
}

func (f *fakeOracle) Decide(ctx context.Context, req oracle.Request) (model.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Pair]++
	if f.err != nil {
		return model.Decision{}, f.err
	}
	d, ok := f.decisions[req.Pair]
	if !ok {
		d = model.Decision{Pair: req.Pair, Action: model.ActionHold}
	}
	return d, nil
}

func (f *fakeOracle) callCount(pair string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pair]
}

type fakeJournal struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (f *fakeJournal) Record(trade model.Trade) error {
	f.mu.Lock()
	f.trades = append(f.trades, trade)
	f.mu.Unlock()
	return nil
}

type harness struct {
	bot     *Bot
	market  *fakeMarket
	oracle  *fakeOracle
	journal *fakeJournal
	ledger  *ledger.Ledger
	risk    *risk.Manager
	feed    *activity.Log
}

func newHarness(t *testing.T, pairs []string) *harness {
	t.Helper()
	market := &fakeMarket{price: map[string]float64{}, fail: map[string]bool{}}
	for _, p := range pairs {
		market.price[p] = 50000
	}
	advisor := &fakeOracle{decisions: map[string]model.Decision{}, calls: map[string]int{}}
	jr := &fakeJournal{}
	book := ledger.New(10000)
	riskMgr := risk.NewManager(risk.Params{
		BaseTradeFraction: 0.10,
		MaxPositionSize:   0.25,
		StopLossPct:       0.05,
		TakeProfitPct:     0.10,
		MaxDailyTrades:    10,
		Cooldown:          0,
	})
	feed := activity.New(100)

	b := New(Config{Pairs: pairs, Interval: time.Hour}, Deps{
		Market:     market,
		Oracle:     advisor,
		Indicators: indicator.NewEngine(indicator.DefaultConfig()),
		Risk:       riskMgr,
		Ledger:     book,
		Activity:   feed,
		Journal:    jr,
	})
	return &harness{
		bot: b, market: market, oracle: advisor, journal: jr,
		ledger: book, risk: riskMgr, feed: feed,
	}
}

func hasEntry(entries []activity.Entry, typ activity.Type, reason string) bool {
	for _, e := range entries {
		if e.Type == typ && e.Reason == reason {
			return true
		}
	}
	return false
}

func TestRunCycle_ExecutesBuy(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})
	h.oracle.decisions["BTC/USD"] = model.Decision{
		Pair: "BTC/USD", Action: model.ActionBuy, Confidence: 1.0,
		RiskLevel: model.RiskLow, Reasoning: "momentum",
	}

	h.bot.RunCycle(context.Background())

	if math.Abs(h.ledger.USDBalance()-9000) > 1e-9 {
		t.Errorf("USD balance: want 9000, got %v", h.ledger.USDBalance())
	}
	if math.Abs(h.ledger.Holding("BTC/USD")-0.02) > 1e-12 {
		t.Errorf("holding: want 0.02, got %v", h.ledger.Holding("BTC/USD"))
	}
	if _, ok := h.risk.Position("BTC/USD"); !ok {
		t.Error("risk manager should record the open position")
	}
	if len(h.journal.trades) != 1 {
		t.Fatalf("journal: want 1 trade, got %d", len(h.journal.trades))
	}
	if h.journal.trades[0].Trigger != model.TriggerDecision {
		t.Errorf("trigger: want DECISION, got %s", h.journal.trades[0].Trigger)
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeTrade, string(model.TriggerDecision)) {
		t.Error("expected a TRADE activity entry")
	}
	if _, ok := h.bot.LatestDecision("BTC/USD"); !ok {
		t.Error("latest decision should be cached")
	}
}

func TestRunCycle_OracleDownIsImplicitHold(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})
	h.oracle.err = oracle.ErrUnavailable

	h.bot.RunCycle(context.Background())

	if len(h.ledger.Trades(0)) != 0 {
		t.Error("no trade may execute when the decision source is down")
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeError, "DECISION_UNAVAILABLE") {
		t.Error("expected a DECISION_UNAVAILABLE activity entry")
	}
	if _, ok := h.bot.LatestDecision("BTC/USD"); ok {
		t.Error("a failed consult must not be cached as a decision")
	}
}

func TestRunCycle_PairFailureIsolation(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD", "ETH/USD"})
	h.market.fail["BTC/USD"] = true
	h.oracle.decisions["ETH/USD"] = model.Decision{
		Pair: "ETH/USD", Action: model.ActionBuy, Confidence: 1.0,
	}

	h.bot.RunCycle(context.Background())

	if h.oracle.callCount("BTC/USD") != 0 {
		t.Error("failed pair must not reach the decision source")
	}
	if h.ledger.Holding("ETH/USD") <= 0 {
		t.Error("healthy pair should still trade")
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeDataFetch, "PAIR_SKIPPED") {
		t.Error("expected a PAIR_SKIPPED activity entry")
	}
}

func TestRunCycle_ForcedExitPreemptsOracle(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})
	h.oracle.decisions["BTC/USD"] = model.Decision{
		Pair: "BTC/USD", Action: model.ActionBuy, Confidence: 1.0,
	}

	// Cycle 1 opens the position at 50000 (stop at 47500).
	h.bot.RunCycle(context.Background())
	if _, ok := h.risk.Position("BTC/USD"); !ok {
		t.Fatal("expected open position after cycle 1")
	}
	callsAfterOpen := h.oracle.callCount("BTC/USD")

	// Cycle 2: price crashes through the stop.
	h.market.setPrice("BTC/USD", 47000)
	h.bot.RunCycle(context.Background())

	if got := h.oracle.callCount("BTC/USD"); got != callsAfterOpen {
		t.Errorf("forced exit must preempt the decision source: %d extra calls", got-callsAfterOpen)
	}
	if _, ok := h.risk.Position("BTC/USD"); ok {
		t.Error("position should be closed by the stop-loss")
	}
	if h.ledger.Holding("BTC/USD") != 0 {
		t.Errorf("holdings should be liquidated, got %v", h.ledger.Holding("BTC/USD"))
	}

	trades := h.ledger.Trades(1)
	if len(trades) != 1 || trades[0].Trigger != model.TriggerStopLoss {
		t.Fatalf("expected a STOP_LOSS trade, got %+v", trades)
	}
}

func TestRunCycle_HoldDoesNothing(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})
	// Default fake decision is HOLD.
	h.bot.RunCycle(context.Background())

	if len(h.ledger.Trades(0)) != 0 {
		t.Error("HOLD must not trade")
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeDecision, string(model.ActionHold)) {
		t.Error("expected a HOLD activity entry")
	}
}

func TestRunCycle_SellWithoutHoldingsDenied(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})
	h.oracle.decisions["BTC/USD"] = model.Decision{
		Pair: "BTC/USD", Action: model.ActionSell, Confidence: 1.0,
	}

	h.bot.RunCycle(context.Background())

	if len(h.ledger.Trades(0)) != 0 {
		t.Error("SELL without holdings must not execute")
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeRisk, risk.ReasonNoHoldings) {
		t.Error("expected a NO_HOLDINGS denial entry")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, []string{"BTC/USD"})

	h.bot.RunCycle(context.Background())

	h.bot.Start()
	if !h.bot.Running() {
		t.Fatal("bot should be running after Start")
	}
	h.bot.Start() // idempotent

	h.bot.Stop()
	if h.bot.Running() {
		t.Fatal("bot should be stopped after Stop")
	}
	h.bot.Stop() // idempotent

	status := h.bot.Status()
	if status.Cycles < 1 {
		t.Errorf("expected at least one completed cycle, got %d", status.Cycles)
	}
	if !hasEntry(h.feed.Recent(0), activity.TypeBotStatus, "") {
		t.Error("expected BOT_STATUS activity entries")
	}
}
