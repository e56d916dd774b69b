package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cryptobot/internal/activity"
	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/model"
	"cryptobot/internal/oracle"
	"cryptobot/internal/risk"
)

// Cycle stages, used as the metrics error label.
const (
	stageFetch      = "fetch"
	stageIndicators = "indicators"
	stageDecision   = "decision"
	stageExecute    = "execute"
)

type pairResult struct {
	pair   string
	market model.MarketSnapshot
	ind    indicator.Snapshot
	err    error
	stage  string
}

// runCycle is the cycle body. Fetch and indicator computation run in
// parallel per pair; decision and execution run serialized so the
// ledger sees one trade at a time in a stable pair order.
func (b *Bot) runCycle(ctx context.Context) {
	pairs := b.Pairs()
	results := make([]pairResult, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, pair string) {
			defer wg.Done()
			results[i] = b.gather(ctx, pair)
		}(i, pair)
	}
	wg.Wait()

	prices := make(map[string]float64, len(results))
	for _, res := range results {
		if res.err != nil {
			// A failing pair is skipped for the cycle; the others
			// proceed untouched.
			b.pairError(res)
			continue
		}
		prices[res.pair] = res.market.Price
		b.state.setMarket(res.market)
		b.state.setIndicators(res.ind)
		if b.deps.Publisher != nil {
			b.deps.Publisher.PublishSnapshot(ctx, res.ind)
		}
		b.decideAndExecute(ctx, res)
	}

	b.publishPortfolio(ctx, prices)
}

// gather fetches market data and computes indicators for one pair.
func (b *Bot) gather(ctx context.Context, pair string) pairResult {
	res := pairResult{pair: pair}

	snap, err := b.deps.Market.Snapshot(ctx, pair)
	if err != nil {
		res.err = err
		res.stage = stageFetch
		return res
	}
	res.market = snap

	ind, err := b.deps.Indicators.Compute(pair, snap.History)
	if err != nil {
		res.err = err
		res.stage = stageIndicators
		return res
	}
	res.ind = ind
	return res
}

// decideAndExecute runs the serialized half of the cycle for one pair:
// forced exits first, then the decision source, then the risk gate and
// the ledger.
func (b *Bot) decideAndExecute(ctx context.Context, res pairResult) {
	pair := res.pair
	price := res.market.Price

	// Forced exits preempt the decision source: when one fires, the
	// pair is done for this cycle.
	if exit, ok := b.deps.Risk.EvaluateTriggers(pair, price); ok {
		b.executeForced(ctx, pair, price, exit)
		return
	}

	decision, err := b.consult(ctx, res)
	if err != nil {
		// Degraded to an implicit HOLD: logged as a failure, not as
		// an advisor verdict.
		b.log.Warn("decision source unavailable, holding", "pair", pair, "err", err)
		if b.deps.Metrics != nil {
			b.deps.Metrics.DecisionFailures.Inc()
		}
		b.deps.Activity.Append(activity.Entry{
			Type:    activity.TypeError,
			Pair:    pair,
			Reason:  "DECISION_UNAVAILABLE",
			Message: "decision source unavailable, implicit HOLD",
		})
		return
	}

	level := b.deps.Risk.Classify(res.ind)
	if decision.RiskLevel == "" {
		decision.RiskLevel = level
	}
	b.state.setDecision(decision)
	if b.deps.Metrics != nil {
		b.deps.Metrics.DecisionsTotal.WithLabelValues(pair, string(decision.Action)).Inc()
	}
	if b.deps.Publisher != nil {
		b.deps.Publisher.PublishDecision(ctx, decision)
	}

	if decision.Action == model.ActionHold {
		b.deps.Activity.Append(activity.Entry{
			Type:    activity.TypeDecision,
			Pair:    pair,
			Reason:  string(model.ActionHold),
			Message: fmt.Sprintf("HOLD (confidence %.2f, risk %s): %s", decision.Confidence, level, decision.Reasoning),
		})
		return
	}

	if err := b.deps.Risk.Authorize(pair, decision.Action); err != nil {
		b.denied(pair, decision.Action, err)
		return
	}
	if decision.Action == model.ActionSell && b.deps.Ledger.Holding(pair) <= 0 {
		b.denied(pair, decision.Action, &risk.Denial{
			Code:   risk.ReasonNoHoldings,
			Detail: "no holdings to sell",
		})
		return
	}

	side := model.SideBuy
	if decision.Action == model.ActionSell {
		side = model.SideSell
	}
	trade, err := b.deps.Ledger.Execute(ledger.Request{
		Pair:       pair,
		Side:       side,
		Fraction:   b.deps.Risk.PositionSize(decision.Confidence),
		Price:      price,
		Reasoning:  decision.Reasoning,
		Confidence: decision.Confidence,
		Trigger:    model.TriggerDecision,
	})
	if err != nil {
		b.pairError(pairResult{pair: pair, err: err, stage: stageExecute})
		return
	}
	b.settle(ctx, trade)
}

// consult builds the context document and calls the decision source.
func (b *Bot) consult(ctx context.Context, res pairResult) (model.Decision, error) {
	req := oracle.Request{
		Pair:       res.pair,
		Price:      res.market.Price,
		High24h:    res.market.High24h,
		Low24h:     res.market.Low24h,
		Change24h:  res.market.Change24h,
		Volume24h:  res.market.Volume24h,
		Indicators: res.ind,
		Stats:      b.deps.Ledger.Stats(),
	}
	if pos, ok := b.deps.Risk.Position(res.pair); ok {
		req.Position = &pos
	}
	return b.deps.Oracle.Decide(ctx, req)
}

// executeForced liquidates a position on a stop-loss or take-profit
// trigger. Forced exits bypass the risk gate entirely.
func (b *Bot) executeForced(ctx context.Context, pair string, price float64, exit risk.ForcedExit) {
	trade, err := b.deps.Ledger.Execute(ledger.Request{
		Pair:      pair,
		Side:      model.SideSell,
		Price:     price,
		Reasoning: exit.Reason,
		Trigger:   exit.Trigger,
	})
	if err != nil {
		b.pairError(pairResult{pair: pair, err: err, stage: stageExecute})
		return
	}
	b.log.Info("forced exit", "pair", pair, "trigger", exit.Trigger, "reason", exit.Reason)
	b.settle(ctx, trade)
}

// settle finishes a confirmed execution: risk bookkeeping, audit
// journal, publication, metrics, activity. Risk state moves only here,
// after the ledger accepted the trade.
func (b *Bot) settle(ctx context.Context, trade model.Trade) {
	b.deps.Risk.ApplyFill(trade)

	if b.deps.Journal != nil {
		if err := b.deps.Journal.Record(trade); err != nil {
			b.log.Error("journal write failed", "trade", trade.ID, "err", err)
		}
	}
	if b.deps.Publisher != nil {
		b.deps.Publisher.PublishTrade(ctx, trade)
	}
	if b.deps.Metrics != nil {
		b.deps.Metrics.TradesTotal.
			WithLabelValues(trade.Pair, string(trade.Side), string(trade.Trigger)).Inc()
	}
	b.deps.Activity.Append(activity.Entry{
		Type:   activity.TypeTrade,
		Pair:   trade.Pair,
		Reason: string(trade.Trigger),
		Message: fmt.Sprintf("%s %.8f %s at %.2f ($%.2f)",
			trade.Side, trade.Amount, trade.Pair, trade.Price, trade.USDValue),
	})
	b.log.Info("trade executed",
		"id", trade.ID,
		"pair", trade.Pair,
		"side", trade.Side,
		"trigger", trade.Trigger,
		"price", trade.Price,
		"usd", trade.USDValue,
	)
}

func (b *Bot) denied(pair string, action model.Action, err error) {
	var denial *risk.Denial
	code := "DENIED"
	if errors.As(err, &denial) {
		code = denial.Code
	}
	if b.deps.Metrics != nil {
		b.deps.Metrics.RiskDenials.WithLabelValues(pair, code).Inc()
	}
	b.deps.Activity.Append(activity.Entry{
		Type:    activity.TypeRisk,
		Pair:    pair,
		Reason:  code,
		Message: fmt.Sprintf("%s denied: %v", action, err),
	})
	b.log.Info("trade denied", "pair", pair, "action", action, "reason", code)
}

func (b *Bot) pairError(res pairResult) {
	if b.deps.Metrics != nil {
		b.deps.Metrics.PairErrors.WithLabelValues(res.pair, res.stage).Inc()
	}
	typ := activity.TypeError
	if res.stage == stageFetch {
		typ = activity.TypeDataFetch
	}
	b.deps.Activity.Append(activity.Entry{
		Type:    typ,
		Pair:    res.pair,
		Reason:  "PAIR_SKIPPED",
		Message: fmt.Sprintf("%s failed, pair skipped this cycle: %v", res.stage, res.err),
	})
	b.log.Warn("pair skipped", "pair", res.pair, "stage", res.stage, "err", res.err)
}

func (b *Bot) publishPortfolio(ctx context.Context, prices map[string]float64) {
	// Fill gaps from the last known price so a single failed fetch
	// does not zero the valuation.
	for pair, snap := range b.state.markets() {
		if _, ok := prices[pair]; !ok {
			prices[pair] = snap.Price
		}
	}
	pf := b.deps.Ledger.Snapshot(prices)

	if b.deps.Metrics != nil {
		b.deps.Metrics.PortfolioValue.Set(pf.TotalValueUSD)
		b.deps.Metrics.USDBalance.Set(pf.USDBalance)
		b.deps.Metrics.OpenPositions.Set(float64(len(b.deps.Risk.OpenPositions())))
	}
	if b.deps.Publisher != nil {
		b.deps.Publisher.PublishPortfolio(ctx, pf)
	}
}

// stateCache keeps the latest market snapshot, indicator snapshot, and
// decision per pair for the HTTP API.
type stateCache struct {
	mu        sync.RWMutex
	market    map[string]model.MarketSnapshot
	ind       map[string]indicator.Snapshot
	decisions map[string]model.Decision
}

func newStateCache() *stateCache {
	return &stateCache{
		market:    make(map[string]model.MarketSnapshot),
		ind:       make(map[string]indicator.Snapshot),
		decisions: make(map[string]model.Decision),
	}
}

func (s *stateCache) setMarket(m model.MarketSnapshot) {
	s.mu.Lock()
	s.market[m.Pair] = m
	s.mu.Unlock()
}

func (s *stateCache) setIndicators(snap indicator.Snapshot) {
	s.mu.Lock()
	s.ind[snap.Pair] = snap
	s.mu.Unlock()
}

func (s *stateCache) setDecision(d model.Decision) {
	s.mu.Lock()
	s.decisions[d.Pair] = d
	s.mu.Unlock()
}

func (s *stateCache) markets() map[string]model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.MarketSnapshot, len(s.market))
	for k, v := range s.market {
		out[k] = v
	}
	return out
}

// LatestMarket returns the last fetched snapshot for a pair.
func (b *Bot) LatestMarket(pair string) (model.MarketSnapshot, bool) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	m, ok := b.state.market[pair]
	return m, ok
}

// LatestIndicators returns the last computed snapshot for a pair.
func (b *Bot) LatestIndicators(pair string) (indicator.Snapshot, bool) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	s, ok := b.state.ind[pair]
	return s, ok
}

// LatestDecision returns the last decision for a pair.
func (b *Bot) LatestDecision(pair string) (model.Decision, bool) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	d, ok := b.state.decisions[pair]
	return d, ok
}

// LatestPrices returns the last known price per pair.
func (b *Bot) LatestPrices() map[string]float64 {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	out := make(map[string]float64, len(b.state.market))
	for pair, m := range b.state.market {
		out[pair] = m.Price
	}
	return out
}
