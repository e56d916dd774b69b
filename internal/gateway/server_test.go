package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptobot/internal/activity"
	"cryptobot/internal/bot"
	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/model"
	"cryptobot/internal/risk"
)

// downMarket always fails, so a started bot only logs skipped pairs.
type downMarket struct{}

func (downMarket) Snapshot(ctx context.Context, pair string) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{}, errors.New("down")
}

func newTestAPI(t *testing.T) (*httptest.Server, *ledger.Ledger, *activity.Log) {
	t.Helper()

	book := ledger.New(10000)
	riskMgr := risk.NewManager(risk.Params{
		BaseTradeFraction: 0.1, MaxPositionSize: 0.25,
		StopLossPct: 0.05, TakeProfitPct: 0.10,
		MaxDailyTrades: 10, Cooldown: time.Hour,
	})
	feed := activity.New(50)
	trader := bot.New(bot.Config{Pairs: []string{"BTC/USD"}, Interval: time.Hour}, bot.Deps{
		Market:     downMarket{},
		Indicators: indicator.NewEngine(indicator.DefaultConfig()),
		Risk:       riskMgr,
		Ledger:     book,
		Activity:   feed,
	})

	srv := NewServer(":0", Deps{
		Bot:      trader,
		Ledger:   book,
		Risk:     riskMgr,
		Activity: feed,
		Hub:      NewHub(),
	})
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, book, feed
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealthAndStatus(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	var health map[string]interface{}
	getJSON(t, ts.URL+"/api/health", &health)
	if health["status"] != "ok" {
		t.Errorf("health status: %v", health["status"])
	}
	if health["bot"] != false {
		t.Errorf("bot should not be running, got %v", health["bot"])
	}

	var status struct {
		Bot struct {
			Running bool     `json:"running"`
			Pairs   []string `json:"pairs"`
		} `json:"bot"`
		DailyTrades map[string]int `json:"daily_trades"`
	}
	getJSON(t, ts.URL+"/api/status", &status)
	if status.Bot.Running {
		t.Error("bot reported running")
	}
	if len(status.Bot.Pairs) != 1 || status.Bot.Pairs[0] != "BTC/USD" {
		t.Errorf("pairs: %v", status.Bot.Pairs)
	}
	if _, ok := status.DailyTrades["BTC/USD"]; !ok {
		t.Error("daily trade counts missing")
	}
}

func TestPortfolioAndTrades(t *testing.T) {
	ts, book, _ := newTestAPI(t)

	if _, err := book.Execute(ledger.Request{
		Pair: "BTC/USD", Side: model.SideBuy, Fraction: 0.1, Price: 50000,
		Trigger: model.TriggerDecision,
	}); err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	var pf struct {
		Portfolio model.Portfolio `json:"portfolio"`
	}
	getJSON(t, ts.URL+"/api/portfolio", &pf)
	if pf.Portfolio.USDBalance != 9000 {
		t.Errorf("USD balance: want 9000, got %v", pf.Portfolio.USDBalance)
	}

	var trades []model.Trade
	getJSON(t, ts.URL+"/api/trades?limit=10", &trades)
	if len(trades) != 1 || trades[0].Side != model.SideBuy {
		t.Errorf("trades: %+v", trades)
	}

	var stats ledger.Stats
	getJSON(t, ts.URL+"/api/statistics", &stats)
	if stats.TotalTrades != 1 || stats.BuyTrades != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestActivityEndpoint(t *testing.T) {
	ts, _, feed := newTestAPI(t)

	feed.Append(activity.Entry{Type: activity.TypeTrade, Pair: "BTC/USD", Message: "test entry"})

	var entries []activity.Entry
	getJSON(t, ts.URL+"/api/activity", &entries)
	if len(entries) != 1 || entries[0].Message != "test entry" {
		t.Errorf("activity: %+v", entries)
	}
}

func TestUnknownPairAndMethodChecks(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/api/indicators?pair=DOGE/USD")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown pair: want 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/bot/start")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on control endpoint: want 405, got %d", resp.StatusCode)
	}
}

func TestPairsEndpoint(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	var out struct {
		Pairs []string `json:"pairs"`
	}
	getJSON(t, ts.URL+"/api/pairs", &out)
	if len(out.Pairs) != 1 || out.Pairs[0] != "BTC/USD" {
		t.Errorf("pairs: %v", out.Pairs)
	}

	resp, err := http.Post(ts.URL+"/api/pairs", "application/json",
		strings.NewReader(`{"pairs":["ETH/USD","SOL/USD"]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set pairs: status %d", resp.StatusCode)
	}

	getJSON(t, ts.URL+"/api/pairs", &out)
	if len(out.Pairs) != 2 || out.Pairs[0] != "ETH/USD" {
		t.Errorf("pairs after update: %v", out.Pairs)
	}

	// Pair validation tracks the new set: BTC/USD is no longer traded.
	resp, err = http.Get(ts.URL + "/api/indicators?pair=BTC/USD")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("removed pair: want 404, got %d", resp.StatusCode)
	}

	// Empty list is rejected and leaves the set unchanged.
	resp, err = http.Post(ts.URL+"/api/pairs", "application/json", strings.NewReader(`{"pairs":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty pairs: want 400, got %d", resp.StatusCode)
	}
}

func TestBotControl(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	resp, err := http.Post(ts.URL+"/api/bot/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}

	var health map[string]interface{}
	getJSON(t, ts.URL+"/api/health", &health)
	if health["bot"] != true {
		t.Error("bot should be running after start")
	}

	resp, err = http.Post(ts.URL+"/api/bot/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: status %d", resp.StatusCode)
	}
}
