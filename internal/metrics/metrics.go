// Package metrics exposes Prometheus metrics and a health endpoint
// for the trading bot.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleDur         prometheus.Histogram
	PairErrors       *prometheus.CounterVec // labels: pair, stage
	DecisionsTotal   *prometheus.CounterVec // labels: pair, action
	DecisionFailures prometheus.Counter
	TradesTotal      *prometheus.CounterVec // labels: pair, side, trigger
	RiskDenials      *prometheus.CounterVec // labels: pair, reason
	PortfolioValue   prometheus.Gauge
	USDBalance       prometheus.Gauge
	OpenPositions    prometheus.Gauge
}

// New registers and returns all bot metrics.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Total trading cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Full-cycle latency across all pairs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PairErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_pair_errors_total",
			Help: "Per-pair cycle steps skipped due to errors (by stage)",
		}, []string{"pair", "stage"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_decisions_total",
			Help: "Decisions received from the decision source (by action)",
		}, []string{"pair", "action"}),
		DecisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_decision_failures_total",
			Help: "Decision source failures degraded to implicit HOLD",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Executed trades (by side and trigger)",
		}, []string{"pair", "side", "trigger"}),
		RiskDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_risk_denials_total",
			Help: "Decisions denied by the risk gate (by reason)",
		}, []string{"pair", "reason"}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_portfolio_value_usd",
			Help: "Total portfolio value at latest prices",
		}),
		USDBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_usd_balance",
			Help: "Current USD balance",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Number of currently open positions",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.PairErrors,
		m.DecisionsTotal,
		m.DecisionFailures,
		m.TradesTotal,
		m.RiskDenials,
		m.PortfolioValue,
		m.USDBalance,
		m.OpenPositions,
	)
	return m
}

// HealthStatus represents system health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	BotRunning     bool      `json:"bot_running"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Pairs          []string  `json:"pairs"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(pairs []string) *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		Pairs:     pairs,
	}
}

func (h *HealthStatus) SetBotRunning(v bool) {
	h.mu.Lock()
	h.BotRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleAt(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes. Either client
// may be nil when that dependency is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					start := time.Now()
					err := rdb.Ping(probeCtx).Err()
					h.mu.Lock()
					h.RedisConnected = err == nil
					h.RedisLatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
					h.LastCheckAt = time.Now()
					h.mu.Unlock()
				}
				if sqlDB != nil {
					start := time.Now()
					err := sqlDB.PingContext(probeCtx)
					h.mu.Lock()
					h.SQLiteOK = err == nil
					h.SQLiteLatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
					h.LastCheckAt = time.Now()
					h.mu.Unlock()
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := struct {
		Status      string   `json:"status"`
		Uptime      string   `json:"uptime"`
		BotRunning  bool     `json:"bot_running"`
		LastCycleAt string   `json:"last_cycle_at"`
		Redis       bool     `json:"redis_connected"`
		SQLite      bool     `json:"sqlite_ok"`
		Pairs       []string `json:"pairs"`
	}{
		Status:      "healthy",
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		BotRunning:  h.BotRunning,
		LastCycleAt: h.LastCycleAt.Format(time.RFC3339),
		Redis:       h.RedisConnected,
		SQLite:      h.SQLiteOK,
		Pairs:       h.Pairs,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
