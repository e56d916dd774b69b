package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cryptobot/internal/activity"
	"cryptobot/internal/bot"
	"cryptobot/internal/ledger"
	"cryptobot/internal/model"
	"cryptobot/internal/risk"
)

// Deps wires the API to the rest of the system.
type Deps struct {
	Bot      *bot.Bot
	Ledger   *ledger.Ledger
	Risk     *risk.Manager
	Activity *activity.Log
	Hub      *Hub
}

// Server is the HTTP API server.
type Server struct {
	deps  Deps
	srv   *http.Server
	start time.Time
	log   *slog.Logger
}

// NewServer builds the API server with all routes registered.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		deps:  deps,
		start: time.Now(),
		log:   slog.Default().With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/statistics", s.handleStatistics)
	mux.HandleFunc("/api/market-data", s.handleMarketData)
	mux.HandleFunc("/api/indicators", s.handleIndicators)
	mux.HandleFunc("/api/decision", s.handleDecision)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/api/pairs", s.handlePairs)
	mux.HandleFunc("/api/bot/start", s.handleBotStart)
	mux.HandleFunc("/api/bot/stop", s.handleBotStop)
	mux.HandleFunc("/api/bot/cycle", s.handleBotCycle)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("api server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("api server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// preflight answers OPTIONS requests; returns true when handled.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	setCORS(w)
	w.WriteHeader(http.StatusOK)
	return true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.deps.Hub.HandleWS(w, r, s.deps.Activity.Recent(50))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"bot":        s.deps.Bot.Running(),
		"ws_clients": s.deps.Hub.ClientCount(),
		"uptime_sec": int64(time.Since(s.start).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Bot.Status()
	daily := make(map[string]int, len(status.Pairs))
	for _, pair := range status.Pairs {
		daily[pair] = s.deps.Risk.DailyCount(pair)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bot":          status,
		"daily_trades": daily,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	prices := s.deps.Bot.LatestPrices()
	pf := s.deps.Ledger.Snapshot(prices)

	type positionOut struct {
		model.Position
		CurrentPrice  float64 `json:"current_price,omitempty"`
		UnrealizedPnL float64 `json:"unrealized_pnl"`
	}
	positions := make(map[string]positionOut)
	for pair, pos := range s.deps.Risk.OpenPositions() {
		out := positionOut{Position: pos}
		if price, ok := prices[pair]; ok {
			out.CurrentPrice = price
			out.UnrealizedPnL = pos.UnrealizedPnL(price)
		}
		positions[pair] = out
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio": pf,
		"positions": positions,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1000)
	writeJSON(w, http.StatusOK, s.deps.Ledger.Trades(limit))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.Stats())
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	snap, ok := s.deps.Bot.LatestMarket(pair)
	if !ok {
		writeError(w, http.StatusNotFound, "no market data yet for "+pair)
		return
	}
	// History is large and the dashboard only needs the quote.
	snap.History = nil
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	snap, ok := s.deps.Bot.LatestIndicators(pair)
	if !ok {
		writeError(w, http.StatusNotFound, "no indicators yet for "+pair)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	decision, ok := s.deps.Bot.LatestDecision(pair)
	if !ok {
		writeError(w, http.StatusNotFound, "no decision yet for "+pair)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	writeJSON(w, http.StatusOK, s.deps.Activity.Recent(limit))
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"pairs": s.deps.Bot.Pairs()})
	case http.MethodPost:
		var body struct {
			Pairs []string `json:"pairs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Pairs) == 0 {
			writeError(w, http.StatusBadRequest, "pairs list required")
			return
		}
		s.deps.Bot.SetPairs(body.Pairs)
		writeJSON(w, http.StatusOK, map[string]interface{}{"pairs": s.deps.Bot.Pairs()})
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.deps.Bot.Start()
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.deps.Bot.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleBotCycle(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	// Runs synchronously so the caller sees the resulting state.
	s.deps.Bot.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cycle complete"})
}

// pairParam reads ?pair= and validates it against the traded set.
func (s *Server) pairParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pairs := s.deps.Bot.Pairs()
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		if len(pairs) == 0 {
			writeError(w, http.StatusBadRequest, "pair parameter required")
			return "", false
		}
		return pairs[0], true
	}
	for _, p := range pairs {
		if p == pair {
			return pair, true
		}
	}
	writeError(w, http.StatusNotFound, "unknown pair "+pair)
	return "", false
}

func queryInt(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
