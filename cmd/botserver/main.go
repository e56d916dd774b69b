package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"cryptobot/config"
	"cryptobot/internal/activity"
	"cryptobot/internal/bot"
	"cryptobot/internal/gateway"
	"cryptobot/internal/indicator"
	"cryptobot/internal/journal"
	"cryptobot/internal/ledger"
	"cryptobot/internal/logger"
	"cryptobot/internal/marketdata"
	"cryptobot/internal/metrics"
	"cryptobot/internal/oracle"
	"cryptobot/internal/risk"
	"cryptobot/internal/statepub"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	autostart := flag.Bool("autostart", true, "start the trading loop immediately")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	log := logger.Init("botserver", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "pairs", cfg.Trading.Pairs, "interval", cfg.Trading.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus(cfg.Trading.Pairs)
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Trade journal (SQLite) ----
	os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755)
	jr, err := journal.Open(cfg.Database.SQLitePath)
	if err != nil {
		log.Error("journal init failed", "path", cfg.Database.SQLitePath, "err", err)
		os.Exit(1)
	}
	defer jr.Close()
	health.SetSQLiteOK(true)
	log.Info("journal ready", "path", cfg.Database.SQLitePath)

	// ---- Redis state publisher (optional) ----
	var pub *statepub.Publisher
	if cfg.Redis.Enabled {
		pub, err = statepub.New(statepub.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis init failed, continuing without publisher", "err", err)
		} else {
			health.SetRedisConnected(true)
			defer pub.Close()
			log.Info("redis publisher ready", "addr", cfg.Redis.Addr)
		}
	}

	// ---- Core components ----
	market := marketdata.NewClient(marketdata.Config{
		BaseURL:      cfg.MarketData.BaseURL,
		APIKey:       cfg.MarketData.APIKey,
		HistoryLimit: cfg.MarketData.HistoryLimit,
	})
	advisor := oracle.NewClient(oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
	})
	engine := indicator.NewEngine(indicator.DefaultConfig())
	riskMgr := risk.NewManager(cfg.RiskParams())
	book := ledger.New(cfg.Trading.InitialBalance)
	feed := activity.New(cfg.Trading.ActivityCapacity)

	deps := bot.Deps{
		Market:     market,
		Oracle:     advisor,
		Indicators: engine,
		Risk:       riskMgr,
		Ledger:     book,
		Activity:   feed,
		Journal:    jr,
		Metrics:    prom,
		Health:     health,
	}
	if pub != nil {
		deps.Publisher = pub
	}
	trader := bot.New(bot.Config{
		Pairs:    cfg.Trading.Pairs,
		Interval: cfg.Interval(),
	}, deps)

	// ---- Liveness probes ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), jr.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, jr.DB(), 10*time.Second)
	}

	// ---- Daily counter reset at UTC midnight ----
	sched := cron.New(cron.WithLocation(time.UTC))
	if _, err := sched.AddFunc("0 0 * * *", func() {
		riskMgr.ResetDaily()
		log.Info("daily trade counters reset")
	}); err != nil {
		log.Error("daily reset schedule failed", "err", err)
		os.Exit(1)
	}
	sched.Start()

	// ---- API gateway & WebSocket stream ----
	hub := gateway.NewHub()
	go hub.Run(ctx, feed.Subscribe(256))
	apiSrv := gateway.NewServer(cfg.Server.APIAddr, gateway.Deps{
		Bot:      trader,
		Ledger:   book,
		Risk:     riskMgr,
		Activity: feed,
		Hub:      hub,
	})
	apiSrv.Start()

	if *autostart {
		trader.Start()
	}

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	// Stop waits for any in-flight cycle, so trades never half-apply.
	trader.Stop()
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
}
