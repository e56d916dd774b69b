package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Trading.Pairs) == 0 {
		t.Error("default pairs missing")
	}
	if cfg.Trading.InitialBalance != 10000 {
		t.Errorf("initial balance default: want 10000, got %v", cfg.Trading.InitialBalance)
	}
	if cfg.Interval() != 15*time.Minute {
		t.Errorf("interval default: want 15m, got %v", cfg.Interval())
	}
	if cfg.Risk.MaxDailyTrades != 10 {
		t.Errorf("max daily trades default: want 10, got %d", cfg.Risk.MaxDailyTrades)
	}
	if cfg.Risk.Levels.MediumScore == 0 {
		t.Error("level thresholds should default")
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
trading:
  pairs: ["BTC/USD"]
  interval: 5m
  initial_balance_usd: 2500
risk:
  stop_loss_pct: 0.03
oracle:
  base_url: http://file.example
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRADING_PAIRS", "ETH/USD, SOL/USD")
	t.Setenv("ORACLE_BASE_URL", "http://env.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Env beats file; file beats defaults.
	if len(cfg.Trading.Pairs) != 2 || cfg.Trading.Pairs[0] != "ETH/USD" || cfg.Trading.Pairs[1] != "SOL/USD" {
		t.Errorf("env pairs override failed: %v", cfg.Trading.Pairs)
	}
	if cfg.Oracle.BaseURL != "http://env.example" {
		t.Errorf("env oracle override failed: %v", cfg.Oracle.BaseURL)
	}
	if cfg.Interval() != 5*time.Minute {
		t.Errorf("file interval: want 5m, got %v", cfg.Interval())
	}
	if cfg.Trading.InitialBalance != 2500 {
		t.Errorf("file balance: want 2500, got %v", cfg.Trading.InitialBalance)
	}
	if cfg.Risk.StopLossPct != 0.03 {
		t.Errorf("file stop loss: want 0.03, got %v", cfg.Risk.StopLossPct)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	params := cfg.RiskParams()
	if params.StopLossPct != 0.03 || params.Cooldown != time.Hour {
		t.Errorf("risk params mapping: %+v", params)
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg, _ := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		cfg.Oracle.BaseURL = "http://oracle.example"
		return cfg
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}

	cfg = base()
	cfg.Trading.Interval = "often"
	if err := cfg.Validate(); err == nil {
		t.Error("bad interval should fail validation")
	}

	cfg = base()
	cfg.Risk.BaseTradeFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("fraction > 1 should fail validation")
	}

	cfg = base()
	cfg.Oracle.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing oracle URL should fail validation")
	}
}
