// Package config loads application configuration from a YAML file with
// environment variable overrides. Secrets (API keys) normally come from
// the environment; everything else has a usable default so the bot can
// start from an empty file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cryptobot/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	Trading struct {
		Pairs            []string `yaml:"pairs"`
		Interval         string   `yaml:"interval"` // Go duration, e.g. "15m"
		InitialBalance   float64  `yaml:"initial_balance_usd"`
		ActivityCapacity int      `yaml:"activity_capacity"`
	} `yaml:"trading"`

	Risk struct {
		BaseTradeFraction float64              `yaml:"base_trade_fraction"`
		MaxPositionSize   float64              `yaml:"max_position_size"`
		StopLossPct       float64              `yaml:"stop_loss_pct"`
		TakeProfitPct     float64              `yaml:"take_profit_pct"`
		MaxDailyTrades    int                  `yaml:"max_daily_trades"`
		Cooldown          string               `yaml:"cooldown"` // Go duration, e.g. "1h"
		AllowExtend       bool                 `yaml:"allow_extend"`
		Levels            risk.LevelThresholds `yaml:"levels"`
	} `yaml:"risk"`

	MarketData struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"market_data"`

	Oracle struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"oracle"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Server struct {
		APIAddr     string `yaml:"api_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TRADING_PAIRS"); v != "" {
		cfg.Trading.Pairs = splitPairs(v)
	}
	if v := os.Getenv("TRADING_INTERVAL"); v != "" {
		cfg.Trading.Interval = v
	}
	if v := os.Getenv("INITIAL_BALANCE_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.InitialBalance = f
		}
	}
	if v := os.Getenv("MARKETDATA_BASE_URL"); v != "" {
		cfg.MarketData.BaseURL = v
	}
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		cfg.MarketData.APIKey = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Server.APIAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Trading.Pairs) == 0 {
		c.Trading.Pairs = []string{"BTC/USD", "ETH/USD", "SOL/USD"}
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "15m"
	}
	if c.Trading.InitialBalance == 0 {
		c.Trading.InitialBalance = 10000
	}
	if c.Trading.ActivityCapacity == 0 {
		c.Trading.ActivityCapacity = 100
	}

	if c.Risk.BaseTradeFraction == 0 {
		c.Risk.BaseTradeFraction = 0.10
	}
	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = 0.25
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.05
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.10
	}
	if c.Risk.MaxDailyTrades == 0 {
		c.Risk.MaxDailyTrades = 10
	}
	if c.Risk.Cooldown == "" {
		c.Risk.Cooldown = "1h"
	}
	if c.Risk.Levels == (risk.LevelThresholds{}) {
		c.Risk.Levels = risk.DefaultLevelThresholds()
	}

	if c.MarketData.BaseURL == "" {
		c.MarketData.BaseURL = "https://api.freecryptoapi.com/v1"
	}
	if c.MarketData.HistoryLimit == 0 {
		c.MarketData.HistoryLimit = 200
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/trades.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Server.APIAddr == "" {
		c.Server.APIAddr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that all required fields parse and make sense.
func (c *Config) Validate() error {
	if len(c.Trading.Pairs) == 0 {
		return fmt.Errorf("trading.pairs must not be empty")
	}
	if _, err := time.ParseDuration(c.Trading.Interval); err != nil {
		return fmt.Errorf("trading.interval: %w", err)
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance_usd must be positive")
	}
	if c.Risk.BaseTradeFraction <= 0 || c.Risk.BaseTradeFraction > 1 {
		return fmt.Errorf("risk.base_trade_fraction must be in (0, 1]")
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("risk.max_position_size must be in (0, 1]")
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0, 1)")
	}
	if c.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("risk.take_profit_pct must be positive")
	}
	if c.Risk.MaxDailyTrades <= 0 {
		return fmt.Errorf("risk.max_daily_trades must be positive")
	}
	if _, err := time.ParseDuration(c.Risk.Cooldown); err != nil {
		return fmt.Errorf("risk.cooldown: %w", err)
	}
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("market_data.base_url is required")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	return nil
}

// Interval returns the parsed cycle interval. Call after Validate.
func (c *Config) Interval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.Interval)
	return d
}

// RiskParams maps the risk section onto the risk manager's parameters.
// Call after Validate.
func (c *Config) RiskParams() risk.Params {
	cooldown, _ := time.ParseDuration(c.Risk.Cooldown)
	return risk.Params{
		BaseTradeFraction: c.Risk.BaseTradeFraction,
		MaxPositionSize:   c.Risk.MaxPositionSize,
		StopLossPct:       c.Risk.StopLossPct,
		TakeProfitPct:     c.Risk.TakeProfitPct,
		MaxDailyTrades:    c.Risk.MaxDailyTrades,
		Cooldown:          cooldown,
		AllowExtend:       c.Risk.AllowExtend,
		Levels:            c.Risk.Levels,
	}
}

func splitPairs(s string) []string {
	parts := strings.Split(s, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}
