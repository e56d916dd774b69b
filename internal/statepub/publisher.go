// Package statepub mirrors the bot's latest per-pair state into Redis
// so external dashboards can read it without touching the HTTP API.
// Publishing is best-effort: a Redis outage never affects a trading
// cycle.
package statepub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptobot/internal/indicator"
	"cryptobot/internal/model"
)

const (
	defaultTTL   = 30 * time.Minute
	writeTimeout = 2 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes latest-state JSON documents to Redis keys and
// mirrors each write on a pub/sub channel.
type Publisher struct {
	client *goredis.Client
}

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishSnapshot mirrors the latest indicator snapshot for a pair.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap indicator.Snapshot) {
	p.write(ctx, "bot:latest:indicators:"+snap.Pair, snap)
}

// PublishDecision mirrors the latest decision for a pair.
func (p *Publisher) PublishDecision(ctx context.Context, decision model.Decision) {
	p.write(ctx, "bot:latest:decision:"+decision.Pair, decision)
}

// PublishPortfolio mirrors the current portfolio view.
func (p *Publisher) PublishPortfolio(ctx context.Context, pf model.Portfolio) {
	p.write(ctx, "bot:latest:portfolio", pf)
}

// PublishTrade mirrors an executed trade on the pub/sub channel only;
// the durable audit trail lives in the journal.
func (p *Publisher) PublishTrade(ctx context.Context, trade model.Trade) {
	data, err := json.Marshal(trade)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.client.Publish(wctx, "pub:bot:trade", data).Err(); err != nil {
		slog.Warn("redis publish failed", "channel", "pub:bot:trade", "err", err)
	}
}

func (p *Publisher) write(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	pipe := p.client.Pipeline()
	pipe.Set(wctx, key, data, defaultTTL)
	pipe.Publish(wctx, "pub:"+key, data)
	if _, err := pipe.Exec(wctx); err != nil {
		slog.Warn("redis write failed", "key", key, "err", err)
	}
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
