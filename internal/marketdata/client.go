// Package marketdata fetches quotes and price history from the
// external market-data HTTP API. The source may fail, rate-limit, or
// return partial data; callers degrade to skipping the pair for the
// cycle rather than crashing.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptobot/internal/model"
)

// ErrUnavailable wraps every transport, rate-limit, or malformed
// payload failure from the market-data source.
var ErrUnavailable = errors.New("marketdata: source unavailable")

// Config configures the market-data client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration // per-request; default 10s
	HistoryLimit int           // samples to request; default 200
}

// Client talks to the market-data API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a market-data client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type quoteResponse struct {
	Status  string `json:"status"`
	Symbols []struct {
		Symbol      string  `json:"symbol"`
		Last        float64 `json:"last"`
		Highest     float64 `json:"highest"`
		Lowest      float64 `json:"lowest"`
		Volume      float64 `json:"volume"`
		DailyChange float64 `json:"daily_change_percentage"`
	} `json:"symbols"`
}

type historyResponse struct {
	Data []struct {
		Timestamp int64   `json:"timestamp"` // unix seconds
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		Volume    float64 `json:"volume"`
	} `json:"data"`
}

// Snapshot fetches the latest quote plus history for one pair.
func (c *Client) Snapshot(ctx context.Context, pair string) (model.MarketSnapshot, error) {
	symbol := baseSymbol(pair)

	var quote quoteResponse
	if err := c.get(ctx, "/getData", url.Values{"symbol": {symbol}}, &quote); err != nil {
		return model.MarketSnapshot{}, err
	}
	if quote.Status != "success" || len(quote.Symbols) == 0 {
		return model.MarketSnapshot{}, fmt.Errorf("%w: empty quote for %s", ErrUnavailable, pair)
	}
	q := quote.Symbols[0]
	if q.Last <= 0 {
		return model.MarketSnapshot{}, fmt.Errorf("%w: non-positive price for %s", ErrUnavailable, pair)
	}

	var hist historyResponse
	err := c.get(ctx, "/getHistory", url.Values{
		"pair":  {pair},
		"limit": {fmt.Sprintf("%d", c.cfg.HistoryLimit)},
	}, &hist)
	if err != nil {
		return model.MarketSnapshot{}, err
	}

	history := make([]model.PricePoint, 0, len(hist.Data))
	for _, h := range hist.Data {
		if h.Close <= 0 {
			continue
		}
		history = append(history, model.PricePoint{
			TS:     time.Unix(h.Timestamp, 0).UTC(),
			Open:   h.Open,
			High:   h.High,
			Low:    h.Low,
			Close:  h.Close,
			Volume: h.Volume,
		})
	}

	return model.MarketSnapshot{
		Pair:      pair,
		Price:     q.Last,
		High24h:   q.Highest,
		Low24h:    q.Lowest,
		Volume24h: q.Volume,
		Change24h: q.DailyChange,
		FetchedAt: time.Now().UTC(),
		History:   history,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, endpoint, err)
	}
	return nil
}

// baseSymbol extracts "BTC" from "BTC/USD".
func baseSymbol(pair string) string {
	if i := strings.IndexByte(pair, '/'); i > 0 {
		return pair[:i]
	}
	return pair
}
