// Package oracle consults the external decision source. The source is
// an opaque advisor: the core hands it the indicator snapshot, the
// open position, and recent performance, and gets back a structured
// verdict. Responses are schema-validated; anything malformed or
// unreachable surfaces as ErrUnavailable and the orchestrator treats
// it as an implicit HOLD.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/model"
)

// ErrUnavailable wraps every transport or schema failure from the
// decision source.
var ErrUnavailable = errors.New("oracle: decision source unavailable")

// Config configures the decision source client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string        // advisory model identifier passed through to the source
	Timeout time.Duration // per-request; default 30s
}

// Request is the context document sent to the decision source.
type Request struct {
	Pair       string             `json:"pair"`
	Model      string             `json:"model,omitempty"`
	Price      float64            `json:"price"`
	High24h    float64            `json:"high_24h"`
	Low24h     float64            `json:"low_24h"`
	Change24h  float64            `json:"change_24h"`
	Volume24h  float64            `json:"volume_24h"`
	Indicators indicator.Snapshot `json:"indicators"`
	Position   *model.Position    `json:"position,omitempty"`
	Stats      ledger.Stats       `json:"stats"`
}

// Client talks to the decision source API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a decision source client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Decide requests a verdict for the pair. The returned decision has
// passed schema validation.
func (c *Client) Decide(ctx context.Context, req Request) (model.Decision, error) {
	req.Model = c.cfg.Model

	body, err := json.Marshal(req)
	if err != nil {
		return model.Decision{}, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/decide", bytes.NewReader(body))
	if err != nil {
		return model.Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Decision{}, fmt.Errorf("%w: source returned %d", ErrUnavailable, resp.StatusCode)
	}

	var decision model.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return model.Decision{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if decision.Pair == "" {
		decision.Pair = req.Pair
	}
	// Schema mismatch is rejected outright, never best-effort parsed.
	if err := decision.Validate(); err != nil {
		return model.Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decision, nil
}
