package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptobot/internal/model"
)

func TestDecide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decide" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Pair != "BTC/USD" || req.Model != "test-model" {
			t.Errorf("request not populated: %+v", req)
		}
		json.NewEncoder(w).Encode(model.Decision{
			Action:     model.ActionBuy,
			Confidence: 0.8,
			RiskLevel:  model.RiskMedium,
			Reasoning:  "oversold bounce",
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "test-model"})
	decision, err := client.Decide(context.Background(), Request{Pair: "BTC/USD", Price: 50000})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Action != model.ActionBuy || decision.Confidence != 0.8 {
		t.Errorf("decision mismatch: %+v", decision)
	}
	if decision.Pair != "BTC/USD" {
		t.Errorf("pair should be filled from the request, got %q", decision.Pair)
	}
}

func TestDecide_SchemaMismatch(t *testing.T) {
	cases := map[string]model.Decision{
		"bad action":     {Action: "MAYBE", Confidence: 0.5},
		"bad confidence": {Action: model.ActionBuy, Confidence: 1.5},
		"bad risk level": {Action: model.ActionBuy, Confidence: 0.5, RiskLevel: "SPICY"},
	}
	for name, d := range cases {
		d := d
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(d)
		}))
		client := NewClient(Config{BaseURL: srv.URL})
		_, err := client.Decide(context.Background(), Request{Pair: "BTC/USD"})
		srv.Close()
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("%s: expected ErrUnavailable, got %v", name, err)
		}
	}
}

func TestDecide_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Decide(context.Background(), Request{Pair: "BTC/USD"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
