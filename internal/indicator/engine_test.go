package indicator

import (
	"math"
	"reflect"
	"testing"
	"time"

	"cryptobot/internal/model"
)

var baseTS = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// makeSeries builds n hourly samples where close = price(i).
func makeSeries(n int, price func(i int) float64) []model.PricePoint {
	points := make([]model.PricePoint, n)
	for i := 0; i < n; i++ {
		c := price(i)
		points[i] = model.PricePoint{
			TS:     baseTS.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return points
}

func TestCompute_InsufficientData(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	series := makeSeries(MinSamples-1, func(i int) float64 { return 100 })

	if _, err := engine.Compute("BTC/USD", series); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestCompute_ConstantSeries(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	snap, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 { return 100 }))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if math.Abs(snap.Bollinger.Middle-100) > 1e-9 {
		t.Errorf("expected middle band 100, got %v", snap.Bollinger.Middle)
	}
	if snap.Bollinger.Width > 1e-9 {
		t.Errorf("expected zero band width, got %v", snap.Bollinger.Width)
	}
	for name, ema := range map[string]EMAReading{"ema7": snap.EMA7, "ema20": snap.EMA20, "ema50": snap.EMA50} {
		if !ema.Ready {
			t.Errorf("%s not ready", name)
		}
		if math.Abs(ema.Value-100) > 1e-9 {
			t.Errorf("%s: expected 100, got %v", name, ema.Value)
		}
	}
	if snap.TS != baseTS.Add(59*time.Hour) {
		t.Errorf("snapshot TS should be the last sample's TS, got %v", snap.TS)
	}
}

func TestCompute_RSIBounds(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	// Alternating gains and losses of varying size.
	snap, err := engine.Compute("BTC/USD", makeSeries(80, func(i int) float64 {
		return 100 + 5*math.Sin(float64(i))
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !snap.RSI.Ready {
		t.Fatal("RSI should be ready with 80 samples")
	}
	if snap.RSI.Value < 0 || snap.RSI.Value > 100 {
		t.Errorf("RSI out of bounds: %v", snap.RSI.Value)
	}
}

func TestCompute_RSIExtremes(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	up, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 {
		return 100 + float64(i)
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(up.RSI.Value-100) > 1e-9 {
		t.Errorf("all-gains RSI: expected 100, got %v", up.RSI.Value)
	}
	if up.RSI.Signal != "OVERBOUGHT" {
		t.Errorf("expected OVERBOUGHT, got %s", up.RSI.Signal)
	}

	down, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 {
		return 200 - float64(i)
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(down.RSI.Value) > 1e-9 {
		t.Errorf("all-losses RSI: expected 0, got %v", down.RSI.Value)
	}
	if down.RSI.Signal != "OVERSOLD" {
		t.Errorf("expected OVERSOLD, got %s", down.RSI.Signal)
	}
}

func TestCompute_BollingerKnownValues(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	// Closes 1..60; the 20-sample window is 41..60.
	snap, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 {
		return float64(i + 1)
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	wantMid := 50.5
	// Population stddev of 20 consecutive integers: sqrt((20^2-1)/12).
	wantStd := math.Sqrt(399.0 / 12.0)
	if math.Abs(snap.Bollinger.Middle-wantMid) > 1e-9 {
		t.Errorf("middle: want %v, got %v", wantMid, snap.Bollinger.Middle)
	}
	if math.Abs(snap.Bollinger.Upper-(wantMid+2*wantStd)) > 1e-9 {
		t.Errorf("upper: want %v, got %v", wantMid+2*wantStd, snap.Bollinger.Upper)
	}
	if math.Abs(snap.Bollinger.Lower-(wantMid-2*wantStd)) > 1e-9 {
		t.Errorf("lower: want %v, got %v", wantMid-2*wantStd, snap.Bollinger.Lower)
	}
	// 60 < 50.5 + 2*std (~62.03): inside the band, above the middle.
	if snap.Bollinger.Position != "UPPER_HALF" {
		t.Errorf("price 60 should sit in the upper half, got %s", snap.Bollinger.Position)
	}

	// A final spike through the band: 19 closes at 100 then 110.
	// Mean 100.5, std sqrt(4.75), upper ~104.86 < 110.
	spike, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 {
		if i == 59 {
			return 110
		}
		return 100
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if spike.Bollinger.Position != "ABOVE_UPPER" {
		t.Errorf("price 110 should breach the upper band, got %s", spike.Bollinger.Position)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	series := makeSeries(100, func(i int) float64 {
		return 100 + 3*math.Sin(float64(i)/4)
	})

	first, err := engine.Compute("BTC/USD", series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := engine.Compute("BTC/USD", series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input should yield identical snapshots")
	}
}

func TestCompute_UnsortedInputNotMutated(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	sorted := makeSeries(60, func(i int) float64 { return 100 + float64(i%7) })

	shuffled := make([]model.PricePoint, len(sorted))
	copy(shuffled, sorted)
	for i := 0; i < len(shuffled)-1; i += 2 {
		shuffled[i], shuffled[i+1] = shuffled[i+1], shuffled[i]
	}
	backup := make([]model.PricePoint, len(shuffled))
	copy(backup, shuffled)

	fromSorted, err := engine.Compute("BTC/USD", sorted)
	if err != nil {
		t.Fatalf("Compute sorted: %v", err)
	}
	fromShuffled, err := engine.Compute("BTC/USD", shuffled)
	if err != nil {
		t.Fatalf("Compute shuffled: %v", err)
	}

	if !reflect.DeepEqual(fromSorted, fromShuffled) {
		t.Error("order of input samples should not change the snapshot")
	}
	if !reflect.DeepEqual(shuffled, backup) {
		t.Error("Compute mutated its input")
	}
}

func TestCompute_TrendHorizonAbsent(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	// 60 hourly samples span 2.5 days: no 7d reference exists.
	short, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 { return 100 }))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if short.Trend.Has7d || short.Trend.Has30d {
		t.Errorf("no trend horizons should be present: %+v", short.Trend)
	}
	if short.Trend.Direction != "UNKNOWN" {
		t.Errorf("direction without a 7d reference should be UNKNOWN, got %s", short.Trend.Direction)
	}

	// 200 hourly samples span 8+ days: 7d present, 30d still absent.
	long, err := engine.Compute("BTC/USD", makeSeries(200, func(i int) float64 { return 100 }))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !long.Trend.Has7d {
		t.Error("7d trend should be present for an 8-day series")
	}
	if long.Trend.Has30d {
		t.Error("30d trend should be absent for an 8-day series")
	}
}

func TestCompute_TimeframeOmission(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	// 60 hourly samples: 60 1h buckets, 15 4h buckets, 3 1d buckets.
	// With RSIPeriod 14 the 1d timeframe must be omitted.
	snap, err := engine.Compute("BTC/USD", makeSeries(60, func(i int) float64 {
		return 100 + float64(i%5)
	}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	got := map[string]bool{}
	for _, tf := range snap.Timeframes {
		got[tf.Timeframe] = true
	}
	if !got["1h"] || !got["4h"] {
		t.Errorf("expected 1h and 4h timeframes, got %v", got)
	}
	if got["1d"] {
		t.Error("1d timeframe should be omitted with only 3 daily buckets")
	}
}
