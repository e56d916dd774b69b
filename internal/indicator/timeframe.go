package indicator

import (
	"time"

	"cryptobot/internal/model"
)

// secondaryTimeframes are the resample buckets recomputed on top of the
// raw series. Order is fixed so snapshots stay deterministic.
var secondaryTimeframes = []struct {
	label string
	dur   time.Duration
}{
	{"1h", time.Hour},
	{"4h", 4 * time.Hour},
	{"1d", 24 * time.Hour},
}

// timeframeReadings resamples the series per timeframe (last value per
// bucket) and recomputes trend, RSI, and MACD direction independently.
// A timeframe whose bucket count is below its minimum is omitted.
func (e *Engine) timeframeReadings(points []model.PricePoint) []TimeframeReading {
	minBuckets := e.cfg.RSIPeriod + 1

	var out []TimeframeReading
	for _, tf := range secondaryTimeframes {
		closes := resampleCloses(points, tf.dur)
		if len(closes) < minBuckets {
			continue
		}

		rsi := NewRSI(e.cfg.RSIPeriod)
		macd := NewMACD(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
		for _, c := range closes {
			rsi.Update(c)
			macd.Update(c)
		}

		rd := TimeframeReading{
			Timeframe:     tf.label,
			RSI:           rsi.Value(),
			Samples:       len(closes),
			MACDDirection: "UNKNOWN",
		}
		if first := closes[0]; first != 0 {
			rd.TrendPct = (closes[len(closes)-1] - first) / first * 100
		}
		if macd.Ready() {
			switch {
			case macd.Histogram() > 0:
				rd.MACDDirection = "BULLISH"
			case macd.Histogram() < 0:
				rd.MACDDirection = "BEARISH"
			default:
				rd.MACDDirection = "NEUTRAL"
			}
		}
		out = append(out, rd)
	}
	return out
}

// resampleCloses buckets the series by truncated timestamp and keeps
// the last close per bucket. Input must be ascending; output preserves
// bucket order.
func resampleCloses(points []model.PricePoint, dur time.Duration) []float64 {
	var closes []float64
	var haveBucket bool
	var bucket time.Time
	for _, p := range points {
		b := p.TS.Truncate(dur)
		if !haveBucket || !b.Equal(bucket) {
			closes = append(closes, p.Close)
			bucket = b
			haveBucket = true
			continue
		}
		closes[len(closes)-1] = p.Close
	}
	return closes
}
