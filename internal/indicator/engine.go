// Package indicator converts raw price/volume history into technical
// indicator snapshots. The engine is a pure function of its input: it
// keeps no state between calls, and identical series yield identical
// snapshots.
package indicator

import (
	"errors"
	"sort"
	"time"

	"cryptobot/internal/model"
)

// ErrInsufficientData is returned when the series is shorter than the
// largest required indicator window.
var ErrInsufficientData = errors.New("indicator: insufficient price history")

// Config holds the indicator windows. Zero values fall back to the
// conventional defaults via DefaultConfig.
type Config struct {
	RSIPeriod       int     // default 14
	MACDFast        int     // default 12
	MACDSlow        int     // default 26
	MACDSignal      int     // default 9
	BollingerPeriod int     // default 20
	BollingerK      float64 // default 2
	Lookback        int     // volume / support-resistance window, default 20
}

// DefaultConfig returns the conventional indicator windows.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerK:      2,
		Lookback:        20,
	}
}

// MinSamples is the smallest series length producing a full snapshot,
// driven by the EMA-50 window.
const MinSamples = 50

// Engine computes indicator snapshots from price series.
type Engine struct {
	cfg Config
}

// NewEngine creates an indicator engine with the given config.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = def.MACDFast
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = def.MACDSlow
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = def.MACDSignal
	}
	if cfg.BollingerPeriod <= 0 {
		cfg.BollingerPeriod = def.BollingerPeriod
	}
	if cfg.BollingerK <= 0 {
		cfg.BollingerK = def.BollingerK
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	return &Engine{cfg: cfg}
}

// Compute produces one snapshot for the pair from the given series.
// The input is not mutated. Series shorter than MinSamples return
// ErrInsufficientData rather than a partial snapshot.
func (e *Engine) Compute(pair string, series []model.PricePoint) (Snapshot, error) {
	if len(series) < MinSamples {
		return Snapshot{}, ErrInsufficientData
	}

	points := series
	if !model.SortedAscending(points) {
		points = make([]model.PricePoint, len(series))
		copy(points, series)
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].TS.Before(points[j].TS)
		})
	}

	rsi := NewRSI(e.cfg.RSIPeriod)
	macd := NewMACD(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	boll := NewBollinger(e.cfg.BollingerPeriod, e.cfg.BollingerK)
	ema7 := NewEMA(7)
	ema20 := NewEMA(20)
	ema50 := NewEMA(50)

	for _, p := range points {
		rsi.Update(p.Close)
		macd.Update(p.Close)
		boll.Update(p.Close)
		ema7.Update(p.Close)
		ema20.Update(p.Close)
		ema50.Update(p.Close)
	}

	last := points[len(points)-1]

	snap := Snapshot{
		Pair:   pair,
		TS:     last.TS,
		Price:  last.Close,
		RSI:    rsiReading(rsi),
		MACD:   macdReading(macd),
		EMA7:   EMAReading{Value: ema7.Value(), Ready: ema7.Ready()},
		EMA20:  EMAReading{Value: ema20.Value(), Ready: ema20.Ready()},
		EMA50:  EMAReading{Value: ema50.Value(), Ready: ema50.Ready()},
		Trend:  trendReading(points),
		Volume: e.volumeReading(points),
		Levels: e.levelsReading(points),
	}
	snap.Bollinger = bollingerReading(boll, last.Close)
	snap.Timeframes = e.timeframeReadings(points)
	return snap, nil
}

func rsiReading(r *RSI) RSIReading {
	rd := RSIReading{Value: r.Value(), Ready: r.Ready()}
	switch {
	case !rd.Ready:
		rd.Signal = "NEUTRAL"
	case rd.Value > 70:
		rd.Signal = "OVERBOUGHT"
	case rd.Value < 30:
		rd.Signal = "OVERSOLD"
	default:
		rd.Signal = "NEUTRAL"
	}
	return rd
}

func macdReading(m *MACD) MACDReading {
	rd := MACDReading{
		Line:      m.Line(),
		Signal:    m.Signal(),
		Histogram: m.Histogram(),
		Ready:     m.Ready(),
	}
	switch {
	case !rd.Ready:
		rd.Trend = "NEUTRAL"
	case rd.Line > rd.Signal && rd.Histogram > 0:
		rd.Trend = "BULLISH"
	case rd.Line < rd.Signal && rd.Histogram < 0:
		rd.Trend = "BEARISH"
	default:
		rd.Trend = "NEUTRAL"
	}
	return rd
}

func bollingerReading(b *Bollinger, price float64) BollingerReading {
	rd := BollingerReading{
		Upper:  b.Upper(),
		Middle: b.Middle(),
		Lower:  b.Lower(),
		Ready:  b.Ready(),
	}
	rd.Width = rd.Upper - rd.Lower
	switch {
	case !rd.Ready:
		rd.Position = "UNKNOWN"
	case price > rd.Upper:
		rd.Position = "ABOVE_UPPER"
	case price < rd.Lower:
		rd.Position = "BELOW_LOWER"
	case price > rd.Middle:
		rd.Position = "UPPER_HALF"
	default:
		rd.Position = "LOWER_HALF"
	}
	return rd
}

// trendReading computes percent change against the newest sample at
// least N days older than the last one. Horizons the series does not
// span are reported absent.
func trendReading(points []model.PricePoint) TrendReading {
	last := points[len(points)-1]
	rd := TrendReading{Direction: "UNKNOWN"}

	if ref, ok := closeDaysAgo(points, 7); ok && ref != 0 {
		rd.Change7d = (last.Close - ref) / ref * 100
		rd.Has7d = true
	}
	if ref, ok := closeDaysAgo(points, 30); ok && ref != 0 {
		rd.Change30d = (last.Close - ref) / ref * 100
		rd.Has30d = true
	}

	if rd.Has7d {
		switch {
		case rd.Change7d > 5:
			rd.Direction = "STRONG_UPTREND"
		case rd.Change7d > 2:
			rd.Direction = "UPTREND"
		case rd.Change7d < -5:
			rd.Direction = "STRONG_DOWNTREND"
		case rd.Change7d < -2:
			rd.Direction = "DOWNTREND"
		default:
			rd.Direction = "SIDEWAYS"
		}
	}
	return rd
}

// closeDaysAgo finds the newest close at least n days before the last
// sample's timestamp.
func closeDaysAgo(points []model.PricePoint, n int) (float64, bool) {
	cutoff := points[len(points)-1].TS.Add(-time.Duration(n) * 24 * time.Hour)
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].TS.After(cutoff) {
			return points[i].Close, true
		}
	}
	return 0, false
}

func (e *Engine) volumeReading(points []model.PricePoint) VolumeReading {
	n := e.cfg.Lookback
	if len(points) < n {
		return VolumeReading{}
	}
	var sum float64
	for _, p := range points[len(points)-n:] {
		sum += p.Volume
	}
	avg := sum / float64(n)
	rd := VolumeReading{
		Current: points[len(points)-1].Volume,
		Average: avg,
	}
	if avg > 0 {
		rd.Ratio = rd.Current / avg
		rd.Ready = true
	}
	return rd
}

func (e *Engine) levelsReading(points []model.PricePoint) LevelsReading {
	n := e.cfg.Lookback
	if len(points) < n {
		return LevelsReading{}
	}
	window := points[len(points)-n:]
	lo, hi := window[0].Close, window[0].Close
	for _, p := range window[1:] {
		if p.Close < lo {
			lo = p.Close
		}
		if p.Close > hi {
			hi = p.Close
		}
	}
	return LevelsReading{Support: lo, Resistance: hi, Ready: true}
}
