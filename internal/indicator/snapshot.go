package indicator

import "time"

// A reading with Ready=false means the required window was unmet.
// Consumers must treat such readings as absent, never as zero.

// RSIReading is the RSI value with its overbought/oversold signal.
type RSIReading struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // OVERBOUGHT, OVERSOLD, NEUTRAL
	Ready  bool    `json:"ready"`
}

// MACDReading is the MACD line, signal line, and histogram.
type MACDReading struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Trend     string  `json:"trend"` // BULLISH, BEARISH, NEUTRAL
	Ready     bool    `json:"ready"`
}

// BollingerReading is the band envelope around the middle SMA.
type BollingerReading struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Width    float64 `json:"width"`    // upper - lower
	Position string  `json:"position"` // ABOVE_UPPER, UPPER_HALF, LOWER_HALF, BELOW_LOWER
	Ready    bool    `json:"ready"`
}

// EMAReading is a single exponential moving average value.
type EMAReading struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// TrendReading holds percent price change over 7 and 30 day horizons.
type TrendReading struct {
	Change7d  float64 `json:"change_7d"`
	Change30d float64 `json:"change_30d"`
	Has7d     bool    `json:"has_7d"`
	Has30d    bool    `json:"has_30d"`
	Direction string  `json:"direction"` // STRONG_UPTREND, UPTREND, SIDEWAYS, DOWNTREND, STRONG_DOWNTREND, UNKNOWN
}

// VolumeReading compares current volume against the lookback mean.
type VolumeReading struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Ratio   float64 `json:"ratio"` // current / average
	Ready   bool    `json:"ready"`
}

// LevelsReading holds support/resistance over the lookback window.
type LevelsReading struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Ready      bool    `json:"ready"`
}

// TimeframeReading is the per-timeframe recomputation over resampled
// buckets. Timeframes without enough buckets are omitted from the
// snapshot entirely, not fabricated.
type TimeframeReading struct {
	Timeframe     string  `json:"timeframe"` // "1h", "4h", "1d"
	TrendPct      float64 `json:"trend_pct"`
	RSI           float64 `json:"rsi"`
	MACDDirection string  `json:"macd_direction"` // BULLISH, BEARISH, NEUTRAL, UNKNOWN
	Samples       int     `json:"samples"`
}

// Snapshot is one immutable indicator computation for a pair. TS is
// the timestamp of the last input sample, so identical input series
// produce identical snapshots.
type Snapshot struct {
	Pair       string             `json:"pair"`
	TS         time.Time          `json:"ts"`
	Price      float64            `json:"price"` // last close
	RSI        RSIReading         `json:"rsi"`
	MACD       MACDReading        `json:"macd"`
	Bollinger  BollingerReading   `json:"bollinger"`
	EMA7       EMAReading         `json:"ema_7"`
	EMA20      EMAReading         `json:"ema_20"`
	EMA50      EMAReading         `json:"ema_50"`
	Trend      TrendReading       `json:"trend"`
	Volume     VolumeReading      `json:"volume"`
	Levels     LevelsReading      `json:"levels"`
	Timeframes []TimeframeReading `json:"timeframes,omitempty"`
}
