package indicator

// MACD calculates Moving Average Convergence Divergence: the spread of
// a fast EMA over a slow EMA, with a signal EMA over that spread.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
}

// NewMACD creates a MACD indicator with the given periods
// (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
}

func (m *MACD) Line() float64      { return m.line }
func (m *MACD) Signal() float64    { return m.signal.Value() }
func (m *MACD) Histogram() float64 { return m.line - m.signal.Value() }
func (m *MACD) Ready() bool        { return m.slow.Ready() && m.signal.Ready() }

// LineReady reports whether the MACD line alone has enough history,
// even if the signal EMA is still warming up.
func (m *MACD) LineReady() bool { return m.slow.Ready() }
