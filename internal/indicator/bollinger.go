package indicator

// Bollinger calculates Bollinger Bands: an SMA middle band with
// upper/lower bands k standard deviations away.
type Bollinger struct {
	sma *SMA
	k   float64
}

// NewBollinger creates a Bollinger band indicator with the given
// period and band width in standard deviations (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		sma: NewSMA(period),
		k:   k,
	}
}

func (b *Bollinger) Update(price float64) { b.sma.Update(price) }

func (b *Bollinger) Middle() float64 { return b.sma.Value() }
func (b *Bollinger) Upper() float64  { return b.sma.Value() + b.k*b.sma.StdDev() }
func (b *Bollinger) Lower() float64  { return b.sma.Value() - b.k*b.sma.StdDev() }
func (b *Bollinger) Ready() bool     { return b.sma.Ready() }
