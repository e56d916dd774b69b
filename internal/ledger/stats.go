package ledger

import "cryptobot/internal/model"

// Stats summarizes trading performance. Everything here is derived by
// folding over the trade log and the realized-P/L records — nothing is
// stored redundantly where it could diverge from the log.
type Stats struct {
	TotalTrades    int     `json:"total_trades"`
	BuyTrades      int     `json:"buy_trades"`
	SellTrades     int     `json:"sell_trades"`
	TotalBoughtUSD float64 `json:"total_bought_usd"`
	TotalSoldUSD   float64 `json:"total_sold_usd"`
	NetFlowUSD     float64 `json:"net_flow_usd"`
	RealizedPnL    float64 `json:"realized_pnl"`
	WinningSells   int     `json:"winning_sells"`
	LosingSells    int     `json:"losing_sells"`
	WinRate        float64 `json:"win_rate"` // percent of sells with positive realized P/L
}

// Stats folds the trade history into a summary.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	for _, t := range l.trades {
		s.TotalTrades++
		switch t.Side {
		case model.SideBuy:
			s.BuyTrades++
			s.TotalBoughtUSD += t.USDValue
		case model.SideSell:
			s.SellTrades++
			s.TotalSoldUSD += t.USDValue
			if pnl, ok := l.realized[t.ID]; ok {
				s.RealizedPnL += pnl
				if pnl > 0 {
					s.WinningSells++
				} else if pnl < 0 {
					s.LosingSells++
				}
			}
		}
	}
	s.NetFlowUSD = s.TotalSoldUSD - s.TotalBoughtUSD
	if s.SellTrades > 0 {
		s.WinRate = float64(s.WinningSells) / float64(s.SellTrades) * 100
	}
	return s
}
