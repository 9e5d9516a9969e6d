package patterns

import (
	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/models"
)

const BollingerIndicator = "Bollinger Breakout"

// BollingerBreakout fires on the first close outside a band after a close inside it.
// Bands are computed per call with the symbol's own length and width.
type BollingerBreakout struct{ base }

func NewBollingerBreakout(d Deps) *BollingerBreakout { return &BollingerBreakout{newBase(d)} }

func (d *BollingerBreakout) Name() string { return BollingerBreakoutName }

func (d *BollingerBreakout) Check(s *models.Series, symbol string) *models.Finding {
	th := d.cfg.ForSymbol(symbol)
	n := s.Len()
	if n < th.BBLength+1 {
		return nil
	}

	upper, middle, lower := indicators.Bollinger(s.Closes(), th.BBLength, th.BBStdDev)
	t := n - 1
	if !models.Defined(upper[t-1]) || !models.Defined(lower[t-1]) {
		return nil
	}

	prev, cur := s.At(t-1), s.At(t)
	if prev.Close > upper[t-1] || prev.Close < lower[t-1] {
		return nil
	}

	attrs := map[string]any{
		"close":       formatPrice(cur.Close),
		"prev_close":  formatPrice(prev.Close),
		"upper_band":  formatPrice(upper[t]),
		"middle_band": formatPrice(middle[t]),
		"lower_band":  formatPrice(lower[t]),
	}
	switch {
	case cur.Close > upper[t]:
		return d.finding(s, BollingerIndicator, "Bullish Breakout", attrs)
	case cur.Close < lower[t]:
		return d.finding(s, BollingerIndicator, "Bearish Breakout", attrs)
	}
	return nil
}
