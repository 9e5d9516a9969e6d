package patterns

import (
	"fmt"

	"github.com/Alias1177/signalwatch/models"
)

const DivergenceIndicator = "RSI Divergence"

// RSIDivergence compares the pivot confirmed by the latest candle with the
// nearest earlier pivot of the same kind.
type RSIDivergence struct{ base }

func NewRSIDivergence(d Deps) *RSIDivergence { return &RSIDivergence{newBase(d)} }

func (d *RSIDivergence) Name() string { return RSIDivergenceName }

func (d *RSIDivergence) Check(s *models.Series, symbol string) *models.Finding {
	th := d.cfg.ForSymbol(symbol)
	n := s.Len()
	if n < d.rsiLength()+th.DivergenceWindow+5 {
		return nil
	}

	rsi := d.rsi(s)
	p := n - 2
	oldest := p - th.DivergenceWindow
	if oldest < 1 {
		oldest = 1
	}

	if isPivotLow(s, p) {
		if q, ok := findPrevious(s, p, oldest, isPivotLow); ok &&
			models.Defined(rsi[p]) && models.Defined(rsi[q]) &&
			s.At(p).Low < s.At(q).Low && rsi[p] > rsi[q] {
			return d.finding(s, DivergenceIndicator, "Bullish Divergence", map[string]any{
				"pivot_price":      formatPrice(s.At(p).Low),
				"prev_pivot_price": formatPrice(s.At(q).Low),
				"pivot_rsi":        fmt.Sprintf("%.2f", rsi[p]),
				"prev_pivot_rsi":   fmt.Sprintf("%.2f", rsi[q]),
				"bars_between":     p - q,
			})
		}
	}

	if isPivotHigh(s, p) {
		if q, ok := findPrevious(s, p, oldest, isPivotHigh); ok &&
			models.Defined(rsi[p]) && models.Defined(rsi[q]) &&
			s.At(p).High > s.At(q).High && rsi[p] < rsi[q] {
			return d.finding(s, DivergenceIndicator, "Bearish Divergence", map[string]any{
				"pivot_price":      formatPrice(s.At(p).High),
				"prev_pivot_price": formatPrice(s.At(q).High),
				"pivot_rsi":        fmt.Sprintf("%.2f", rsi[p]),
				"prev_pivot_rsi":   fmt.Sprintf("%.2f", rsi[q]),
				"bars_between":     p - q,
			})
		}
	}
	return nil
}

func isPivotLow(s *models.Series, i int) bool {
	return s.At(i).Low < s.At(i-1).Low && s.At(i).Low < s.At(i+1).Low
}

func isPivotHigh(s *models.Series, i int) bool {
	return s.At(i).High > s.At(i-1).High && s.At(i).High > s.At(i+1).High
}

// findPrevious returns the nearest pivot before p, no older than oldest.
func findPrevious(s *models.Series, p, oldest int, pivot func(*models.Series, int) bool) (int, bool) {
	for q := p - 2; q >= oldest; q-- {
		if pivot(s, q) {
			return q, true
		}
	}
	return 0, false
}
