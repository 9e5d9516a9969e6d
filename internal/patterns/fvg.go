package patterns

import (
	"github.com/Alias1177/signalwatch/models"
)

const FVGIndicator = "Fair Value Gap Rebalance"

type gap struct {
	bullish    bool
	bottom     float64
	top        float64
	completion int
}

// FairValueGap looks for the most recent three-candle imbalance, a later
// candle trading back into it and a reversal candle confirming the rejection.
type FairValueGap struct{ base }

func NewFairValueGap(d Deps) *FairValueGap { return &FairValueGap{newBase(d)} }

func (d *FairValueGap) Name() string { return FairValueGapName }

func (d *FairValueGap) Check(s *models.Series, symbol string) *models.Finding {
	th := d.cfg.ForSymbol(symbol)
	if s.Len() < th.FVGMinHistory {
		return nil
	}

	g, ok := findGap(s, th.FVGLookback)
	if !ok {
		return nil
	}

	// Ищем ребаланс после формирования гэпа и свечу подтверждения за ним
	for j := g.completion + 1; j < s.Len()-1; j++ {
		rebalance, confirm := s.At(j), s.At(j+1)
		if !overlaps(rebalance, g.bottom, g.top) {
			continue
		}

		switch {
		case g.bullish && isHammer(confirm, th.WickBodyRatio):
			return d.finding(s, FVGIndicator, "Bullish Reversal Confirmation", map[string]any{
				"fvg_top":             formatPrice(g.top),
				"fvg_bottom":          formatPrice(g.bottom),
				"confirmation_candle": ShapeHammer,
				"rebalance_low":       formatPrice(rebalance.Low),
				"confirmation_close":  formatPrice(confirm.Close),
			})
		case !g.bullish && isShootingStar(confirm, th.WickBodyRatio):
			return d.finding(s, FVGIndicator, "Bearish Reversal Confirmation", map[string]any{
				"fvg_top":             formatPrice(g.top),
				"fvg_bottom":          formatPrice(g.bottom),
				"confirmation_candle": ShapeShootingStar,
				"rebalance_high":      formatPrice(rebalance.High),
				"confirmation_close":  formatPrice(confirm.Close),
			})
		}
	}
	return nil
}

// findGap scans windows (i-1, i, i+1) from the newest backwards and returns the
// first gap found. Only windows starting after n-lookback are scanned.
func findGap(s *models.Series, lookback int) (gap, bool) {
	n := s.Len()
	oldest := n - lookback
	if oldest < 0 {
		oldest = 0
	}
	for first := n - 3; first > oldest; first-- {
		c1, c3 := s.At(first), s.At(first+2)
		if c1.High < c3.Low {
			return gap{bullish: true, bottom: c1.High, top: c3.Low, completion: first + 2}, true
		}
		if c1.Low > c3.High {
			return gap{bullish: false, bottom: c3.High, top: c1.Low, completion: first + 2}, true
		}
	}
	return gap{}, false
}
