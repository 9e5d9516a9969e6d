package patterns

import (
	"github.com/Alias1177/signalwatch/models"
)

const OrderBlockIndicator = "Order Block Retest"

// OrderBlockRetest finds the latest displacement candle, takes the opposite
// colored candle before it as the order block and fires when the current
// candle trades back into that block.
type OrderBlockRetest struct{ base }

func NewOrderBlockRetest(d Deps) *OrderBlockRetest { return &OrderBlockRetest{newBase(d)} }

func (d *OrderBlockRetest) Name() string { return OrderBlockRetestName }

func (d *OrderBlockRetest) Check(s *models.Series, symbol string) *models.Finding {
	th := d.cfg.ForSymbol(symbol)
	n := s.Len()
	if n < d.atrLength()+2 {
		return nil
	}

	atr := d.atr(s)
	cur := s.Last()
	oldest := n - 1 - th.OrderBlockLookback
	if oldest < 1 {
		oldest = 1
	}

	for k := n - 2; k >= oldest; k-- {
		disp, block := s.At(k), s.At(k-1)
		if !models.Defined(atr[k]) || body(disp) <= atr[k]*th.OrderBlockATRMultiplier {
			continue
		}

		bullish := isGreen(disp) && isRed(block)
		bearish := isRed(disp) && isGreen(block)
		if !bullish && !bearish {
			continue
		}

		// Первая подходящая импульсная свеча, дальше назад не смотрим
		if !overlaps(cur, block.Low, block.High) {
			return nil
		}
		return d.finding(s, OrderBlockIndicator, direction(bullish)+" Order Block Retest", map[string]any{
			"ob_top":                  formatPrice(block.High),
			"ob_bottom":               formatPrice(block.Low),
			"displacement_body":       formatPrice(body(disp)),
			"atr":                     formatPrice(atr[k]),
			"bars_since_displacement": n - 1 - k,
		})
	}
	return nil
}
