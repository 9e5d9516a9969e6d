package patterns

import (
	"fmt"
	"math"

	"github.com/Alias1177/signalwatch/models"
)

const MomentumIndicator = "Price/OI Spike"

// MomentumSpike fires when price and open interest both move sharply between
// the two most recent closed candles.
type MomentumSpike struct{ base }

func NewMomentumSpike(d Deps) *MomentumSpike { return &MomentumSpike{newBase(d)} }

func (d *MomentumSpike) Name() string { return MomentumSpikeName }

func (d *MomentumSpike) Check(s *models.Series, symbol string) *models.Finding {
	n := s.Len()
	if n < 2 {
		return nil
	}
	prev, cur := s.At(n-2), s.At(n-1)
	if prev.Close <= 0 || prev.OpenInterest <= 0 {
		return nil
	}

	th := d.cfg.ForSymbol(symbol)
	priceChange := cur.Close/prev.Close - 1
	oiChange := cur.OpenInterest/prev.OpenInterest - 1
	if math.Abs(oiChange) <= th.OIChange || math.Abs(priceChange) <= th.PriceChange {
		return nil
	}

	dir := direction(priceChange > 0)
	return d.finding(s, MomentumIndicator, dir+" Momentum Spike", map[string]any{
		"price_change":  formatPct(priceChange),
		"oi_change":     formatPct(oiChange),
		"current_price": formatPrice(cur.Close),
		"current_oi":    fmt.Sprintf("%.0f", cur.OpenInterest),
	})
}
