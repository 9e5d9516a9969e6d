package patterns

import (
	"fmt"

	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/models"
)

const VolumeIndicator = "Volume Spike"

// VolumeSpike fires when the current volume exceeds ratio times the average
// volume of the preceding candles.
type VolumeSpike struct{ base }

func NewVolumeSpike(d Deps) *VolumeSpike { return &VolumeSpike{newBase(d)} }

func (d *VolumeSpike) Name() string { return VolumeSpikeName }

func (d *VolumeSpike) Check(s *models.Series, symbol string) *models.Finding {
	th := d.cfg.ForSymbol(symbol)
	n := s.Len()
	if n < th.VolumeSMALength+1 {
		return nil
	}

	var sma []float64
	if d.augmenter != nil && d.augmenter.VolumeSMALength() == th.VolumeSMALength {
		sma = d.augmenter.VolumeSMA(s)
	} else {
		sma = indicators.SMA(s.Volumes(), th.VolumeSMALength)
	}

	baseline := sma[n-2]
	cur := s.Last()
	if !models.Defined(baseline) || baseline <= 0 || cur.Volume <= baseline*th.VolumeSpikeRatio {
		return nil
	}

	var signalType string
	switch {
	case isGreen(cur):
		signalType = "Bullish Volume Spike"
	case isRed(cur):
		signalType = "Bearish Volume Spike"
	default:
		signalType = "Neutral Volume Spike"
	}

	return d.finding(s, VolumeIndicator, signalType, map[string]any{
		"volume":         fmt.Sprintf("%.2f", cur.Volume),
		"average_volume": fmt.Sprintf("%.2f", baseline),
		"volume_ratio":   fmt.Sprintf("%.2fx", cur.Volume/baseline),
		"close":          formatPrice(cur.Close),
	})
}
