package patterns

import (
	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/models"
)

// ContextBuilder produces the market snapshot attached to findings.
type ContextBuilder struct {
	augmenter       *indicators.Augmenter
	klines          int
	structureWindow int
}

func NewContextBuilder(cfg config.IndicatorsConfig, a *indicators.Augmenter) *ContextBuilder {
	return &ContextBuilder{augmenter: a, klines: cfg.ContextKlines, structureWindow: cfg.StructureWindow}
}

// Build snapshots the latest state of s. Undefined indicators are left nil.
func (b *ContextBuilder) Build(s *models.Series) *models.MarketContext {
	if s.Len() == 0 {
		return nil
	}
	last := s.Last()
	ctx := &models.MarketContext{
		Key: models.KeyIndicators{
			Price:          last.Close,
			Volume:         last.Volume,
			OpenInterest:   last.OpenInterest,
			CVD:            last.CVD,
			LongShortRatio: last.LongShortRatio,
		},
	}

	for _, o := range s.Tail(b.klines) {
		ctx.RecentKlines = append(ctx.RecentKlines, models.Kline{
			OpenTime: o.OpenTime,
			Open:     o.Open,
			High:     o.High,
			Low:      o.Low,
			Close:    o.Close,
			Volume:   o.Volume,
		})
	}

	if b.augmenter != nil {
		ctx.Technical = models.TechnicalSnapshot{
			RSI14: latest(b.augmenter.RSI(s)),
			EMA12: latest(b.augmenter.EMAFast(s)),
			EMA26: latest(b.augmenter.EMASlow(s)),
			ATR14: latest(b.augmenter.ATR(s)),
		}
	}

	ctx.Structure = structure(s.Tail(b.structureWindow), last.Close)
	return ctx
}

func latest(col []float64) *float64 {
	if len(col) == 0 || !models.Defined(col[len(col)-1]) {
		return nil
	}
	v := col[len(col)-1]
	return &v
}

func structure(window []models.Observation, price float64) models.MarketStructure {
	ms := models.MarketStructure{Window: len(window)}
	if len(window) == 0 {
		return ms
	}
	ms.High, ms.Low = window[0].High, window[0].Low
	for _, o := range window[1:] {
		if o.High > ms.High {
			ms.High = o.High
		}
		if o.Low < ms.Low {
			ms.Low = o.Low
		}
	}
	if ms.High != 0 {
		ms.DistFromHighPct = (price - ms.High) / ms.High * 100
	}
	if ms.Low != 0 {
		ms.DistFromLowPct = (price - ms.Low) / ms.Low * 100
	}
	return ms
}
