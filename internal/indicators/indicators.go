package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/models"
)

// Augmenter attaches the standard indicator columns to a series snapshot.
// Columns already present are never recomputed, so repeated calls on the same
// snapshot are free and return identical values.
type Augmenter struct {
	cfg config.IndicatorsConfig
}

// NewAugmenter creates an augmenter with the configured lengths.
func NewAugmenter(cfg config.IndicatorsConfig) *Augmenter {
	return &Augmenter{cfg: cfg}
}

// RSILength is the configured RSI period.
func (a *Augmenter) RSILength() int { return a.cfg.RSILength }

// ATRLength is the configured ATR period.
func (a *Augmenter) ATRLength() int { return a.cfg.ATRLength }

// VolumeSMALength is the configured volume average length.
func (a *Augmenter) VolumeSMALength() int { return a.cfg.VolumeSMALength }

func (a *Augmenter) RSIName() string       { return fmt.Sprintf("RSI_%d", a.cfg.RSILength) }
func (a *Augmenter) EMAFastName() string   { return fmt.Sprintf("EMA_%d", a.cfg.EMAFast) }
func (a *Augmenter) EMASlowName() string   { return fmt.Sprintf("EMA_%d", a.cfg.EMASlow) }
func (a *Augmenter) ATRName() string       { return fmt.Sprintf("ATR_%d", a.cfg.ATRLength) }
func (a *Augmenter) VolumeSMAName() string { return fmt.Sprintf("VOL_SMA_%d", a.cfg.VolumeSMALength) }

func (a *Augmenter) bbSuffix() string {
	return fmt.Sprintf("%d_%s", a.cfg.BBLength, trimFloat(a.cfg.BBStdDev))
}

func (a *Augmenter) BBUpperName() string  { return "BBU_" + a.bbSuffix() }
func (a *Augmenter) BBMiddleName() string { return "BBM_" + a.bbSuffix() }
func (a *Augmenter) BBLowerName() string  { return "BBL_" + a.bbSuffix() }

// Augment computes every missing indicator column and returns the series.
func (a *Augmenter) Augment(s *models.Series) *models.Series {
	a.RSI(s)
	a.EMAFast(s)
	a.EMASlow(s)
	a.ATR(s)
	a.VolumeSMA(s)
	a.Bollinger(s)
	return s
}

func (a *Augmenter) column(s *models.Series, name string, compute func() []float64) []float64 {
	if v, ok := s.Derived(name); ok {
		return v
	}
	return s.SetDerivedIfAbsent(name, compute())
}

// RSI returns the RSI column, computing it on first use.
func (a *Augmenter) RSI(s *models.Series) []float64 {
	return a.column(s, a.RSIName(), func() []float64 { return RSI(s.Closes(), a.cfg.RSILength) })
}

func (a *Augmenter) EMAFast(s *models.Series) []float64 {
	return a.column(s, a.EMAFastName(), func() []float64 { return EMA(s.Closes(), a.cfg.EMAFast) })
}

func (a *Augmenter) EMASlow(s *models.Series) []float64 {
	return a.column(s, a.EMASlowName(), func() []float64 { return EMA(s.Closes(), a.cfg.EMASlow) })
}

func (a *Augmenter) ATR(s *models.Series) []float64 {
	return a.column(s, a.ATRName(), func() []float64 {
		return ATR(s.Highs(), s.Lows(), s.Closes(), a.cfg.ATRLength)
	})
}

func (a *Augmenter) VolumeSMA(s *models.Series) []float64 {
	return a.column(s, a.VolumeSMAName(), func() []float64 { return SMA(s.Volumes(), a.cfg.VolumeSMALength) })
}

// Bollinger returns the upper, middle and lower band columns.
func (a *Augmenter) Bollinger(s *models.Series) (upper, middle, lower []float64) {
	if u, ok := s.Derived(a.BBUpperName()); ok {
		m, _ := s.Derived(a.BBMiddleName())
		l, _ := s.Derived(a.BBLowerName())
		return u, m, l
	}
	u, m, l := Bollinger(s.Closes(), a.cfg.BBLength, a.cfg.BBStdDev)
	return s.SetDerivedIfAbsent(a.BBUpperName(), u),
		s.SetDerivedIfAbsent(a.BBMiddleName(), m),
		s.SetDerivedIfAbsent(a.BBLowerName(), l)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// mask replaces the first lookback positions with NaN. talib leaves them as zero.
func mask(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

// RSI is the Wilder relative strength index. The first period values are undefined.
func RSI(closes []float64, period int) []float64 {
	if period < 2 || len(closes) <= period {
		return nanSlice(len(closes))
	}
	return mask(talib.Rsi(closes, period), period)
}

// EMA is the SMA-seeded exponential moving average. The first period-1 values are undefined.
func EMA(in []float64, period int) []float64 {
	if period < 1 || len(in) < period {
		return nanSlice(len(in))
	}
	return mask(talib.Ema(in, period), period-1)
}

// SMA is the simple moving average. The first period-1 values are undefined.
func SMA(in []float64, period int) []float64 {
	if period < 1 || len(in) < period {
		return nanSlice(len(in))
	}
	return mask(talib.Sma(in, period), period-1)
}

// ATR is the Wilder average true range. The first period values are undefined.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if period < 1 || len(closes) <= period {
		return nanSlice(len(closes))
	}
	return mask(talib.Atr(highs, lows, closes, period), period)
}

// Bollinger returns SMA-based bands at mult population standard deviations.
func Bollinger(closes []float64, period int, mult float64) (upper, middle, lower []float64) {
	if period < 2 || len(closes) < period {
		n := len(closes)
		return nanSlice(n), nanSlice(n), nanSlice(n)
	}
	u, m, l := talib.BBands(closes, period, mult, mult, talib.SMA)
	return mask(u, period-1), mask(m, period-1), mask(l, period-1)
}

func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%g", v)
}
