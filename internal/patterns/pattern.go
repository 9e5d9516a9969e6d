package patterns

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/models"
)

// Registry names used in detectors.active.
const (
	MomentumSpikeName     = "MomentumSpikeSignal"
	FairValueGapName      = "FairValueGapSignal"
	RSIDivergenceName     = "RSIDivergenceSignal"
	BollingerBreakoutName = "BollingerBreakoutSignal"
	VolumeSpikeName       = "VolumeSpikeSignal"
	OrderBlockRetestName  = "OrderBlockRetestSignal"
)

// Detector recognizes one pattern over a series. Check returns nil when the
// pattern is absent or the series is too short to evaluate.
type Detector interface {
	Name() string
	Check(s *models.Series, symbol string) *models.Finding
}

// Deps are the shared collaborators handed to every detector factory.
type Deps struct {
	Config    config.DetectorsConfig
	Augmenter *indicators.Augmenter
	Context   *ContextBuilder
}

// Factory builds a detector from its dependencies.
type Factory func(Deps) Detector

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		MomentumSpikeName:     func(d Deps) Detector { return NewMomentumSpike(d) },
		FairValueGapName:      func(d Deps) Detector { return NewFairValueGap(d) },
		RSIDivergenceName:     func(d Deps) Detector { return NewRSIDivergence(d) },
		BollingerBreakoutName: func(d Deps) Detector { return NewBollingerBreakout(d) },
		VolumeSpikeName:       func(d Deps) Detector { return NewVolumeSpike(d) },
		OrderBlockRetestName:  func(d Deps) Detector { return NewOrderBlockRetest(d) },
	}
)

// Register adds or replaces a detector factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names lists registered detector names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named detectors in the given order. Unknown and
// duplicate names are returned separately and skipped.
func Build(names []string, deps Deps) ([]Detector, []string) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var (
		out     []Detector
		unknown []string
		seen    = make(map[string]bool)
	)
	for _, name := range names {
		f, ok := registry[name]
		if !ok || seen[name] {
			unknown = append(unknown, name)
			continue
		}
		seen[name] = true
		out = append(out, f(deps))
	}
	return out, unknown
}

// base carries what every built-in detector shares.
type base struct {
	cfg       config.DetectorsConfig
	augmenter *indicators.Augmenter
	context   *ContextBuilder
}

func newBase(d Deps) base {
	return base{cfg: d.Config, augmenter: d.Augmenter, context: d.Context}
}

// Without an Augmenter the detectors compute their own columns with the
// standard periods.
const (
	fallbackRSILength = 14
	fallbackATRLength = 14
)

func (b base) rsiLength() int {
	if b.augmenter != nil {
		return b.augmenter.RSILength()
	}
	return fallbackRSILength
}

func (b base) rsi(s *models.Series) []float64 {
	if b.augmenter != nil {
		return b.augmenter.RSI(s)
	}
	return indicators.RSI(s.Closes(), fallbackRSILength)
}

func (b base) atrLength() int {
	if b.augmenter != nil {
		return b.augmenter.ATRLength()
	}
	return fallbackATRLength
}

func (b base) atr(s *models.Series) []float64 {
	if b.augmenter != nil {
		return b.augmenter.ATR(s)
	}
	return indicators.ATR(s.Highs(), s.Lows(), s.Closes(), fallbackATRLength)
}

func (b base) finding(s *models.Series, indicator, signalType string, attrs map[string]any) *models.Finding {
	f := &models.Finding{Indicator: indicator, SignalType: signalType, Attributes: attrs}
	if b.context != nil {
		f.Context = b.context.Build(s)
	}
	return f
}

// formatPrice keeps two decimals for normal prices and more for sub-unit ones.
func formatPrice(v float64) string {
	if math.Abs(v) >= 1 || v == 0 {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.6f", v)
}

// formatPct renders a fraction as a signed percentage, 0.015 -> "+1.50%".
func formatPct(fraction float64) string {
	return fmt.Sprintf("%+.2f%%", fraction*100)
}

func direction(up bool) string {
	if up {
		return "Bullish"
	}
	return "Bearish"
}
