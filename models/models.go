package models

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrUnorderedSeries is returned when observations are not strictly ascending by open time.
var ErrUnorderedSeries = errors.New("observations must be strictly ascending by open time")

// Observation represents a single closed candle enriched with derivatives data
type Observation struct {
	OpenTime       time.Time `json:"open_time"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	OpenInterest   float64   `json:"open_interest"`
	LongShortRatio float64   `json:"long_short_ratio"`
	CVD            float64   `json:"cvd"`
}

// Series is the ordered observation history for one symbol and timeframe.
// Derived columns (indicators) live in a side table keyed by name and are
// aligned index-for-index with the observations.
type Series struct {
	Symbol    string
	Timeframe string

	obs []Observation

	mu      sync.RWMutex
	derived map[string][]float64
}

// NewSeries validates ordering and returns a series snapshot.
func NewSeries(symbol, timeframe string, obs []Observation) (*Series, error) {
	for i := 1; i < len(obs); i++ {
		if !obs[i].OpenTime.After(obs[i-1].OpenTime) {
			return nil, fmt.Errorf("%s %s index %d: %w", symbol, timeframe, i, ErrUnorderedSeries)
		}
	}
	return &Series{
		Symbol:    symbol,
		Timeframe: timeframe,
		obs:       obs,
		derived:   make(map[string][]float64),
	}, nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.obs) }

// At returns the observation at index i.
func (s *Series) At(i int) Observation { return s.obs[i] }

// Last returns the most recent observation.
func (s *Series) Last() Observation { return s.obs[len(s.obs)-1] }

// Observations returns the underlying observations. Callers must not mutate them.
func (s *Series) Observations() []Observation { return s.obs }

// Tail returns the last n observations (or all of them when fewer exist).
func (s *Series) Tail(n int) []Observation {
	if n >= len(s.obs) {
		return s.obs
	}
	return s.obs[len(s.obs)-n:]
}

func (s *Series) column(f func(Observation) float64) []float64 {
	out := make([]float64, len(s.obs))
	for i, o := range s.obs {
		out[i] = f(o)
	}
	return out
}

func (s *Series) Opens() []float64   { return s.column(func(o Observation) float64 { return o.Open }) }
func (s *Series) Highs() []float64   { return s.column(func(o Observation) float64 { return o.High }) }
func (s *Series) Lows() []float64    { return s.column(func(o Observation) float64 { return o.Low }) }
func (s *Series) Closes() []float64  { return s.column(func(o Observation) float64 { return o.Close }) }
func (s *Series) Volumes() []float64 { return s.column(func(o Observation) float64 { return o.Volume }) }

// Derived returns a derived column by name.
func (s *Series) Derived(name string) ([]float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.derived[name]
	return v, ok
}

// SetDerivedIfAbsent stores values under name unless a column already exists,
// and returns whichever column is stored afterwards.
func (s *Series) SetDerivedIfAbsent(name string, values []float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.derived[name]; ok {
		return existing
	}
	s.derived[name] = values
	return values
}

// DerivedNames lists the derived columns currently attached.
func (s *Series) DerivedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.derived))
	for k := range s.derived {
		names = append(names, k)
	}
	return names
}

// Defined reports whether an indicator value is defined (not NaN).
func Defined(v float64) bool { return !math.IsNaN(v) }

// Kline is the compact candle shape embedded in market context.
type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// KeyIndicators are the latest raw values of the series.
type KeyIndicators struct {
	Price          float64 `json:"price"`
	Volume         float64 `json:"volume"`
	OpenInterest   float64 `json:"open_interest"`
	CVD            float64 `json:"cvd"`
	LongShortRatio float64 `json:"long_short_ratio"`
}

// TechnicalSnapshot holds the latest indicator values; nil means undefined.
type TechnicalSnapshot struct {
	RSI14 *float64 `json:"rsi_14,omitempty"`
	EMA12 *float64 `json:"ema_12,omitempty"`
	EMA26 *float64 `json:"ema_26,omitempty"`
	ATR14 *float64 `json:"atr_14,omitempty"`
}

// MarketStructure describes where price sits inside the recent range.
type MarketStructure struct {
	Window          int     `json:"window"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	DistFromHighPct float64 `json:"dist_from_high_pct"`
	DistFromLowPct  float64 `json:"dist_from_low_pct"`
}

// MarketContext is the snapshot attached to every Finding
type MarketContext struct {
	RecentKlines []Kline           `json:"recent_klines"`
	Key          KeyIndicators     `json:"key_indicators"`
	Technical    TechnicalSnapshot `json:"technical_indicators"`
	Structure    MarketStructure   `json:"market_structure"`
}

// Finding is a detected market signal
type Finding struct {
	Indicator  string         `json:"indicator"`
	SignalType string         `json:"signal_type"`
	Attributes map[string]any `json:"attributes"`
	Context    *MarketContext `json:"market_context,omitempty"`
}

// Key returns the signal-state key for the finding.
func (f Finding) Key(symbol string) string {
	return fmt.Sprintf("%s-%s-%s", symbol, f.Indicator, f.SignalType)
}

// SignalRecord is the last admitted state of a signal key
type SignalRecord struct {
	Timestamp    float64 `json:"timestamp"`
	Finding      Finding `json:"signal_data"`
	TriggerCount int     `json:"trigger_count"`
}

// Time converts the stored epoch seconds into a time, rounded to microseconds.
func (r SignalRecord) Time() time.Time {
	return time.UnixMicro(int64(math.Round(r.Timestamp * 1e6)))
}

// EpochSeconds converts t into the stored timestamp representation.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
