package signalstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/models"
)

// Reason explains a decision.
type Reason string

const (
	ReasonFirstSeen       Reason = "first_seen"
	ReasonChanged         Reason = "materially_changed"
	ReasonCooldownElapsed Reason = "cooldown_elapsed"
	ReasonCooldownActive  Reason = "cooldown_active"
)

// Decision is the engine's verdict for one finding.
type Decision struct {
	Admit bool
	// Previous is the last admitted finding for the key, nil on first sight.
	Previous     *models.Finding
	Similarity   Similarity
	Reason       Reason
	TriggerCount int
	Cooldown     time.Duration
	Elapsed      time.Duration
}

// Engine decides whether a finding is new enough to alert on. Decisions are
// serialized, so one decision (including its write) completes before the next
// one starts.
type Engine struct {
	mu      sync.Mutex
	cfg     config.SignalStateConfig
	store   Store
	records map[string]models.SignalRecord
	now     func() time.Time
	log     zerolog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine loads the persisted table. A load failure is logged and the
// engine starts empty.
func NewEngine(ctx context.Context, cfg config.SignalStateConfig, store Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		records: map[string]models.SignalRecord{},
		now:     time.Now,
		log:     log.With().Str("component", "signalstate").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	records, err := store.Load(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("could not load signal state, starting empty")
		return e
	}
	e.records = records
	e.log.Info().Int("records", len(records)).Msg("signal state loaded")
	return e
}

// ShouldSend decides emit-or-suppress for f and updates the table on admission.
func (e *Engine) ShouldSend(ctx context.Context, symbol string, f models.Finding) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := f.Key(symbol)
	now := e.now()
	logger := e.log.With().Str("key", key).Logger()

	prev, seen := e.records[key]
	if !seen {
		e.admit(ctx, key, f, now, 1)
		logger.Info().Msg("new signal")
		return Decision{Admit: true, Reason: ReasonFirstSeen, TriggerCount: 1}
	}

	previous := prev.Finding
	elapsed := now.Sub(prev.Time())
	if elapsed < 0 {
		elapsed = 0
	}

	d := Decision{Previous: &previous, Elapsed: elapsed}
	d.Similarity = Compare(prev.Finding, f, e.cfg)

	switch d.Similarity {
	case Different:
		d.Admit, d.Reason, d.TriggerCount = true, ReasonChanged, 1
		e.admit(ctx, key, f, now, 1)
		logger.Info().Msg("signal changed materially, count reset")
		return d

	case Similar:
		d.Cooldown = Cooldown(e.cfg.FVGCooldownMinutes, e.cfg.BackoffFactor, e.cfg.MaxCooldownMinutes, prev.TriggerCount)
		if elapsed >= d.Cooldown {
			d.Admit, d.Reason, d.TriggerCount = true, ReasonCooldownElapsed, prev.TriggerCount+1
			e.admit(ctx, key, f, now, d.TriggerCount)
		} else {
			d.Reason, d.TriggerCount = ReasonCooldownActive, prev.TriggerCount
		}

	default:
		d.Cooldown = Cooldown(e.cfg.SignalCooldownMinutes, 1, 0, 1)
		if elapsed >= d.Cooldown {
			d.Admit, d.Reason, d.TriggerCount = true, ReasonCooldownElapsed, 1
			e.admit(ctx, key, f, now, 1)
		} else {
			d.Reason, d.TriggerCount = ReasonCooldownActive, prev.TriggerCount
		}
	}

	logger.Info().
		Bool("admit", d.Admit).
		Str("similarity", d.Similarity.String()).
		Int("count", d.TriggerCount).
		Float64("cooldown_min", d.Cooldown.Minutes()).
		Float64("elapsed_min", elapsed.Minutes()).
		Msg("signal decision")
	return d
}

// admit stores the record and rewrites the table. Write failures are logged
// and never undo the decision.
func (e *Engine) admit(ctx context.Context, key string, f models.Finding, now time.Time, count int) {
	e.records[key] = models.SignalRecord{
		Timestamp:    models.EpochSeconds(now),
		Finding:      f,
		TriggerCount: count,
	}
	if err := e.store.Save(ctx, copyRecords(e.records)); err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("failed to persist signal state")
	}
}

// Record returns the stored record for key.
func (e *Engine) Record(key string) (models.SignalRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[key]
	return r, ok
}

// Len returns the number of tracked keys.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}
