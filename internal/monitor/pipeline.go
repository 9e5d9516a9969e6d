package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/internal/narrative"
	"github.com/Alias1177/signalwatch/internal/notify"
	"github.com/Alias1177/signalwatch/internal/patterns"
	"github.com/Alias1177/signalwatch/internal/signalstate"
	"github.com/Alias1177/signalwatch/models"
)

// Decider is the signal state engine as seen by the pipeline.
type Decider interface {
	ShouldSend(ctx context.Context, symbol string, f models.Finding) signalstate.Decision
}

// Narrator produces the interpretation attached to an alert.
type Narrator interface {
	Interpret(ctx context.Context, symbol, timeframe string, f models.Finding, prev *models.Finding) narrative.Result
}

// Dispatcher delivers alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert notify.Alert) int
}

// Recorder receives cycle metrics.
type Recorder interface {
	ObserveCycle(d time.Duration)
	FetchError(timeframe string)
	Finding(indicator, signalType string)
	Decision(admitted bool)
	Narrative(model string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(time.Duration) {}
func (nopRecorder) FetchError(string)          {}
func (nopRecorder) Finding(string, string)     {}
func (nopRecorder) Decision(bool)              {}
func (nopRecorder) Narrative(string)           {}

// Pipeline runs one evaluation cycle over every symbol and timeframe.
type Pipeline struct {
	cfg        config.MonitorConfig
	source     models.SeriesSource
	symbols    models.SymbolSource
	augmenter  *indicators.Augmenter
	detectors  []patterns.Detector
	decider    Decider
	narrator   Narrator
	dispatcher Dispatcher
	recorder   Recorder
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
	logger     zerolog.Logger
}

// Deps are the collaborators of a Pipeline. Symbols and Recorder are optional.
type Deps struct {
	Source     models.SeriesSource
	Symbols    models.SymbolSource
	Augmenter  *indicators.Augmenter
	Detectors  []patterns.Detector
	Decider    Decider
	Narrator   Narrator
	Dispatcher Dispatcher
	Recorder   Recorder
}

// NewPipeline wires a pipeline.
func NewPipeline(cfg config.MonitorConfig, deps Deps) *Pipeline {
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{
		cfg:        cfg,
		source:     deps.Source,
		symbols:    deps.Symbols,
		augmenter:  deps.Augmenter,
		detectors:  deps.Detectors,
		decider:    deps.Decider,
		narrator:   deps.Narrator,
		dispatcher: deps.Dispatcher,
		recorder:   rec,
		now:        time.Now,
		sleep:      sleepContext,
		logger:     log.With().Str("component", "pipeline").Logger(),
	}
}

// CycleStats summarizes one cycle.
type CycleStats struct {
	Symbols   int
	Series    int
	Findings  int
	Admitted  int
	Delivered int
}

type job struct {
	symbol    string
	timeframe string
}

// RunCycle fetches, evaluates and alerts once. Per-symbol failures are logged
// and skipped.
func (p *Pipeline) RunCycle(ctx context.Context) CycleStats {
	start := p.now()
	defer func() { p.recorder.ObserveCycle(p.now().Sub(start)) }()

	symbols := p.resolveSymbols(ctx)
	stats := CycleStats{Symbols: len(symbols)}
	if len(symbols) == 0 {
		p.logger.Warn().Msg("no symbols to monitor, skipping cycle")
		return stats
	}

	jobs := make([]job, 0, len(symbols)*len(p.cfg.Timeframes))
	for _, s := range symbols {
		for _, tf := range p.cfg.Timeframes {
			jobs = append(jobs, job{symbol: s, timeframe: tf})
		}
	}

	series := p.fetchAll(ctx, jobs)
	p.logger.Info().Int("jobs", len(jobs)).Msg("data fetched, checking for signals")

	multiTF := len(p.cfg.Timeframes) > 1
	for i, j := range jobs {
		s := series[i]
		if s == nil {
			continue
		}
		stats.Series++
		if ctx.Err() != nil {
			break
		}
		p.evaluate(ctx, j, s, multiTF, &stats)
	}

	p.logger.Info().
		Int("series", stats.Series).
		Int("findings", stats.Findings).
		Int("admitted", stats.Admitted).
		Int("delivered", stats.Delivered).
		Msg("check complete")
	return stats
}

func (p *Pipeline) resolveSymbols(ctx context.Context) []string {
	dyn := p.cfg.DynamicScan
	if !dyn.Enabled || p.symbols == nil {
		return p.cfg.Symbols
	}

	sctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	top, err := p.symbols.TopSymbols(sctx, dyn.TopN, dyn.MinQuoteVolume)
	if err != nil || len(top) == 0 {
		p.logger.Warn().Err(err).Strs("fallback", p.cfg.Symbols).Msg("dynamic scan failed, using static symbols")
		return p.cfg.Symbols
	}
	return top
}

// fetchAll loads every job concurrently and returns series aligned with jobs;
// failed fetches leave a nil entry.
func (p *Pipeline) fetchAll(ctx context.Context, jobs []job) []*models.Series {
	out := make([]*models.Series, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchConcurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.cfg.FetchTimeout)
			defer cancel()

			s, err := p.source.FetchSeries(fctx, j.symbol, j.timeframe, p.cfg.FetchLimit)
			if err != nil {
				p.recorder.FetchError(j.timeframe)
				p.logger.Error().Err(err).Str("symbol", j.symbol).Str("timeframe", j.timeframe).Msg("fetch failed, skipping")
				return nil
			}
			out[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) evaluate(ctx context.Context, j job, s *models.Series, multiTF bool, stats *CycleStats) {
	p.augmenter.Augment(s)

	stateSymbol := j.symbol
	if multiTF {
		stateSymbol = j.symbol + "/" + j.timeframe
	}

	for _, d := range p.detectors {
		f := p.check(d, s, j)
		if f == nil {
			continue
		}
		stats.Findings++
		p.recorder.Finding(f.Indicator, f.SignalType)
		p.logger.Info().
			Str("symbol", j.symbol).
			Str("timeframe", j.timeframe).
			Str("detector", d.Name()).
			Str("signal_type", f.SignalType).
			Msg("found potential signal")

		decision := p.decider.ShouldSend(ctx, stateSymbol, *f)
		p.recorder.Decision(decision.Admit)
		if !decision.Admit {
			continue
		}
		stats.Admitted++

		res := p.narrator.Interpret(ctx, j.symbol, j.timeframe, *f, decision.Previous)
		p.recorder.Narrative(res.Model)

		stats.Delivered += p.dispatcher.Dispatch(ctx, notify.Alert{
			Symbol:    j.symbol,
			Timeframe: j.timeframe,
			Finding:   *f,
			Previous:  decision.Previous,
			Narrative: res.Text,
			Model:     res.Model,
			Timestamp: p.now(),
		})
		p.sleep(ctx, p.cfg.AlertDelay)
	}
}

// check runs one detector, turning a panic into a logged miss.
func (p *Pipeline) check(d patterns.Detector, s *models.Series, j job) (f *models.Finding) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("symbol", j.symbol).
				Str("timeframe", j.timeframe).
				Str("detector", d.Name()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("detector panicked")
			f = nil
		}
	}()
	return d.Check(s, j.symbol)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
