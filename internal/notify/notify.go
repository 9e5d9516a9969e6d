// Package notify delivers admitted findings to external channels
// (Lark, Telegram, generic webhooks and the log).
package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/signalwatch/models"
)

// Alert is one admitted finding ready for delivery.
type Alert struct {
	Symbol    string
	Timeframe string
	Finding   models.Finding
	// Previous is the last admitted finding for the same key, if any.
	Previous  *models.Finding
	Narrative string
	Model     string
	Timestamp time.Time
}

// Sink is a delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// ResultFunc observes the outcome of one delivery attempt.
type ResultFunc func(sink string, err error)

// Dispatcher fans an alert out to every sink.
type Dispatcher struct {
	sinks    []Sink
	timeout  time.Duration
	onResult ResultFunc
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher with a per-sink timeout.
func NewDispatcher(timeout time.Duration, onResult ResultFunc, sinks ...Sink) *Dispatcher {
	if onResult == nil {
		onResult = func(string, error) {}
	}
	return &Dispatcher{
		sinks:    sinks,
		timeout:  timeout,
		onResult: onResult,
		logger:   log.With().Str("component", "notify").Logger(),
	}
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch sends alert to all sinks concurrently and returns how many
// accepted it. Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, s := range d.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()

			sctx := ctx
			if d.timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, d.timeout)
				defer cancel()
			}

			err := d.send(sctx, s, alert)
			d.onResult(s.Name(), err)
			if err != nil {
				d.logger.Error().Err(err).
					Str("sink", s.Name()).
					Str("symbol", alert.Symbol).
					Str("indicator", alert.Finding.Indicator).
					Msg("alert delivery failed")
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return delivered
}

// send calls the sink, turning a panic into a delivery error.
func (d *Dispatcher) send(ctx context.Context, s Sink, alert Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("sink", s.Name()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("sink panicked")
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Send(ctx, alert)
}

// attributeLines renders attributes as "Key Name: value" lines sorted by key.
func attributeLines(attrs map[string]any, bold bool) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		label := titleKey(k)
		if bold {
			label = "**" + label + ":**"
		} else {
			label += ":"
		}
		lines = append(lines, label+" "+formatValue(attrs[k]))
	}
	return lines
}

// titleKey turns "fvg_top" into "Fvg Top".
func titleKey(k string) string {
	words := strings.Fields(strings.ReplaceAll(k, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
