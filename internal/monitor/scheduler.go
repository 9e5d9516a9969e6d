package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// Gate reports whether cycles may run at t.
type Gate interface {
	IsOpen(t time.Time) bool
}

// Cycler runs one evaluation cycle.
type Cycler interface {
	RunCycle(ctx context.Context) CycleStats
}

// Run invokes a cycle, then sleeps interval, until ctx is cancelled.
// Cycles outside the gate's windows are skipped.
func Run(ctx context.Context, c Cycler, gate Gate, interval time.Duration) {
	logger := log.With().Str("component", "scheduler").Logger()
	logger.Info().Dur("interval", interval).Msg("starting signal monitor")

	for {
		if gate == nil || gate.IsOpen(time.Now()) {
			runSafely(ctx, c)
		} else {
			logger.Info().Msg("outside trading hours, skipping cycle")
		}

		logger.Info().Str("sleep", interval.String()).Msg("sleeping until next cycle")
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler stopped")
			return
		case <-time.After(interval):
		}
	}
}

// runSafely runs one cycle; a panic is logged and the loop carries on.
func runSafely(ctx context.Context, c Cycler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "scheduler").
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("cycle panicked")
		}
	}()
	c.RunCycle(ctx)
}
