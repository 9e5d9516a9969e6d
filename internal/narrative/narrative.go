package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/signalwatch/models"
)

// NoModel is reported when no provider produced a narrative.
const NoModel = "None"

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is a generated narrative and the model that wrote it.
type Result struct {
	Text  string
	Model string
}

// Narrator turns a finding into a human-readable interpretation using an
// ordered chain of providers.
type Narrator struct {
	providers []Provider
	timeout   time.Duration
	logger    zerolog.Logger
}

// New returns a Narrator trying providers in order. A zero timeout means the
// parent context alone bounds each call.
func New(timeout time.Duration, providers ...Provider) *Narrator {
	return &Narrator{
		providers: providers,
		timeout:   timeout,
		logger:    log.With().Str("component", "narrative").Logger(),
	}
}

// Providers returns the number of configured providers.
func (n *Narrator) Providers() int { return len(n.providers) }

// Interpret never fails: when every provider errors the placeholder text is
// returned with model NoModel.
func (n *Narrator) Interpret(ctx context.Context, symbol, timeframe string, f models.Finding, prev *models.Finding) Result {
	system := SystemPrompt()
	user := UserPrompt(symbol, timeframe, f, prev)
	logger := n.logger.With().Str("symbol", symbol).Str("indicator", f.Indicator).Logger()

	lastErr := errors.New("no providers configured")
	for _, p := range n.providers {
		logger.Info().Str("provider", p.Name()).Msg("requesting interpretation")
		text, err := n.call(ctx, p, system, user)
		if err == nil {
			logger.Info().Str("provider", p.Name()).Msg("interpretation received")
			return Result{Text: text, Model: p.Model()}
		}
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
		logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider failed, trying next")
		if ctx.Err() != nil {
			break
		}
	}

	logger.Error().Err(lastErr).Msg("interpretation unavailable")
	return Result{Text: Placeholder(lastErr), Model: NoModel}
}

func (n *Narrator) call(ctx context.Context, p Provider, system, user string) (string, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return p.Complete(ctx, system, user)
}

// Placeholder is the text sent when no narrative could be generated.
func Placeholder(err error) string {
	return fmt.Sprintf("AI interpretation unavailable. (last error: %v)", err)
}
