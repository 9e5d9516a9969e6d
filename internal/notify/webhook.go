package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/signalwatch/internal/platform/http"
)

// WebhookSink posts alerts as JSON to a generic HTTP endpoint.
type WebhookSink struct {
	url    string
	client *httpClient.Client
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url string, client *httpClient.Client) *WebhookSink {
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, a Alert) error {
	payload := map[string]any{
		"symbol":      a.Symbol,
		"timeframe":   a.Timeframe,
		"indicator":   a.Finding.Indicator,
		"signal_type": a.Finding.SignalType,
		"attributes":  a.Finding.Attributes,
		"narrative":   a.Narrative,
		"model":       a.Model,
		"ts":          a.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.PostJSON(ctx, s.url, payload, nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.With().Str("component", "alert").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, a Alert) error {
	s.logger.Info().
		Str("symbol", a.Symbol).
		Str("timeframe", a.Timeframe).
		Str("indicator", a.Finding.Indicator).
		Str("signal_type", a.Finding.SignalType).
		Interface("attributes", a.Finding.Attributes).
		Str("model", a.Model).
		Str("narrative", a.Narrative).
		Msg("alert")
	return nil
}
