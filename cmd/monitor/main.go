package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL драйвер
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/signalwatch/internal/api/binance"
	"github.com/Alias1177/signalwatch/internal/api/openai"
	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/database"
	"github.com/Alias1177/signalwatch/internal/indicators"
	"github.com/Alias1177/signalwatch/internal/logger"
	"github.com/Alias1177/signalwatch/internal/markethours"
	"github.com/Alias1177/signalwatch/internal/metrics"
	"github.com/Alias1177/signalwatch/internal/monitor"
	"github.com/Alias1177/signalwatch/internal/narrative"
	"github.com/Alias1177/signalwatch/internal/notify"
	"github.com/Alias1177/signalwatch/internal/patterns"
	httpClient "github.com/Alias1177/signalwatch/internal/platform/http"
	"github.com/Alias1177/signalwatch/internal/signalstate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	mainLog := logger.Component("main")
	mainLog.Info().Msg("Starting signal monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Monitor.Symbols) == 0 && !cfg.Monitor.DynamicScan.Enabled {
		mainLog.Warn().Msg("no symbols configured and dynamic scan disabled, cycles will be empty")
	}

	// 3. Detectors
	augmenter := indicators.NewAugmenter(cfg.Indicators)
	detectors, unknown := patterns.Build(cfg.Detectors.Active, patterns.Deps{
		Config:    cfg.Detectors,
		Augmenter: augmenter,
		Context:   patterns.NewContextBuilder(cfg.Indicators, augmenter),
	})
	for _, name := range unknown {
		mainLog.Warn().Str("detector", name).Strs("available", patterns.Names()).Msg("unknown or duplicate detector, skipped")
	}
	if len(detectors) == 0 {
		mainLog.Error().Msg("No detectors initialized. Check detectors.active. Exiting.")
		os.Exit(1)
	}
	for _, d := range detectors {
		mainLog.Info().Str("detector", d.Name()).Msg("detector initialized")
	}

	// 4. Signal state
	store, closeStore := buildStore(ctx, cfg.SignalState)
	defer closeStore()
	engine := signalstate.NewEngine(ctx, cfg.SignalState, store)

	// 5. Collaborators
	recorder := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr); err != nil {
				mainLog.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	source := binance.NewClient(binance.ClientOptions{
		BaseURL:         cfg.Binance.BaseURL,
		RequestTimeout:  cfg.Monitor.FetchTimeout,
		RequestsPerSec:  cfg.Binance.RequestsPerSec,
		MaxRetries:      cfg.Binance.MaxRetries,
		MaxRetryTimeout: cfg.Binance.RetryTimeout,
	})

	pipeline := monitor.NewPipeline(cfg.Monitor, monitor.Deps{
		Source:     source,
		Symbols:    source,
		Augmenter:  augmenter,
		Detectors:  detectors,
		Decider:    engine,
		Narrator:   buildNarrator(cfg.Narrative),
		Dispatcher: buildDispatcher(cfg.Notify, recorder),
		Recorder:   recorder,
	})

	if *once {
		pipeline.RunCycle(ctx)
		return
	}

	gate, err := markethours.New(cfg.TradingHours)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Invalid trading hours")
	}
	monitor.Run(ctx, pipeline, gate, cfg.Monitor.Interval)
	mainLog.Info().Msg("Shutdown complete")
}

// buildStore opens the configured signal-state backend. Postgres failures
// are fatal; a broken file backend is handled by the engine.
func buildStore(ctx context.Context, cfg config.SignalStateConfig) (signalstate.Store, func()) {
	if cfg.Backend != "postgres" {
		log.Info().Str("file", cfg.File).Msg("using file signal state")
		return signalstate.NewFileStore(cfg.File), func() {}
	}

	db, err := database.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to signal state database")
	}
	log.Info().Msg("using postgres signal state")
	return db, func() { db.Close() }
}

func buildNarrator(cfg config.NarrativeConfig) monitor.Narrator {
	if !cfg.Enabled {
		log.Info().Msg("narrative disabled")
		return narrative.New(cfg.Timeout)
	}

	var providers []narrative.Provider
	for _, p := range cfg.Providers {
		if p.APIKey == "" {
			log.Warn().Str("provider", p.Name).Str("env", p.APIKeyEnv).Msg("API key missing, provider skipped")
			continue
		}
		providers = append(providers, openai.NewClient(openai.ClientOptions{
			Name:        p.Name,
			BaseURL:     p.BaseURL,
			Model:       p.Model,
			APIKey:      p.APIKey,
			Temperature: cfg.Temperature,
		}))
	}
	return narrative.New(cfg.Timeout, providers...)
}

func buildDispatcher(cfg config.NotifyConfig, recorder *metrics.Recorder) *notify.Dispatcher {
	hc := httpClient.NewClient(httpClient.ClientOptions{
		Timeout:        cfg.Timeout,
		RequestsPerSec: 5,
		MaxRetries:     2,
	})

	var sinks []notify.Sink
	if cfg.LarkWebhookURL != "" {
		sinks = append(sinks, notify.NewLarkSink(cfg.LarkWebhookURL, hc))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, hc))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("telegram sink disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}
	if cfg.LogAlerts || len(sinks) == 0 {
		sinks = append(sinks, notify.NewLogSink())
	}

	d := notify.NewDispatcher(cfg.Timeout, recorder.Notification, sinks...)
	log.Info().Strs("sinks", d.Sinks()).Msg("notification sinks ready")
	return d
}
