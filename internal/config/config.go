package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/signalwatch/models"
)

// Config holds all application configuration
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	TradingHours TradingHoursConfig `yaml:"trading_hours"`
	Detectors    DetectorsConfig    `yaml:"detectors"`
	Indicators   IndicatorsConfig   `yaml:"indicators"`
	SignalState  SignalStateConfig  `yaml:"signal_state"`
	Narrative    NarrativeConfig    `yaml:"narrative"`
	Notify       NotifyConfig       `yaml:"notify"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Binance      BinanceConfig      `yaml:"binance"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

type MonitorConfig struct {
	Interval         time.Duration `yaml:"interval" default:"15m" validate:"gt=0"`
	Timeframes       []string      `yaml:"timeframes" default:"[\"15m\"]" validate:"min=1,dive,required"`
	FetchLimit       int           `yaml:"fetch_limit" default:"1000" validate:"gte=2,lte=1500"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" default:"20s" validate:"gt=0"`
	FetchConcurrency int           `yaml:"fetch_concurrency" default:"8" validate:"gte=1"`
	AlertDelay       time.Duration `yaml:"alert_delay" default:"2s" validate:"gte=0"`
	Symbols          []string      `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\",\"SOLUSDT\",\"AVAXUSDT\"]"`
	DynamicScan      DynamicScan   `yaml:"dynamic_scan"`
}

// DynamicScan selects the most traded symbols instead of the static list.
type DynamicScan struct {
	Enabled        bool    `yaml:"enabled"`
	TopN           int     `yaml:"top_n" default:"20" validate:"gte=1"`
	MinQuoteVolume float64 `yaml:"min_quote_volume" default:"50000000" validate:"gte=0"`
}

type TradingHoursConfig struct {
	Timezone string          `yaml:"timezone" default:"UTC"`
	Windows  []TradingWindow `yaml:"windows" validate:"dive"`
}

// TradingWindow is an HH:MM range on the listed weekdays (all days when empty).
type TradingWindow struct {
	Days  []string `yaml:"days" validate:"dive,oneof=mon tue wed thu fri sat sun"`
	Start string   `yaml:"start" validate:"required"`
	End   string   `yaml:"end" validate:"required"`
}

// DetectorsConfig lists the active detectors and their thresholds.
type DetectorsConfig struct {
	Active   []string              `yaml:"active" default:"[\"MomentumSpikeSignal\",\"FairValueGapSignal\",\"RSIDivergenceSignal\",\"BollingerBreakoutSignal\",\"VolumeSpikeSignal\",\"OrderBlockRetestSignal\"]"`
	Defaults Thresholds            `yaml:"defaults"`
	Symbols  map[string]Thresholds `yaml:"symbols"`
}

// Thresholds are the per-symbol tunables of every detector. A zero value in a
// symbol override means "inherit the default".
type Thresholds struct {
	OIChange    float64 `yaml:"oi_change_threshold" default:"0.03" validate:"gte=0"`
	PriceChange float64 `yaml:"price_change_threshold" default:"0.01" validate:"gte=0"`

	FVGLookback   int     `yaml:"fvg_lookback" default:"20" validate:"gte=3"`
	FVGMinHistory int     `yaml:"fvg_min_history" default:"20" validate:"gte=5"`
	WickBodyRatio float64 `yaml:"wick_body_ratio" default:"2" validate:"gt=0"`

	DivergenceWindow int `yaml:"divergence_window" default:"30" validate:"gte=3"`

	BBLength int     `yaml:"bb_length" default:"20" validate:"gte=2"`
	BBStdDev float64 `yaml:"bb_std_dev" default:"2" validate:"gt=0"`

	VolumeSMALength  int     `yaml:"volume_sma_length" default:"20" validate:"gte=1"`
	VolumeSpikeRatio float64 `yaml:"volume_spike_ratio" default:"3" validate:"gt=0"`

	OrderBlockLookback      int     `yaml:"order_block_lookback" default:"30" validate:"gte=2"`
	OrderBlockATRMultiplier float64 `yaml:"order_block_atr_multiplier" default:"2" validate:"gt=0"`
}

// ForSymbol returns the thresholds for symbol, falling back to the defaults
// for every field the override leaves at zero.
func (d DetectorsConfig) ForSymbol(symbol string) Thresholds {
	out := d.Defaults
	o, ok := d.Symbols[symbol]
	if !ok {
		return out
	}

	setFloat := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setFloat(&out.OIChange, o.OIChange)
	setFloat(&out.PriceChange, o.PriceChange)
	setInt(&out.FVGLookback, o.FVGLookback)
	setInt(&out.FVGMinHistory, o.FVGMinHistory)
	setFloat(&out.WickBodyRatio, o.WickBodyRatio)
	setInt(&out.DivergenceWindow, o.DivergenceWindow)
	setInt(&out.BBLength, o.BBLength)
	setFloat(&out.BBStdDev, o.BBStdDev)
	setInt(&out.VolumeSMALength, o.VolumeSMALength)
	setFloat(&out.VolumeSpikeRatio, o.VolumeSpikeRatio)
	setInt(&out.OrderBlockLookback, o.OrderBlockLookback)
	setFloat(&out.OrderBlockATRMultiplier, o.OrderBlockATRMultiplier)
	return out
}

type IndicatorsConfig struct {
	RSILength       int     `yaml:"rsi_length" default:"14" validate:"gte=2"`
	EMAFast         int     `yaml:"ema_fast" default:"12" validate:"gte=1"`
	EMASlow         int     `yaml:"ema_slow" default:"26" validate:"gte=1"`
	ATRLength       int     `yaml:"atr_length" default:"14" validate:"gte=1"`
	VolumeSMALength int     `yaml:"volume_sma_length" default:"20" validate:"gte=1"`
	BBLength        int     `yaml:"bb_length" default:"20" validate:"gte=2"`
	BBStdDev        float64 `yaml:"bb_std_dev" default:"2" validate:"gt=0"`
	StructureWindow int     `yaml:"structure_window" default:"50" validate:"gte=1"`
	ContextKlines   int     `yaml:"context_klines" default:"16" validate:"gte=1"`
}

type SignalStateConfig struct {
	Backend     string `yaml:"backend" default:"file" validate:"oneof=file postgres"`
	File        string `yaml:"file" default:"signal_state.json"`
	PostgresDSN string `yaml:"postgres_dsn"`

	FVGCooldownMinutes       float64 `yaml:"fvg_cooldown_minutes" default:"60" validate:"gte=0"`
	BackoffFactor            float64 `yaml:"backoff_factor" default:"2" validate:"gte=1"`
	MaxCooldownMinutes       float64 `yaml:"max_cooldown_minutes" default:"480" validate:"gte=0"`
	FVGPriceTolerancePercent float64 `yaml:"fvg_price_tolerance_percent" default:"0.05" validate:"gte=0"`
	SignalCooldownMinutes    float64 `yaml:"signal_cooldown_minutes" default:"0" validate:"gte=0"`
	ZScoreChangeThreshold    float64 `yaml:"z_score_change_threshold" default:"0.5" validate:"gte=0"`
	PercentChangeThreshold   float64 `yaml:"percentage_change_threshold" default:"0.05" validate:"gte=0"`
}

type NarrativeConfig struct {
	Enabled     bool             `yaml:"enabled" default:"true"`
	Timeout     time.Duration    `yaml:"timeout" default:"45s" validate:"gt=0"`
	Temperature float32          `yaml:"temperature" default:"1"`
	Providers   []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig is an OpenAI-compatible chat-completion endpoint.
type ProviderConfig struct {
	Name      string `yaml:"name" validate:"required"`
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	Model     string `yaml:"model" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	APIKey    string `yaml:"-"`
}

type NotifyConfig struct {
	Timeout        time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	LarkWebhookURL string        `yaml:"lark_webhook_url"`
	WebhookURL     string        `yaml:"webhook_url"`
	TelegramToken  string        `yaml:"-"`
	TelegramChatID int64         `yaml:"telegram_chat_id"`
	LogAlerts      bool          `yaml:"log_alerts" default:"true"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type BinanceConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://fapi.binance.com" validate:"required,url"`
	RequestsPerSec float64       `yaml:"requests_per_sec" default:"10" validate:"gt=0"`
	MaxRetries     int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	RetryTimeout   time.Duration `yaml:"retry_timeout" default:"30s" validate:"gt=0"`
}

// DefaultProviders are used when the file configures none.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:      "gemini",
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		{
			Name:      "deepseek",
			BaseURL:   "https://api.deepseek.com/v1",
			Model:     "deepseek-chat",
			APIKeyEnv: "DEEPSEEK_API_KEY",
		},
	}
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	cfg.Narrative.Providers = DefaultProviders()
	return &cfg, nil
}

// Load reads the YAML file at path on top of the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if len(cfg.Narrative.Providers) == 0 {
		cfg.Narrative.Providers = DefaultProviders()
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides file values with secrets and knobs from the environment.
func (c *Config) applyEnv() {
	c.Log.Level = getEnvWithDefault("LOG_LEVEL", c.Log.Level)
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Monitor.Symbols = splitList(v)
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Monitor.Timeframes = splitList(v)
	}
	c.Notify.LarkWebhookURL = getEnvWithDefault("LARK_WEBHOOK_URL", c.Notify.LarkWebhookURL)
	c.Notify.WebhookURL = getEnvWithDefault("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramToken = getEnvWithDefault("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.SignalState.PostgresDSN = getEnvWithDefault("STATE_POSTGRES_DSN", c.SignalState.PostgresDSN)

	for i := range c.Narrative.Providers {
		p := &c.Narrative.Providers[i]
		p.APIKey = os.Getenv(p.APIKeyEnv)
	}
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.SignalState.Backend == "postgres" && c.SignalState.PostgresDSN == "" {
		return fmt.Errorf("signal_state.postgres_dsn is required for the postgres backend")
	}
	if _, err := time.LoadLocation(c.TradingHours.Timezone); err != nil {
		return fmt.Errorf("trading_hours.timezone: %w", err)
	}
	for _, tf := range c.Monitor.Timeframes {
		if _, err := models.TimeframeDuration(tf); err != nil {
			return fmt.Errorf("monitor.timeframes: %w", err)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer environment value")
	}
	return defaultValue
}
