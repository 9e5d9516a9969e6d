package binance

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/signalwatch/internal/platform/http"
)

// DefaultBaseURL is the USDⓈ-M futures REST endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

// histLimit is the largest page the futures data endpoints accept.
const histLimit = 500

// Client is the Binance futures market-data client
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// ClientOptions holds options for creating a new Binance client
type ClientOptions struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  float64
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new Binance futures client
func NewClient(options ClientOptions) *Client {
	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetries:      options.MaxRetries,
			MaxRetryTimeout: options.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "binance_client").Logger(),
		now:    time.Now,
	}
}

// Kline is one parsed candle from /fapi/v1/klines.
type Kline struct {
	OpenTime     time.Time
	CloseTime    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	TakerBuyBase float64
}

// HistPoint is one value from a futures data history endpoint.
type HistPoint struct {
	Time  time.Time
	Value float64
}

// Ticker24h is the subset of /fapi/v1/ticker/24hr we use.
type Ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

func (c *Client) endpoint(path string, q url.Values) string {
	if len(q) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + q.Encode()
}

// Klines fetches candlestick data.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := c.httpClient.GetJSON(ctx, c.endpoint("/fapi/v1/klines", q), &raw); err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	out := make([]Kline, 0, len(raw))
	for i, row := range raw {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s row %d: %w", symbol, interval, i, err)
		}
		out = append(out, k)
	}
	c.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("rows", len(out)).Msg("fetched klines")
	return out, nil
}

func parseKline(row []any) (Kline, error) {
	if len(row) < 10 {
		return Kline{}, fmt.Errorf("expected at least 10 fields, got %d", len(row))
	}
	var (
		k   Kline
		err error
	)
	fields := []struct {
		idx int
		dst *float64
	}{
		{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume}, {9, &k.TakerBuyBase},
	}
	for _, f := range fields {
		if *f.dst, err = toFloat(row[f.idx]); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", f.idx, err)
		}
	}

	openMs, err := toFloat(row[0])
	if err != nil {
		return Kline{}, fmt.Errorf("open time: %w", err)
	}
	closeMs, err := toFloat(row[6])
	if err != nil {
		return Kline{}, fmt.Errorf("close time: %w", err)
	}
	k.OpenTime = time.UnixMilli(int64(openMs)).UTC()
	k.CloseTime = time.UnixMilli(int64(closeMs)).UTC()
	return k, nil
}

// OpenInterestHist returns the open interest value (quote asset) history.
func (c *Client) OpenInterestHist(ctx context.Context, symbol, period string, limit int) ([]HistPoint, error) {
	var raw []struct {
		Timestamp            int64  `json:"timestamp"`
		SumOpenInterestValue string `json:"sumOpenInterestValue"`
	}
	if err := c.httpClient.GetJSON(ctx, c.histURL("/futures/data/openInterestHist", symbol, period, limit), &raw); err != nil {
		return nil, fmt.Errorf("open interest %s %s: %w", symbol, period, err)
	}

	out := make([]HistPoint, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r.SumOpenInterestValue, 64)
		if err != nil {
			return nil, fmt.Errorf("open interest %s: %w", symbol, err)
		}
		out = append(out, HistPoint{Time: time.UnixMilli(r.Timestamp).UTC(), Value: v})
	}
	return out, nil
}

// LongShortRatio returns the global long/short account ratio history.
func (c *Client) LongShortRatio(ctx context.Context, symbol, period string, limit int) ([]HistPoint, error) {
	var raw []struct {
		Timestamp      int64  `json:"timestamp"`
		LongShortRatio string `json:"longShortRatio"`
	}
	if err := c.httpClient.GetJSON(ctx, c.histURL("/futures/data/globalLongShortAccountRatio", symbol, period, limit), &raw); err != nil {
		return nil, fmt.Errorf("long/short ratio %s %s: %w", symbol, period, err)
	}

	out := make([]HistPoint, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r.LongShortRatio, 64)
		if err != nil {
			return nil, fmt.Errorf("long/short ratio %s: %w", symbol, err)
		}
		out = append(out, HistPoint{Time: time.UnixMilli(r.Timestamp).UTC(), Value: v})
	}
	return out, nil
}

func (c *Client) histURL(path, symbol, period string, limit int) string {
	if limit > histLimit {
		limit = histLimit
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("period", period)
	q.Set("limit", strconv.Itoa(limit))
	return c.endpoint(path, q)
}

// Tickers24h returns 24hr statistics for all futures markets.
func (c *Client) Tickers24h(ctx context.Context) ([]Ticker24h, error) {
	var tickers []Ticker24h
	if err := c.httpClient.GetJSON(ctx, c.endpoint("/fapi/v1/ticker/24hr", nil), &tickers); err != nil {
		return nil, fmt.Errorf("24hr tickers: %w", err)
	}
	return tickers, nil
}

// TopSymbols returns the n USDT-margined symbols with the highest 24h quote
// volume among those trading at least minQuoteVolume.
func (c *Client) TopSymbols(ctx context.Context, n int, minQuoteVolume float64) ([]string, error) {
	tickers, err := c.Tickers24h(ctx)
	if err != nil {
		return nil, err
	}

	type pair struct {
		symbol string
		volume float64
	}
	var pairs []pair
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		v, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || v < minQuoteVolume {
			continue
		}
		pairs = append(pairs, pair{t.Symbol, v})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].volume > pairs[j].volume })

	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.symbol
	}
	c.logger.Info().Strs("symbols", out).Msg("dynamic scan selected symbols")
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
