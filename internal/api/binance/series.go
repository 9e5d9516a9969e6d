package binance

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/signalwatch/models"
)

// histPeriods are the periods the futures data endpoints serve.
var histPeriods = map[string]bool{
	"5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true,
	"1d": true,
}

// FetchSeries returns the closed-candle history for symbol merged with open
// interest, long/short ratio and cumulative volume delta.
func (c *Client) FetchSeries(ctx context.Context, symbol, timeframe string, limit int) (*models.Series, error) {
	var (
		klines   []Kline
		oi, lsr  []HistPoint
		withHist = histPeriods[timeframe]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		klines, err = c.Klines(gctx, symbol, timeframe, limit)
		return err
	})
	if withHist {
		g.Go(func() error {
			var err error
			if oi, err = c.OpenInterestHist(gctx, symbol, timeframe, limit); err != nil {
				c.logger.Warn().Err(err).Str("symbol", symbol).Msg("open interest unavailable")
				oi = nil
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if lsr, err = c.LongShortRatio(gctx, symbol, timeframe, limit); err != nil {
				c.logger.Warn().Err(err).Str("symbol", symbol).Msg("long/short ratio unavailable")
				lsr = nil
			}
			return nil
		})
	} else {
		c.logger.Debug().Str("timeframe", timeframe).Msg("no derivatives history for timeframe")
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	klines = closedOnly(klines, c.now())
	if len(klines) == 0 {
		return nil, fmt.Errorf("%s %s: no closed candles", symbol, timeframe)
	}
	return models.NewSeries(symbol, timeframe, mergeObservations(klines, oi, lsr))
}

// closedOnly drops candles that have not closed yet at now.
func closedOnly(klines []Kline, now time.Time) []Kline {
	out := klines[:0:0]
	for _, k := range klines {
		if k.CloseTime.Before(now) {
			out = append(out, k)
		}
	}
	return out
}

// mergeObservations aligns the history points to candle open times by exact
// timestamp. Gaps are back-filled, then forward-filled. CVD accumulates
// taker buy volume minus taker sell volume.
func mergeObservations(klines []Kline, oi, lsr []HistPoint) []models.Observation {
	obs := make([]models.Observation, len(klines))
	oiCol := alignHist(klines, oi)
	lsCol := alignHist(klines, lsr)

	var cvd float64
	for i, k := range klines {
		cvd += 2*k.TakerBuyBase - k.Volume
		obs[i] = models.Observation{
			OpenTime:       k.OpenTime,
			Open:           k.Open,
			High:           k.High,
			Low:            k.Low,
			Close:          k.Close,
			Volume:         k.Volume,
			OpenInterest:   oiCol[i],
			LongShortRatio: lsCol[i],
			CVD:            cvd,
		}
	}
	return obs
}

func alignHist(klines []Kline, points []HistPoint) []float64 {
	out := make([]float64, len(klines))
	if len(points) == 0 {
		return out
	}

	byTime := make(map[int64]float64, len(points))
	for _, p := range points {
		byTime[p.Time.UnixMilli()] = p.Value
	}

	have := make([]bool, len(klines))
	for i, k := range klines {
		out[i], have[i] = byTime[k.OpenTime.UnixMilli()]
	}

	// bfill
	next, nextOK := 0.0, false
	for i := len(out) - 1; i >= 0; i-- {
		if have[i] {
			next, nextOK = out[i], true
			continue
		}
		if nextOK {
			out[i], have[i] = next, true
		}
	}
	// ffill
	prev, prevOK := 0.0, false
	for i := range out {
		if have[i] {
			prev, prevOK = out[i], true
			continue
		}
		if prevOK {
			out[i], have[i] = prev, true
		}
	}
	return out
}
