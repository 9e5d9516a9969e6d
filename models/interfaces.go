package models

import "context"

// SeriesSource fetches observation history for one symbol and timeframe.
type SeriesSource interface {
	FetchSeries(ctx context.Context, symbol, timeframe string, limit int) (*Series, error)
}

// SymbolSource lists the symbols worth scanning this cycle.
type SymbolSource interface {
	TopSymbols(ctx context.Context, n int, minQuoteVolume float64) ([]string, error)
}
