// Package marketdata defines the contract the analysis core consumes
// candles and prices through. Implementations live in subpackages: deriv
// (live WebSocket API) and synthetic (seedable local generator).
package marketdata

import (
	"context"
	"errors"

	"signal-systemv1/internal/model"
)

// ErrUnavailable is returned when the data source cannot serve a request.
// Callers degrade to the synthetic fallback instead of propagating it.
var ErrUnavailable = errors.New("marketdata: source unavailable")

// Feed supplies ordered candle series and last-traded prices.
//
// HistoricalCandles returns up to count bars of the given granularity
// (seconds), oldest first; an empty series or error means the caller must
// fall back locally, never block. CurrentPrice returns the last traded
// price or ErrUnavailable.
type Feed interface {
	HistoricalCandles(ctx context.Context, symbol string, granularity, count int) (model.Series, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}
