// Package synthetic generates plausible candle series and fallback signals
// locally, so the pipeline keeps producing during data outages and demos.
//
// The generator is seedable: the same seed yields the same series, which
// keeps tests deterministic. Everything it produces is flagged as
// synthetic at the data-model level — fallback output must never be
// mistaken for live analysis.
package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

// Base prices per currency bloc, matched by substring of the symbol.
var basePrices = []struct {
	substr string
	price  float64
}{
	{"GBP", 1.2750},
	{"JPY", 148.50},
	{"AUD", 0.6750},
	{"CHF", 0.8950},
}

const defaultBasePrice = 1.0850 // EUR/USD

// Generator produces synthetic candles and fallback signals.
// Safe for concurrent use; implements marketdata.Feed.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New creates a Generator with the given seed.
func New(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source (tests).
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// BasePrice returns the anchor price for a symbol.
func BasePrice(symbol string) float64 {
	for _, bp := range basePrices {
		if strings.Contains(symbol, bp.substr) {
			return bp.price
		}
	}
	return defaultBasePrice
}

// HistoricalCandles implements marketdata.Feed with generated data.
func (g *Generator) HistoricalCandles(ctx context.Context, symbol string, granularity, count int) (model.Series, error) {
	return g.Candles(symbol, granularity, count), nil
}

// CurrentPrice implements marketdata.Feed: the close of a fresh bar.
func (g *Generator) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	series := g.Candles(symbol, 60, 1)
	return series.LastClose(), nil
}

// Candles generates count bars of the given granularity ending now, each
// open chained to the previous close with bounded random movement.
func (g *Generator) Candles(symbol string, granularity, count int) model.Series {
	g.mu.Lock()
	defer g.mu.Unlock()

	series := make(model.Series, 0, count)
	price := BasePrice(symbol)
	step := time.Duration(granularity) * time.Second
	start := g.now().Add(-time.Duration(count) * step)

	for i := 0; i < count; i++ {
		open := price + (g.rng.Float64()-0.5)*0.002
		barRange := 0.0005 + g.rng.Float64()*0.0025
		close := open + (g.rng.Float64()-0.5)*barRange
		high := maxf(open, close) + g.rng.Float64()*barRange
		low := minf(open, close) - g.rng.Float64()*barRange

		series = append(series, model.Candle{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      model.Round5(open),
			High:      model.Round5(high),
			Low:       model.Round5(low),
			Close:     model.Round5(close),
			Volume:    1000 + int64(g.rng.Intn(9001)),
		})
		price = close
	}
	return series
}

// FallbackSignals occasionally emits 0-2 plausible signals for a pair when
// the analysis engine fails, so the feed never goes silent. Every signal
// is flagged Synthetic.
func (g *Generator) FallbackSignals(symbol string, tf model.Timeframe) []*model.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Emit only occasionally so a sustained outage does not spam the feed.
	if g.rng.Float64() > 0.3 {
		return nil
	}

	now := g.now()
	var signals []*model.Signal
	for i, n := 0, g.rng.Intn(3); i < n; i++ {
		base := BasePrice(symbol)
		bullish := g.rng.Intn(2) == 0

		var entry, stop, target float64
		if bullish {
			entry = base + g.rng.Float64()*0.003 - 0.002
			stop = entry - (0.001 + g.rng.Float64()*0.002)
			target = entry + (0.002 + g.rng.Float64()*0.004)
		} else {
			entry = base + g.rng.Float64()*0.003 - 0.001
			stop = entry + (0.001 + g.rng.Float64()*0.002)
			target = entry - (0.002 + g.rng.Float64()*0.004)
		}

		pipsTarget := model.Round1(absf(target-entry) * 10000)
		if pipsTarget < 20 {
			continue
		}

		typ := model.FVGBullish
		if !bullish {
			typ = model.FVGBearish
		}
		signals = append(signals, &model.Signal{
			ID:         fmt.Sprintf("sig_%s_%s_%d", symbol, tf, now.UnixNano()+int64(i)),
			Symbol:     symbol,
			Timeframe:  tf,
			Type:       typ,
			Entry:      model.Round5(entry),
			StopLoss:   model.Round5(stop),
			TakeProfit: model.Round5(target),
			PipsTarget: pipsTarget,
			Style:      model.ClassifyTradeStyle(pipsTarget),
			Session:    model.TradingSession(now),
			Confidence: model.Round2(0.65 + g.rng.Float64()*0.2),
			Synthetic:  true,
			CreatedAt:  now,
			Status:     model.SignalActive,
		})
	}
	return signals
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
