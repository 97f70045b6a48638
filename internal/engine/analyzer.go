package engine

import (
	"context"
	"log/slog"
	"time"

	"signal-systemv1/internal/analysis/bias"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata"
	"signal-systemv1/internal/marketdata/synthetic"
	"signal-systemv1/internal/model"
)

// Lookback is the candle count fetched per analysis window.
const Lookback = 100

// revalidateMaxDrift is how far price may move from a suggestion's entry,
// as a fraction of the entry, before the setup is considered stale.
const revalidateMaxDrift = 0.005

// Analyzer is the query surface over the analysis pipeline. It fetches
// candles from the live feed and degrades to the synthetic generator on
// outage, flagging the source either way.
type Analyzer struct {
	composer *Composer
	biasDet  *bias.Detector
	feed     marketdata.Feed
	fallback *synthetic.Generator
}

// NewAnalyzer wires a composer to a live feed. fallback must be non-nil;
// it serves candles whenever the feed errors.
func NewAnalyzer(cfg Config, feed marketdata.Feed, fallback *synthetic.Generator) *Analyzer {
	return &Analyzer{
		composer: NewComposer(cfg),
		biasDet:  bias.NewDetector(),
		feed:     feed,
		fallback: fallback,
	}
}

// Candles fetches lookback candles for one (symbol, timeframe) pair,
// falling back to synthetic data on feed failure. The returned Source
// states which path served the request.
func (a *Analyzer) Candles(ctx context.Context, symbol string, tf model.Timeframe, count int) (model.Series, model.Source) {
	series, err := a.feed.HistoricalCandles(ctx, symbol, tf.Seconds(), count)
	if err == nil && len(series) > 0 {
		return series, model.SourceLive
	}
	if err != nil {
		slog.Warn("feed unavailable, using synthetic candles", append([]any{
			slog.String("symbol", symbol),
			slog.String("timeframe", string(tf)),
			slog.Any("error", err),
		}, logger.LogWithTrace(ctx)...)...)
	}
	return a.fallback.Candles(symbol, tf.Seconds(), count), model.SourceSynthetic
}

// Analyze runs the full pipeline for one (symbol, timeframe) pair.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, tf model.Timeframe) model.Analysis {
	series, source := a.Candles(ctx, symbol, tf, Lookback)
	return a.composer.Analyze(symbol, tf, series, source)
}

// CurrentPrice returns the latest price for symbol. On feed failure it
// degrades to the synthetic generator so callers always get a price.
func (a *Analyzer) CurrentPrice(ctx context.Context, symbol string) (float64, model.Source) {
	price, err := a.feed.CurrentPrice(ctx, symbol)
	if err == nil && price > 0 {
		return price, model.SourceLive
	}
	price, _ = a.fallback.CurrentPrice(ctx, symbol)
	return price, model.SourceSynthetic
}

// MarketSummary aggregates bias across the given timeframes for symbol.
type MarketSummary struct {
	Symbol    string            `json:"symbol"`
	Source    model.Source      `json:"source"`
	Bias      model.MultiTFBias `json:"bias"`
	Price     float64           `json:"current_price"`
	Timestamp time.Time         `json:"timestamp"`
}

// Summary computes the multi-timeframe bias picture for one symbol.
// If any timeframe had to be served synthetically the whole summary is
// flagged synthetic.
func (a *Analyzer) Summary(ctx context.Context, symbol string, tfs []model.Timeframe) MarketSummary {
	byTF := make(map[model.Timeframe]model.Series, len(tfs))
	source := model.SourceLive
	for _, tf := range tfs {
		series, src := a.Candles(ctx, symbol, tf, Lookback)
		byTF[tf] = series
		if src == model.SourceSynthetic {
			source = model.SourceSynthetic
		}
	}
	price, _ := a.CurrentPrice(ctx, symbol)
	return MarketSummary{
		Symbol:    symbol,
		Source:    source,
		Bias:      a.biasDet.MultiTimeframe(byTF),
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
}

// Revalidate re-runs the pipeline for a suggestion's pair and reports
// whether the setup still holds: an equivalent setup must still be present
// and price must not have drifted beyond revalidateMaxDrift of entry.
// The bound is relative so it means the same thing at 1.08 and at 148.
func (a *Analyzer) Revalidate(ctx context.Context, sug model.TradeSuggestion) bool {
	price, _ := a.CurrentPrice(ctx, sug.Symbol)
	drift := (price - sug.Entry) / sug.Entry
	if drift < 0 {
		drift = -drift
	}
	if drift > revalidateMaxDrift {
		return false
	}
	analysis := a.Analyze(ctx, sug.Symbol, sug.Timeframe)
	for _, s := range analysis.HighQuality {
		if s.FVG.Type == sug.Type {
			return true
		}
	}
	return false
}
