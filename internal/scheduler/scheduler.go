// Package scheduler drives the polling loop: every tick it sweeps exit
// conditions for active signals, re-runs the analysis pipeline per
// (symbol, timeframe) pair, admits new signals, and emits lifecycle events.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"signal-systemv1/internal/lifecycle"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
)

const (
	// DefaultInterval is the polling cadence.
	DefaultInterval = 30 * time.Second

	// DefaultMinPipsTarget filters out suggestions with targets too small
	// to be worth tracking.
	DefaultMinPipsTarget = 20.0

	eventBufferSize = 256
)

// Analyzer is the analysis surface the scheduler polls. Implemented by
// engine.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, tf model.Timeframe) model.Analysis
	CurrentPrice(ctx context.Context, symbol string) (float64, model.Source)
}

// FallbackSource generates plausible synthetic signals when analysis for a
// pair fails outright. Implemented by synthetic.Generator.
type FallbackSource interface {
	FallbackSignals(symbol string, tf model.Timeframe) []*model.Signal
}

// Config holds the fixed monitoring lists and cadence.
type Config struct {
	Symbols       []string
	Timeframes    []model.Timeframe
	Interval      time.Duration // default 30s
	MinPipsTarget float64       // default 20
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinPipsTarget <= 0 {
		c.MinPipsTarget = DefaultMinPipsTarget
	}
}

// Scheduler polls the configured symbol/timeframe grid. One goroutine per
// symbol per tick; pair failures never abort the rest of the tick.
type Scheduler struct {
	cfg       Config
	analyzer  Analyzer
	lifecycle *lifecycle.Manager
	fallback  FallbackSource
	metrics   *metrics.Metrics // optional

	events chan model.Event

	mu        sync.Mutex
	lastPrice map[string]float64
	running   bool
	lastTick  time.Time
}

// New creates a Scheduler. fallback may not be nil; metrics may be.
func New(cfg Config, analyzer Analyzer, manager *lifecycle.Manager, fallback FallbackSource, m *metrics.Metrics) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg:       cfg,
		analyzer:  analyzer,
		lifecycle: manager,
		fallback:  fallback,
		metrics:   m,
		events:    make(chan model.Event, eventBufferSize),
		lastPrice: make(map[string]float64),
	}
}

// Events returns the lifecycle event stream. Delivery is best-effort:
// events are dropped if the consumer lags behind a full buffer.
func (s *Scheduler) Events() <-chan model.Event { return s.events }

// Run executes an immediate tick and then polls on the configured interval
// until ctx is cancelled. Blocks.
func (s *Scheduler) Run(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	log.Printf("[scheduler] monitoring %d symbols x %d timeframes every %s",
		len(s.cfg.Symbols), len(s.cfg.Timeframes), s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one polling cycle: all symbols concurrently, joined before the
// session stats are published.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.SchedulerTicks.Inc()
	}

	var wg sync.WaitGroup
	for _, symbol := range s.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.processSymbol(ctx, symbol)
		}(symbol)
	}
	wg.Wait()

	stats := s.lifecycle.SessionSummary()
	s.emit(model.Event{
		Type:      model.EventSessionUpdate,
		Stats:     &stats,
		Timestamp: time.Now().UTC(),
	})

	s.mu.Lock()
	s.lastTick = time.Now().UTC()
	s.mu.Unlock()

	if s.metrics != nil {
		active, _ := s.lifecycle.Counts()
		s.metrics.ActiveSignals.Set(float64(active))
		s.metrics.SessionPips.Set(stats.TotalPips)
	}
}

// processSymbol sweeps exits against the freshest price, then scans every
// timeframe for new signals. Exits always run before admissions. Every log
// line of one symbol pass shares a trace ID.
func (s *Scheduler) processSymbol(ctx context.Context, symbol string) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, time.Now()))
	price := s.fetchPrice(ctx, symbol)

	for _, sig := range s.lifecycle.Sweep(symbol, price) {
		slog.Info("signal closed", append([]any{
			slog.String("signal_id", sig.ID),
			slog.String("reason", string(sig.ExitReason)),
			slog.Float64("exit_price", sig.ExitPrice),
			slog.Float64("pips", sig.PipsGained),
		}, logger.LogWithTrace(ctx)...)...)
		if s.metrics != nil {
			s.metrics.SignalsClosed.WithLabelValues(string(sig.ExitReason)).Inc()
		}
		s.emit(model.Event{
			Type:       model.EventSignalClosed,
			Symbol:     sig.Symbol,
			Timeframe:  sig.Timeframe,
			SignalID:   sig.ID,
			ExitReason: sig.ExitReason,
			ExitPrice:  sig.ExitPrice,
			PipsGained: sig.PipsGained,
			Timestamp:  time.Now().UTC(),
		})
	}

	for _, tf := range s.cfg.Timeframes {
		if ctx.Err() != nil {
			return
		}
		for _, sig := range s.scanPair(ctx, symbol, tf) {
			s.admit(ctx, sig)
		}
	}
}

// fetchPrice prefers the live feed; on outage it falls back to the last
// known live price before trusting a synthetic one.
func (s *Scheduler) fetchPrice(ctx context.Context, symbol string) float64 {
	start := time.Now()
	price, source := s.analyzer.CurrentPrice(ctx, symbol)
	if s.metrics != nil {
		s.metrics.PriceFetchDur.Observe(time.Since(start).Seconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if source == model.SourceLive {
		s.lastPrice[symbol] = price
		return price
	}
	if last, ok := s.lastPrice[symbol]; ok {
		return last
	}
	return price
}

// scanPair runs the pipeline for one pair and converts surviving
// suggestions into candidate signals. An engine panic is contained to the
// pair and replaced by flagged synthetic signals so the feed never goes
// silent.
func (s *Scheduler) scanPair(ctx context.Context, symbol string, tf model.Timeframe) (out []*model.Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("analysis failed, serving synthetic signals", append([]any{
				slog.String("symbol", symbol),
				slog.String("timeframe", string(tf)),
				slog.Any("panic", r),
			}, logger.LogWithTrace(ctx)...)...)
			if s.metrics != nil {
				s.metrics.AnalysisErrors.Inc()
				s.metrics.FallbackSignals.Inc()
			}
			out = s.fallback.FallbackSignals(symbol, tf)
		}
	}()

	start := time.Now()
	analysis := s.analyzer.Analyze(ctx, symbol, tf)
	if s.metrics != nil {
		s.metrics.AnalysisDur.Observe(time.Since(start).Seconds())
		s.metrics.SetupsEvaluated.Add(float64(len(analysis.Setups)))
		s.metrics.SetupsAccepted.Add(float64(len(analysis.Suggestions)))
		if analysis.Source == model.SourceSynthetic {
			s.metrics.SyntheticFills.Inc()
		}
	}

	for _, sug := range analysis.Suggestions {
		sig := s.lifecycle.BuildSignal(sug, analysis.Source == model.SourceSynthetic)
		if sig.PipsTarget < s.cfg.MinPipsTarget {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// admit applies dedup and publishes signal_opened on success.
func (s *Scheduler) admit(ctx context.Context, sig *model.Signal) {
	if !s.lifecycle.Admit(sig) {
		if s.metrics != nil {
			s.metrics.SignalsDedup.Inc()
		}
		return
	}
	slog.Info("signal opened", append([]any{
		slog.String("signal_id", sig.ID),
		slog.String("type", string(sig.Type)),
		slog.String("timeframe", string(sig.Timeframe)),
		slog.Float64("entry", sig.Entry),
		slog.Float64("target", sig.TakeProfit),
		slog.String("style", string(sig.Style)),
		slog.Float64("pips_target", sig.PipsTarget),
	}, logger.LogWithTrace(ctx)...)...)
	if s.metrics != nil {
		s.metrics.SignalsOpened.Inc()
	}
	// The lifecycle manager keeps mutating sig on closure while consumers
	// read the event from buffered channels, so the event carries a copy.
	snap := *sig
	s.emit(model.Event{
		Type:      model.EventSignalOpened,
		Symbol:    sig.Symbol,
		Timeframe: sig.Timeframe,
		Signal:    &snap,
		Timestamp: time.Now().UTC(),
	})
}

// emit is a non-blocking send; a full buffer drops the event rather than
// stalling the tick.
func (s *Scheduler) emit(ev model.Event) {
	select {
	case s.events <- ev:
		if s.metrics != nil {
			s.metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
		}
	default:
		log.Printf("[scheduler] event buffer full, dropping %s", ev.Type)
	}
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// Status reports the scheduler state for status endpoints.
func (s *Scheduler) Status() model.ServiceStatus {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	active, closed := s.lifecycle.Counts()
	return model.ServiceStatus{
		Running:       running,
		Symbols:       s.cfg.Symbols,
		Timeframes:    s.cfg.Timeframes,
		CheckInterval: fmt.Sprintf("%.0f seconds", s.cfg.Interval.Seconds()),
		ActiveSignals: active,
		ClosedSignals: closed,
		SessionStats:  s.lifecycle.SessionSummary(),
	}
}
