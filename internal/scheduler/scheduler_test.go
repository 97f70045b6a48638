package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"signal-systemv1/internal/lifecycle"
	"signal-systemv1/internal/model"
)

type pair struct {
	symbol string
	tf     model.Timeframe
}

// stubAnalyzer serves canned suggestions and prices, and can be told to
// panic for specific pairs.
type stubAnalyzer struct {
	suggestions map[pair][]model.TradeSuggestion
	price       map[string]float64
	source      model.Source
	panics      map[pair]bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, symbol string, tf model.Timeframe) model.Analysis {
	p := pair{symbol, tf}
	if a.panics[p] {
		panic("engine failure")
	}
	return model.Analysis{
		Symbol: symbol, Timeframe: tf,
		Source:      model.SourceLive,
		Suggestions: a.suggestions[p],
		Timestamp:   time.Now().UTC(),
	}
}

func (a *stubAnalyzer) CurrentPrice(ctx context.Context, symbol string) (float64, model.Source) {
	src := a.source
	if src == "" {
		src = model.SourceLive
	}
	return a.price[symbol], src
}

type stubFallback struct {
	signals map[pair][]*model.Signal
	calls   int
}

func (f *stubFallback) FallbackSignals(symbol string, tf model.Timeframe) []*model.Signal {
	f.calls++
	return f.signals[pair{symbol, tf}]
}

func suggestion(symbol string, tf model.Timeframe, entry, stop, tp1 float64) model.TradeSuggestion {
	return model.TradeSuggestion{
		SetupID: "sb_" + symbol + "_" + string(tf),
		Type:    model.FVGBullish, Symbol: symbol, Timeframe: tf,
		Entry: entry, StopLoss: stop, TakeProfit1: tp1, TakeProfit2: tp1 + (tp1 - entry),
		RiskReward1: 2.0, RiskReward2: 4.0,
		Confidence: 0.9, SetupQuality: 0.85,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestScheduler(analyzer *stubAnalyzer, fb *stubFallback, symbols ...string) (*Scheduler, *lifecycle.Manager) {
	mgr := lifecycle.NewManager(0)
	cfg := Config{
		Symbols:    symbols,
		Timeframes: []model.Timeframe{model.TFH1},
	}
	return New(cfg, analyzer, mgr, fb, nil), mgr
}

func drain(s *Scheduler) []model.Event {
	var out []model.Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countByType(events []model.Event) map[model.EventType]int {
	counts := make(map[model.EventType]int)
	for _, ev := range events {
		counts[ev.Type]++
	}
	return counts
}

func TestTick_OpensSignalFromSuggestion(t *testing.T) {
	// 50-pip target, well over the 20-pip floor.
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	s.tick(context.Background())

	active := mgr.ActiveSignals("frxEURUSD")
	if len(active) != 1 {
		t.Fatalf("active signals = %d, want 1", len(active))
	}
	if active[0].Synthetic {
		t.Error("live-derived signal flagged synthetic")
	}
	if active[0].PipsTarget != 50.0 {
		t.Errorf("pips_target = %.1f, want 50.0", active[0].PipsTarget)
	}

	counts := countByType(drain(s))
	if counts[model.EventSignalOpened] != 1 {
		t.Errorf("signal_opened events = %d, want 1", counts[model.EventSignalOpened])
	}
	if counts[model.EventSessionUpdate] != 1 {
		t.Errorf("session_update events = %d, want 1", counts[model.EventSessionUpdate])
	}
}

func TestTick_FiltersSmallTargets(t *testing.T) {
	// 10-pip target falls under the 20-pip floor.
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0995, 1.1010)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	s.tick(context.Background())
	if active := mgr.ActiveSignals(""); len(active) != 0 {
		t.Fatalf("small-target signal admitted: %+v", active)
	}
}

func TestTick_DeduplicatesAcrossTicks(t *testing.T) {
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	s.tick(context.Background())
	s.tick(context.Background())
	s.tick(context.Background())

	if active := mgr.ActiveSignals("frxEURUSD"); len(active) != 1 {
		t.Fatalf("active signals = %d, want 1 (repolled setup must dedup)", len(active))
	}
	counts := countByType(drain(s))
	if counts[model.EventSignalOpened] != 1 {
		t.Errorf("signal_opened events = %d, want 1", counts[model.EventSignalOpened])
	}
}

func TestTick_ExitsBeforeNewSignals(t *testing.T) {
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1100, 1.1075, 1.1150)},
		},
		price: map[string]float64{"frxEURUSD": 1.1105},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	// Pre-existing signal whose target 1.1100 is passed by the tick price.
	mgr.Admit(&model.Signal{
		ID: "sig_old", Symbol: "frxEURUSD", Timeframe: model.TFH1,
		Type:  model.FVGBullish,
		Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100,
		CreatedAt: time.Now().UTC(), Status: model.SignalActive,
	})

	s.tick(context.Background())

	events := drain(s)
	closedIdx, openedIdx := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case model.EventSignalClosed:
			closedIdx = i
			if ev.SignalID != "sig_old" || ev.ExitReason != model.ExitTargetHit {
				t.Errorf("closed event = %+v, want sig_old/target_hit", ev)
			}
		case model.EventSignalOpened:
			openedIdx = i
		}
	}
	if closedIdx == -1 || openedIdx == -1 {
		t.Fatalf("missing events: closed=%d opened=%d", closedIdx, openedIdx)
	}
	if closedIdx > openedIdx {
		t.Error("signal_closed emitted after signal_opened within one symbol tick")
	}
}

func TestTick_PanicIsolatedToPair(t *testing.T) {
	fallbackSig := &model.Signal{
		ID: "sig_frxGBPUSD_H1_1", Symbol: "frxGBPUSD", Timeframe: model.TFH1,
		Type:  model.FVGBullish,
		Entry: 1.2750, StopLoss: 1.2720, TakeProfit: 1.2800,
		PipsTarget: 50, Synthetic: true,
		CreatedAt: time.Now().UTC(), Status: model.SignalActive,
	}
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price:  map[string]float64{"frxEURUSD": 1.1000, "frxGBPUSD": 1.2750},
		panics: map[pair]bool{{"frxGBPUSD", model.TFH1}: true},
	}
	fb := &stubFallback{signals: map[pair][]*model.Signal{
		{"frxGBPUSD", model.TFH1}: {fallbackSig},
	}}
	s, mgr := newTestScheduler(analyzer, fb, "frxEURUSD", "frxGBPUSD")

	s.tick(context.Background())

	if fb.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fb.calls)
	}
	// The healthy pair still opened its signal.
	if got := mgr.ActiveSignals("frxEURUSD"); len(got) != 1 {
		t.Errorf("frxEURUSD active = %d, want 1", len(got))
	}
	// The failed pair got a flagged synthetic signal instead of silence.
	got := mgr.ActiveSignals("frxGBPUSD")
	if len(got) != 1 || !got[0].Synthetic {
		t.Fatalf("frxGBPUSD active = %+v, want one synthetic signal", got)
	}
}

func TestFetchPrice_LastKnownBeatsSynthetic(t *testing.T) {
	analyzer := &stubAnalyzer{price: map[string]float64{"frxEURUSD": 1.1234}}
	s, _ := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	if got := s.fetchPrice(context.Background(), "frxEURUSD"); got != 1.1234 {
		t.Fatalf("live price = %.4f, want 1.1234", got)
	}

	// Feed degrades: the synthetic price differs, but the last live price
	// is closer to reality for exit checks.
	analyzer.source = model.SourceSynthetic
	analyzer.price["frxEURUSD"] = 1.0850
	if got := s.fetchPrice(context.Background(), "frxEURUSD"); got != 1.1234 {
		t.Fatalf("degraded price = %.4f, want last-known 1.1234", got)
	}
}

func TestTick_LogsWithSymbolTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, _ := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	s.tick(context.Background())

	out := buf.String()
	if !strings.Contains(out, `"msg":"signal opened"`) {
		t.Fatalf("no structured opened log:\n%s", out)
	}
	if !strings.Contains(out, `"trace_id":"frxEURUSD-`) {
		t.Errorf("opened log missing the symbol trace id:\n%s", out)
	}
}

func TestOpenedEventIsSnapshot(t *testing.T) {
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	s.tick(context.Background())

	var opened *model.Event
	for _, ev := range drain(s) {
		if ev.Type == model.EventSignalOpened {
			ev := ev
			opened = &ev
		}
	}
	if opened == nil {
		t.Fatal("no signal_opened event")
	}
	active := mgr.ActiveSignals("frxEURUSD")
	if len(active) != 1 {
		t.Fatalf("active signals = %d, want 1", len(active))
	}
	if opened.Signal == active[0] {
		t.Fatal("opened event shares the tracked signal pointer")
	}

	// A lagging consumer may still be serializing the opened event when a
	// later tick closes the signal. Closure must not reach the event copy.
	closed := mgr.Sweep("frxEURUSD", 1.1055)
	if len(closed) != 1 {
		t.Fatalf("swept = %d, want 1", len(closed))
	}
	if opened.Signal.Status != model.SignalActive {
		t.Errorf("event signal status = %s, want active after closure", opened.Signal.Status)
	}
	if opened.Signal.ExitReason != "" || opened.Signal.ClosedAt != nil {
		t.Errorf("event signal carries closure fields: %+v", opened.Signal)
	}
}

func TestTick_ContextCancelled(t *testing.T) {
	analyzer := &stubAnalyzer{
		suggestions: map[pair][]model.TradeSuggestion{
			{"frxEURUSD", model.TFH1}: {suggestion("frxEURUSD", model.TFH1, 1.1000, 1.0975, 1.1050)},
		},
		price: map[string]float64{"frxEURUSD": 1.1000},
	}
	s, mgr := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.tick(ctx)

	if active := mgr.ActiveSignals(""); len(active) != 0 {
		t.Errorf("cancelled tick admitted signals: %+v", active)
	}
}

func TestStatus(t *testing.T) {
	analyzer := &stubAnalyzer{price: map[string]float64{"frxEURUSD": 1.1}}
	s, _ := newTestScheduler(analyzer, &stubFallback{}, "frxEURUSD")

	st := s.Status()
	if st.Running {
		t.Error("reported running before Run")
	}
	if st.CheckInterval != "30 seconds" {
		t.Errorf("check_interval = %q, want \"30 seconds\"", st.CheckInterval)
	}
	if len(st.Symbols) != 1 || st.Symbols[0] != "frxEURUSD" {
		t.Errorf("symbols = %v", st.Symbols)
	}
}
