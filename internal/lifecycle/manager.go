// Package lifecycle owns active signals and drives them through their
// single state transition: active → closed. Closure fires on the first of
// target hit, stop hit, or time expiry, and is idempotent per signal.
package lifecycle

import (
	"fmt"
	"log"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

const (
	// DefaultExpiry is the fixed signal horizon from creation.
	DefaultExpiry = 4 * time.Hour

	// dedupEntryRange rejects a candidate whose entry is within this
	// distance of an active same-timeframe signal.
	dedupEntryRange = 0.001

	pipFactor = 10000
)

// Manager tracks active signals per symbol and keeps an append-only log of
// closed ones. Safe for concurrent use.
type Manager struct {
	expiry time.Duration
	now    func() time.Time

	mu     sync.Mutex
	active map[string][]*model.Signal // keyed by symbol
	closed []*model.Signal
	stats  model.SessionStats
}

// NewManager creates a Manager with the given signal expiry horizon
// (DefaultExpiry if zero).
func NewManager(expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Manager{
		expiry: expiry,
		now:    time.Now,
		active: make(map[string][]*model.Signal),
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// BuildSignal turns a trade suggestion into a trackable signal. The first
// take-profit is the tracked target; expiry is a fixed horizon from now.
func (m *Manager) BuildSignal(sug model.TradeSuggestion, synthetic bool) *model.Signal {
	now := m.now().UTC()
	pipsTarget := model.Round1(abs(sug.TakeProfit1-sug.Entry) * pipFactor)
	return &model.Signal{
		ID:         fmt.Sprintf("sig_%s_%s_%d", sug.Symbol, sug.Timeframe, now.UnixNano()),
		Symbol:     sug.Symbol,
		Timeframe:  sug.Timeframe,
		Type:       sug.Type,
		Entry:      sug.Entry,
		StopLoss:   sug.StopLoss,
		TakeProfit: sug.TakeProfit1,
		PipsTarget: pipsTarget,
		Style:      model.ClassifyTradeStyle(pipsTarget),
		Session:    model.TradingSession(now),
		Confidence: sug.Confidence,
		Synthetic:  synthetic,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.expiry),
		Status:     model.SignalActive,
	}
}

// Admit registers a signal unless an active signal on the same timeframe
// already sits within dedupEntryRange of its entry. Missing expiry gets the
// configured horizon. Returns false on rejection.
func (m *Manager) Admit(sig *model.Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.active[sig.Symbol] {
		if existing.Timeframe != sig.Timeframe {
			continue
		}
		if abs(existing.Entry-sig.Entry) < dedupEntryRange {
			log.Printf("[lifecycle] %s: duplicate of %s (entry %.5f vs %.5f), rejected",
				sig.ID, existing.ID, sig.Entry, existing.Entry)
			return false
		}
	}

	if sig.ExpiresAt.IsZero() {
		sig.ExpiresAt = sig.CreatedAt.Add(m.expiry)
	}
	sig.Status = model.SignalActive
	m.active[sig.Symbol] = append(m.active[sig.Symbol], sig)
	return true
}

// CheckExit evaluates one active signal against a price. Target and stop
// are checked before expiry; exactly one reason fires. Returns nil while
// the signal stays active or if it is already closed.
func (m *Manager) CheckExit(sig *model.Signal, price float64) *model.ExitOutcome {
	if sig.Status != model.SignalActive {
		return nil
	}

	if sig.IsBullish() {
		if price >= sig.TakeProfit {
			return &model.ExitOutcome{
				Reason:     model.ExitTargetHit,
				ExitPrice:  price,
				PipsGained: model.Round1(abs(sig.TakeProfit-sig.Entry) * pipFactor),
			}
		}
		if price <= sig.StopLoss {
			return &model.ExitOutcome{
				Reason:     model.ExitStopLossHit,
				ExitPrice:  price,
				PipsGained: -model.Round1(abs(sig.StopLoss-sig.Entry) * pipFactor),
			}
		}
	} else {
		if price <= sig.TakeProfit {
			return &model.ExitOutcome{
				Reason:     model.ExitTargetHit,
				ExitPrice:  price,
				PipsGained: model.Round1(abs(sig.TakeProfit-sig.Entry) * pipFactor),
			}
		}
		if price >= sig.StopLoss {
			return &model.ExitOutcome{
				Reason:     model.ExitStopLossHit,
				ExitPrice:  price,
				PipsGained: -model.Round1(abs(sig.StopLoss-sig.Entry) * pipFactor),
			}
		}
	}

	if m.now().UTC().After(sig.ExpiresAt) {
		// Expiry pips are signed by whether price moved favorably.
		moved := price - sig.Entry
		if !sig.IsBullish() {
			moved = -moved
		}
		return &model.ExitOutcome{
			Reason:     model.ExitTimeExpired,
			ExitPrice:  price,
			PipsGained: model.Round1(moved * pipFactor),
		}
	}
	return nil
}

// Close applies an exit outcome: moves the signal to the closed log and
// updates session stats. Idempotent; a second close is a no-op returning
// false.
func (m *Manager) Close(sig *model.Signal, outcome model.ExitOutcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig.Status != model.SignalActive {
		return false
	}

	now := m.now().UTC()
	sig.Status = model.SignalClosed
	sig.ExitReason = outcome.Reason
	sig.ExitPrice = outcome.ExitPrice
	sig.PipsGained = outcome.PipsGained
	sig.ClosedAt = &now

	list := m.active[sig.Symbol]
	for i, s := range list {
		if s.ID == sig.ID {
			m.active[sig.Symbol] = append(list[:i], list[i+1:]...)
			break
		}
	}
	m.closed = append(m.closed, sig)

	m.stats.TotalTrades++
	m.stats.TotalPips = model.Round1(m.stats.TotalPips + outcome.PipsGained)
	if outcome.PipsGained > 0 {
		m.stats.WinningTrades++
	} else {
		m.stats.LosingTrades++
	}
	m.stats.WinRate = model.Round1(float64(m.stats.WinningTrades) / float64(m.stats.TotalTrades) * 100)
	return true
}

// Sweep runs CheckExit over every active signal of a symbol and closes the
// ones that fired, returning them with their outcomes applied.
func (m *Manager) Sweep(symbol string, price float64) []*model.Signal {
	m.mu.Lock()
	snapshot := append([]*model.Signal(nil), m.active[symbol]...)
	m.mu.Unlock()

	var closed []*model.Signal
	for _, sig := range snapshot {
		outcome := m.CheckExit(sig, price)
		if outcome == nil {
			continue
		}
		if m.Close(sig, *outcome) {
			closed = append(closed, sig)
		}
	}
	return closed
}

// ActiveSignals returns a snapshot of the active signals for one symbol,
// or for all symbols when symbol is empty.
func (m *Manager) ActiveSignals(symbol string) []*model.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if symbol != "" {
		return append([]*model.Signal(nil), m.active[symbol]...)
	}
	var out []*model.Signal
	for _, list := range m.active {
		out = append(out, list...)
	}
	return out
}

// ClosedSignals returns a snapshot of the closed-signal log, newest last.
func (m *Manager) ClosedSignals() []*model.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Signal(nil), m.closed...)
}

// SessionSummary returns the aggregated closed-signal stats.
func (m *Manager) SessionSummary() model.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Counts returns active and closed signal totals.
func (m *Manager) Counts() (active, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.active {
		active += len(list)
	}
	return active, len(m.closed)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
