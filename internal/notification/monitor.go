package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

const defaultCooldown = 15 * time.Minute

// Monitor consumes lifecycle events and fans alerts out to the configured
// backends: one alert per opened or closed signal, plus a throttled warning
// whenever a synthetic (fallback-generated) signal shows up, which means the
// live feed is degraded for that symbol.
type Monitor struct {
	notifiers []Notifier
	cooldown  time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewMonitor creates a Monitor delivering to the given backends.
func NewMonitor(notifiers ...Notifier) *Monitor {
	return &Monitor{
		notifiers: notifiers,
		cooldown:  defaultCooldown,
		lastAlert: make(map[string]time.Time),
	}
}

// Run consumes events until ctx is cancelled or the channel is closed.
func (m *Monitor) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev model.Event) {
	switch ev.Type {
	case model.EventSignalOpened:
		if ev.Signal == nil {
			return
		}
		sig := ev.Signal
		direction := "SELL"
		if sig.IsBullish() {
			direction = "BUY"
		}
		m.send(ctx, Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("New %s signal: %s %s", direction, sig.Symbol, sig.Timeframe),
			Message: fmt.Sprintf("Entry %.5f, SL %.5f, TP %.5f (%.1f pips, %s)",
				sig.Entry, sig.StopLoss, sig.TakeProfit, sig.PipsTarget, sig.Style),
			Signal: sig,
		})
		if sig.Synthetic {
			m.feedDegraded(ctx, sig.Symbol)
		}

	case model.EventSignalClosed:
		level := AlertInfo
		if ev.ExitReason == model.ExitStopLossHit {
			level = AlertWarning
		}
		m.send(ctx, Alert{
			Level:   level,
			Title:   fmt.Sprintf("Signal closed: %s (%s)", ev.SignalID, ev.ExitReason),
			Message: fmt.Sprintf("Exit %.5f, %+.1f pips", ev.ExitPrice, ev.PipsGained),
		})
	}
}

// feedDegraded raises a throttled warning that a symbol is running on
// synthetic data.
func (m *Monitor) feedDegraded(ctx context.Context, symbol string) {
	key := "feed_degraded:" + symbol
	now := time.Now()

	m.mu.Lock()
	last, seen := m.lastAlert[key]
	if seen && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		return
	}
	m.lastAlert[key] = now
	m.mu.Unlock()

	m.send(ctx, Alert{
		Level:   AlertWarning,
		Title:   "Market feed degraded: " + symbol,
		Message: "Signals for this symbol are being generated from synthetic data.",
	})
}

func (m *Monitor) send(ctx context.Context, alert Alert) {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
	}
}
