package model

import (
	"encoding/json"
	"time"
)

// SignalStatus is the lifecycle state of a tracked signal.
// The only transition is active → closed, exactly once.
type SignalStatus string

const (
	SignalActive SignalStatus = "active"
	SignalClosed SignalStatus = "closed"
)

// ExitReason records which exit condition closed a signal.
type ExitReason string

const (
	ExitTargetHit   ExitReason = "target_hit"
	ExitStopLossHit ExitReason = "stop_loss_hit"
	ExitTimeExpired ExitReason = "time_expired"
)

// TradeStyle classifies a signal by its pip target.
type TradeStyle string

const (
	StyleScalp   TradeStyle = "scalp"   // <= 30 pips
	StyleSwing   TradeStyle = "swing"   // <= 100 pips
	StyleSession TradeStyle = "session" // > 100 pips
)

// ClassifyTradeStyle maps a pip target to a trade style.
func ClassifyTradeStyle(pipsTarget float64) TradeStyle {
	switch {
	case pipsTarget <= 30:
		return StyleScalp
	case pipsTarget <= 100:
		return StyleSwing
	default:
		return StyleSession
	}
}

// TradingSession returns the market session label for a UTC time.
func TradingSession(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h < 8:
		return "Asian"
	case h < 16:
		return "London"
	default:
		return "New York"
	}
}

// Signal is the only long-lived mutable entity: a tracked trade idea owned
// by the lifecycle manager. Direction is implied by the levels:
// take_profit > entry means bullish.
type Signal struct {
	ID         string       `json:"signal_id"`
	Symbol     string       `json:"symbol"`
	Timeframe  Timeframe    `json:"timeframe"`
	Type       FVGType      `json:"type"`
	Entry      float64      `json:"entry"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
	PipsTarget float64      `json:"pips_target"`
	Style      TradeStyle   `json:"trade_style"`
	Session    string       `json:"session"`
	Confidence float64      `json:"confidence"`
	Synthetic  bool         `json:"synthetic"` // fallback-generated, not analysis-derived
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	Status     SignalStatus `json:"status"`
	ExitReason ExitReason   `json:"exit_reason,omitempty"`
	ExitPrice  float64      `json:"exit_price,omitempty"`
	PipsGained float64      `json:"pips_gained,omitempty"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
}

// IsBullish reports the signal direction, derived from its levels.
func (s *Signal) IsBullish() bool { return s.TakeProfit > s.Entry }

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// ExitOutcome is the result of one exit-condition evaluation.
type ExitOutcome struct {
	Reason     ExitReason `json:"reason"`
	ExitPrice  float64    `json:"exit_price"`
	PipsGained float64    `json:"pips_gained"`
}

// SessionStats aggregates closed-signal outcomes for the current session.
// Monotonically updated, one update per closure.
type SessionStats struct {
	TotalPips     float64 `json:"total_pips"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"` // percent, 1 decimal
}

// ServiceStatus is a snapshot of the scheduler for status endpoints.
type ServiceStatus struct {
	Running       bool         `json:"is_running"`
	Symbols       []string     `json:"monitored_symbols"`
	Timeframes    []Timeframe  `json:"monitored_timeframes"`
	CheckInterval string       `json:"check_interval"`
	ActiveSignals int          `json:"active_signals_count"`
	ClosedSignals int          `json:"closed_signals_count"`
	SessionStats  SessionStats `json:"session_summary"`
}
