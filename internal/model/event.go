package model

import (
	"encoding/json"
	"time"
)

// EventType identifies a lifecycle event pushed to subscribers.
type EventType string

const (
	EventSignalOpened  EventType = "signal_opened"
	EventSignalClosed  EventType = "signal_closed"
	EventSessionUpdate EventType = "session_update"
)

// Event is the broadcast envelope payload. Exactly one of Signal / the exit
// fields / Stats is populated, according to Type. Delivery is best-effort,
// at-most-once per subscriber.
type Event struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol,omitempty"`
	Timeframe Timeframe `json:"timeframe,omitempty"`

	// signal_opened
	Signal *Signal `json:"signal,omitempty"`

	// signal_closed
	SignalID   string     `json:"signal_id,omitempty"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	PipsGained float64    `json:"pips_gained,omitempty"`

	// session_update
	Stats *SessionStats `json:"session_stats,omitempty"`

	Timestamp time.Time `json:"ts"`
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Channel returns the PubSub channel this event is published on.
func (e *Event) Channel() string {
	if e.Symbol == "" {
		return "pub:signals:all"
	}
	return "pub:signals:" + e.Symbol
}
