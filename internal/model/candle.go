package model

import (
	"encoding/json"
	"math"
	"time"
)

// Candle represents a single OHLC bar for a currency pair.
// Prices are quoted with 5 decimals (0.0001 = 1 pip for the majors).
// Candles are immutable once produced by the data feed.
type Candle struct {
	Timestamp time.Time `json:"timestamp"` // bar open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Series is an ordered candle sequence, oldest first.
// The last element is the current bar.
type Series []Candle

// Closes extracts the close prices, oldest first.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Highs extracts the high prices, oldest first.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].High
	}
	return out
}

// Lows extracts the low prices, oldest first.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Low
	}
	return out
}

// LastClose returns the close of the current bar, or 0 for an empty series.
func (s Series) LastClose() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Close
}

// Pip is the standardized minimum price increment for this domain.
const Pip = 0.0001

// Round5 rounds a price to 5 decimals (pipette precision).
func Round5(v float64) float64 { return math.Round(v*1e5) / 1e5 }

// Round2 rounds a score to 2 decimals.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Round1 rounds a pip amount to 1 decimal.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }
