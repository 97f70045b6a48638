package model

import "time"

// Side distinguishes buy-side liquidity (swing lows below price) from
// sell-side liquidity (swing highs above price).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Significance classifies the strength tier of a liquidity level.
type Significance string

const (
	SignificanceHigh   Significance = "high"
	SignificanceMedium Significance = "medium"
)

// LiquidityLevel is a price zone derived from a swing point, expected to
// attract stop-loss or pending-order clusters.
type LiquidityLevel struct {
	Price        float64      `json:"price"`
	Strength     float64      `json:"strength"` // [0,1]
	Distance     float64      `json:"distance"` // from current price
	Side         Side         `json:"side"`
	Significance Significance `json:"significance"`
}

// LiquidityLevels is one LiquidityDetector pass over a candle window.
// AnalysisComplete=false carries an explanation instead of levels.
type LiquidityLevels struct {
	BuySide          []LiquidityLevel `json:"buy_side_liquidity"`
	SellSide         []LiquidityLevel `json:"sell_side_liquidity"`
	StrongestBuy     *LiquidityLevel  `json:"strongest_buy,omitempty"`
	StrongestSell    *LiquidityLevel  `json:"strongest_sell,omitempty"`
	CurrentPrice     float64          `json:"current_price"`
	AnalysisComplete bool             `json:"analysis_complete"`
	Message          string           `json:"message,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// SweptLevel records a liquidity level the current close has crossed past.
type SweptLevel struct {
	Level     LiquidityLevel `json:"level"`
	Side      Side           `json:"side"`
	Price     float64        `json:"sweep_price"`
	Magnitude float64        `json:"sweep_magnitude"` // overshoot distance
}

// SweepReport is the output of a liquidity sweep check.
type SweepReport struct {
	Detected  bool         `json:"sweep_detected"`
	Swept     []SweptLevel `json:"swept_levels"`
	Timestamp time.Time    `json:"timestamp"`
}
