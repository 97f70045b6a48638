package model

import "time"

// Bias is the prevailing directional lean of price relative to its EMA.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// BiasResult is the output of one EMA bias determination.
// Recomputed fresh on every query; never persisted.
type BiasResult struct {
	Bias         Bias      `json:"bias"`
	Confidence   float64   `json:"confidence"` // [0,1]
	EMAValue     float64   `json:"ema_value"`
	CurrentPrice float64   `json:"current_price"`
	PriceVsEMA   float64   `json:"price_vs_ema"`
	EMAPeriod    int       `json:"ema_period"`
	Timeframe    Timeframe `json:"timeframe"`
	Timestamp    time.Time `json:"timestamp"`
}

// MultiTFBias aggregates bias across several timeframes by majority vote.
type MultiTFBias struct {
	Overall      Bias                        `json:"overall_bias"`
	Confidence   float64                     `json:"overall_confidence"` // simple average
	ByTimeframe  map[Timeframe]BiasResult    `json:"timeframe_analysis"`
	Distribution map[Bias]int                `json:"bias_distribution"`
	Timestamp    time.Time                   `json:"timestamp"`
}
