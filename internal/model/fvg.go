package model

import "time"

// FVGType is the direction of a Fair Value Gap.
type FVGType string

const (
	FVGBullish FVGType = "bullish"
	FVGBearish FVGType = "bearish"
)

// FVGStatus is the fill state of a gap. The transition active → filled is
// one-way; a filled gap never reverts.
type FVGStatus string

const (
	FVGActive FVGStatus = "active"
	FVGFilled FVGStatus = "filled"
)

// TargetLevels are the trade levels derived from a gap's edges.
// All prices rounded to 5 decimals; ratios to 2.
type TargetLevels struct {
	Entry       float64 `json:"entry"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit1 float64 `json:"take_profit_1"`
	TakeProfit2 float64 `json:"take_profit_2"`
	RiskReward1 float64 `json:"risk_reward_1"`
	RiskReward2 float64 `json:"risk_reward_2"`
}

// FairValueGap is a three-candle price imbalance. GapBottom < GapTop always:
// for a bullish gap the edges are (third candle high, first candle low), for
// a bearish gap (first candle high, third candle low).
type FairValueGap struct {
	ID             string       `json:"id"`
	Type           FVGType      `json:"type"`
	GapTop         float64      `json:"gap_top"`
	GapBottom      float64      `json:"gap_bottom"`
	GapSize        float64      `json:"gap_size"`
	FormationTime  time.Time    `json:"formation_time"`  // middle-candle timestamp
	FormationIndex int          `json:"formation_index"` // middle-candle index
	Status         FVGStatus    `json:"status"`
	FillPrice      float64      `json:"fill_price,omitempty"`
	FillTime       *time.Time   `json:"fill_time,omitempty"`
	FillIndex      int          `json:"fill_index,omitempty"` // earliest qualifying candle
	Targets        TargetLevels `json:"target_levels"`
	Confidence     float64      `json:"confidence"` // [0,1]
}

// Entry is the gap edge a trade would enter at: the bottom for bullish
// gaps (price returning from above), the top for bearish ones.
func (g *FairValueGap) Entry() float64 {
	if g.Type == FVGBullish {
		return g.GapBottom
	}
	return g.GapTop
}

// GapScan is one GapDetector pass over a candle window.
type GapScan struct {
	Gaps             []FairValueGap `json:"fvgs"`
	Active           []FairValueGap `json:"active_fvgs"`
	Filled           []FairValueGap `json:"filled_fvgs"`
	AnalysisComplete bool           `json:"analysis_complete"`
	Message          string         `json:"message,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}
