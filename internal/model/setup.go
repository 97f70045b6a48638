package model

import "time"

// SilverBulletSetup is a composite opportunity: an active FVG aligned with
// the current bias and close to same-side liquidity. Ephemeral, recomputed
// per analysis cycle, never mutated after creation.
type SilverBulletSetup struct {
	FVG           FairValueGap    `json:"fvg"`
	BiasReason    string          `json:"bias_alignment"`
	NearestLevel  *LiquidityLevel `json:"nearest_level,omitempty"`
	LevelDistance float64         `json:"level_distance"`
	QualityScore  float64         `json:"quality_score"` // [0,1]
	Timestamp     time.Time       `json:"timestamp"`
}

// PositionSize is the fixed-fractional sizing for one suggestion.
type PositionSize struct {
	Units       int     `json:"units"`
	RiskAmount  float64 `json:"risk_amount"`  // account currency at risk
	RiskPercent float64 `json:"risk_percent"` // of balance
}

// TradeSuggestion is derived 1:1 from a qualifying SilverBulletSetup.
type TradeSuggestion struct {
	SetupID      string       `json:"setup_id"`
	Type         FVGType      `json:"type"`
	Symbol       string       `json:"symbol"`
	Timeframe    Timeframe    `json:"timeframe"`
	Entry        float64      `json:"entry"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit1  float64      `json:"take_profit_1"`
	TakeProfit2  float64      `json:"take_profit_2"`
	RiskReward1  float64      `json:"risk_reward_1"`
	RiskReward2  float64      `json:"risk_reward_2"`
	Position     PositionSize `json:"position_size"`
	Confidence   float64      `json:"confidence"`
	SetupQuality float64      `json:"setup_quality"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Source tags where an analysis or signal came from. Synthetic output is
// always flagged so downstream consumers never mistake it for live data.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// Analysis is the full output of one analyzer pass for a symbol/timeframe.
type Analysis struct {
	Symbol      string              `json:"symbol"`
	Timeframe   Timeframe           `json:"timeframe"`
	Source      Source              `json:"source"`
	Bias        BiasResult          `json:"bias"`
	Liquidity   LiquidityLevels     `json:"liquidity"`
	Gaps        GapScan             `json:"fvgs"`
	Setups      []SilverBulletSetup `json:"setups"`
	HighQuality []SilverBulletSetup `json:"high_quality_setups"`
	Suggestions []TradeSuggestion   `json:"trade_suggestions"`
	Timestamp   time.Time           `json:"timestamp"`
}
