// Package engine composes the bias, liquidity and gap detectors into full
// Silver Bullet analyses and trade suggestions.
package engine

import (
	"fmt"
	"math"
	"time"

	"signal-systemv1/internal/analysis/bias"
	"signal-systemv1/internal/analysis/fvg"
	"signal-systemv1/internal/analysis/liquidity"
	"signal-systemv1/internal/model"
)

// Config tunes setup filtering and position sizing. Zero values take the
// documented defaults.
type Config struct {
	MinSetupQuality float64 // default 0.7
	MinRiskReward   float64 // default 2.0
	AccountBalance  float64 // default 10000
	RiskPerTrade    float64 // fraction of balance, default 0.02
}

func (c *Config) defaults() {
	if c.MinSetupQuality == 0 {
		c.MinSetupQuality = 0.7
	}
	if c.MinRiskReward == 0 {
		c.MinRiskReward = 2.0
	}
	if c.AccountBalance == 0 {
		c.AccountBalance = 10000
	}
	if c.RiskPerTrade == 0 {
		c.RiskPerTrade = 0.02
	}
}

// Composer runs the three detectors over one candle window and scores the
// resulting setups.
type Composer struct {
	cfg  Config
	bias *bias.Detector
	liq  *liquidity.Detector
	gaps *fvg.Detector
}

// NewComposer builds a Composer with the given filter configuration.
func NewComposer(cfg Config) *Composer {
	cfg.defaults()
	return &Composer{
		cfg:  cfg,
		bias: bias.NewDetector(),
		liq:  liquidity.NewDetector(),
		gaps: fvg.NewDetector(),
	}
}

// Analyze runs the full pipeline over series and returns the combined
// analysis, including quality-filtered setups and trade suggestions.
func (c *Composer) Analyze(symbol string, tf model.Timeframe, series model.Series, source model.Source) model.Analysis {
	out := model.Analysis{
		Symbol:    symbol,
		Timeframe: tf,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}

	out.Bias = c.bias.Determine(series, tf)
	out.Liquidity = c.liq.FindLevels(series)
	out.Gaps = c.gaps.Detect(series)
	out.Setups = c.gaps.Setups(out.Gaps, out.Liquidity, out.Bias)

	for _, s := range out.Setups {
		if s.QualityScore >= c.cfg.MinSetupQuality {
			out.HighQuality = append(out.HighQuality, s)
		}
	}
	for _, s := range out.HighQuality {
		if sug, ok := c.suggest(symbol, tf, s); ok {
			out.Suggestions = append(out.Suggestions, sug)
		}
	}
	return out
}

// suggest turns a high-quality setup into a TradeSuggestion, dropping
// setups whose best risk-reward ratio misses the configured minimum.
func (c *Composer) suggest(symbol string, tf model.Timeframe, s model.SilverBulletSetup) (model.TradeSuggestion, bool) {
	t := s.FVG.Targets
	if t.RiskReward1 < c.cfg.MinRiskReward && t.RiskReward2 < c.cfg.MinRiskReward {
		return model.TradeSuggestion{}, false
	}
	return model.TradeSuggestion{
		SetupID:      fmt.Sprintf("sb_%s_%s_%s", symbol, tf, s.FVG.ID),
		Type:         s.FVG.Type,
		Symbol:       symbol,
		Timeframe:    tf,
		Entry:        t.Entry,
		StopLoss:     t.StopLoss,
		TakeProfit1:  t.TakeProfit1,
		TakeProfit2:  t.TakeProfit2,
		RiskReward1:  t.RiskReward1,
		RiskReward2:  t.RiskReward2,
		Position:     c.positionSize(t.Entry, t.StopLoss),
		Confidence:   s.FVG.Confidence,
		SetupQuality: s.QualityScore,
		CreatedAt:    time.Now().UTC(),
	}, true
}

// positionSize is fixed-fractional sizing: the configured fraction of the
// account is risked over the entry-stop distance expressed in pips.
func (c *Composer) positionSize(entry, stop float64) model.PositionSize {
	riskAmount := c.cfg.AccountBalance * c.cfg.RiskPerTrade
	dist := entry - stop
	if dist < 0 {
		dist = -dist
	}
	units := 0
	if dist > 0 {
		units = int(math.Round(riskAmount / (dist / model.Pip)))
	}
	return model.PositionSize{
		Units:       units,
		RiskAmount:  riskAmount,
		RiskPercent: c.cfg.RiskPerTrade * 100,
	}
}
