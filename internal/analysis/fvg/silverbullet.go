package fvg

import (
	"time"

	"signal-systemv1/internal/model"
)

const (
	// proximityRange is how close a gap's entry must be to same-side
	// liquidity (20 pips).
	proximityRange = 0.002

	// defaultLevelStrength fills in for the quality score when no
	// strongest level is available.
	defaultLevelStrength = 0.5
)

// Setups evaluates every active gap in a scan as a Silver Bullet setup
// against the current liquidity and bias pictures.
func (d *Detector) Setups(scan model.GapScan, liq model.LiquidityLevels, bias model.BiasResult) []model.SilverBulletSetup {
	setups := []model.SilverBulletSetup{}
	if !scan.AnalysisComplete {
		return setups
	}
	for _, gap := range scan.Active {
		if setup := d.EvaluateSetup(gap, liq, bias); setup != nil {
			setups = append(setups, *setup)
		}
	}
	return setups
}

// EvaluateSetup checks one gap for Silver Bullet validity: the gap type
// must match the bias exactly (neutral accepts nothing), and the gap's
// entry must sit near same-side liquidity. Returns nil when rejected.
func (d *Detector) EvaluateSetup(gap model.FairValueGap, liq model.LiquidityLevels, bias model.BiasResult) *model.SilverBulletSetup {
	reason, aligned := biasAlignment(gap.Type, bias.Bias)
	if !aligned {
		return nil
	}

	nearest, distance, ok := liquidityProximity(gap, liq)
	if !ok {
		return nil
	}

	return &model.SilverBulletSetup{
		FVG:           gap,
		BiasReason:    reason,
		NearestLevel:  nearest,
		LevelDistance: model.Round5(distance),
		QualityScore:  setupQuality(gap, liq, bias),
		Timestamp:     time.Now().UTC(),
	}
}

func biasAlignment(typ model.FVGType, b model.Bias) (string, bool) {
	switch {
	case typ == model.FVGBullish && b == model.BiasBullish:
		return "bullish FVG in bullish bias", true
	case typ == model.FVGBearish && b == model.BiasBearish:
		return "bearish FVG in bearish bias", true
	default:
		return "", false
	}
}

// liquidityProximity finds the nearest same-side level to the gap's entry:
// buy-side for bullish gaps, sell-side for bearish. Rejects when the list
// is empty or nothing is within range.
func liquidityProximity(gap model.FairValueGap, liq model.LiquidityLevels) (*model.LiquidityLevel, float64, bool) {
	if !liq.AnalysisComplete {
		return nil, 0, false
	}
	levels := liq.BuySide
	if gap.Type == model.FVGBearish {
		levels = liq.SellSide
	}
	if len(levels) == 0 {
		return nil, 0, false
	}

	entry := gap.Entry()
	var nearest *model.LiquidityLevel
	nearestDist := 0.0
	for i := range levels {
		d := abs(entry - levels[i].Price)
		if nearest == nil || d < nearestDist {
			nearest = &levels[i]
			nearestDist = d
		}
	}
	if nearestDist >= proximityRange {
		return nil, 0, false
	}
	return nearest, nearestDist, true
}

// setupQuality blends gap confidence, gap size, bias confidence, and the
// strength of the matching side's strongest level.
func setupQuality(gap model.FairValueGap, liq model.LiquidityLevels, bias model.BiasResult) float64 {
	strength := defaultLevelStrength
	if liq.AnalysisComplete {
		if gap.Type == model.FVGBullish && liq.StrongestBuy != nil {
			strength = liq.StrongestBuy.Strength
		} else if gap.Type == model.FVGBearish && liq.StrongestSell != nil {
			strength = liq.StrongestSell.Strength
		}
	}

	q := gap.Confidence*0.4 +
		clamp01(gap.GapSize/sizeNorm)*0.3 +
		bias.Confidence*0.2 +
		strength*0.1
	return model.Round2(q)
}
