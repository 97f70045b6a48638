// Package liquidity finds swing-based liquidity levels.
//
// A swing high/low is a strict local extremum over two candles on each side.
// Swing lows below current price are buy-side liquidity, swing highs above
// are sell-side; each side keeps its top 5 levels by strength.
package liquidity

import (
	"sort"
	"time"

	"signal-systemv1/internal/model"
)

const (
	// MinCandles is the minimum window for a complete analysis.
	MinCandles = 20

	// distanceThreshold excludes levels too close to current price.
	distanceThreshold = 0.001
	// strengthNorm scales deviation-from-neighbors into a [0,1] strength.
	strengthNorm = 0.01
	// highSignificance is the strength cutoff for the "high" tier.
	highSignificance = 0.7

	maxLevelsPerSide = 5
)

// swingPoint is an internal swing extremum before side classification.
type swingPoint struct {
	price    float64
	index    int
	strength float64
}

// Detector finds buy-side and sell-side liquidity levels.
type Detector struct{}

// NewDetector creates a liquidity Detector.
func NewDetector() *Detector { return &Detector{} }

// FindLevels analyzes one candle series. With fewer than MinCandles it
// reports an incomplete analysis instead of failing.
func (d *Detector) FindLevels(series model.Series) model.LiquidityLevels {
	now := time.Now().UTC()
	if len(series) < MinCandles {
		return model.LiquidityLevels{
			BuySide:   []model.LiquidityLevel{},
			SellSide:  []model.LiquidityLevel{},
			Message:   "insufficient data for liquidity analysis",
			Timestamp: now,
		}
	}

	highs := series.Highs()
	lows := series.Lows()
	current := series.LastClose()

	buySide := classify(swingLows(highs, lows), current, model.SideBuy)
	sellSide := classify(swingHighs(highs, lows), current, model.SideSell)

	return model.LiquidityLevels{
		BuySide:          buySide,
		SellSide:         sellSide,
		StrongestBuy:     strongest(buySide),
		StrongestSell:    strongest(sellSide),
		CurrentPrice:     current,
		AnalysisComplete: true,
		Timestamp:        now,
	}
}

// CheckSweep flags levels the current close has crossed past: price below a
// buy-side level or above a sell-side level, with the overshoot magnitude.
func (d *Detector) CheckSweep(series model.Series, levels model.LiquidityLevels) model.SweepReport {
	report := model.SweepReport{Swept: []model.SweptLevel{}, Timestamp: time.Now().UTC()}
	if len(series) == 0 || !levels.AnalysisComplete {
		return report
	}
	current := series.LastClose()

	for _, lvl := range levels.BuySide {
		if current < lvl.Price {
			report.Swept = append(report.Swept, model.SweptLevel{
				Level:     lvl,
				Side:      model.SideBuy,
				Price:     current,
				Magnitude: abs(current - lvl.Price),
			})
		}
	}
	for _, lvl := range levels.SellSide {
		if current > lvl.Price {
			report.Swept = append(report.Swept, model.SweptLevel{
				Level:     lvl,
				Side:      model.SideSell,
				Price:     current,
				Magnitude: abs(current - lvl.Price),
			})
		}
	}
	report.Detected = len(report.Swept) > 0
	return report
}

// swingHighs finds indices i (2 <= i <= n-3) where high[i] strictly exceeds
// its four neighbors at i±1, i±2.
func swingHighs(highs, lows []float64) []swingPoint {
	var out []swingPoint
	for i := 2; i < len(highs)-2; i++ {
		h := highs[i]
		if h > highs[i-1] && h > highs[i-2] && h > highs[i+1] && h > highs[i+2] {
			out = append(out, swingPoint{
				price:    h,
				index:    i,
				strength: levelStrength(h, highs[i-2], highs[i-1], highs[i+1], highs[i+2]),
			})
		}
	}
	return out
}

// swingLows is the symmetric strict-minimum condition on lows.
func swingLows(highs, lows []float64) []swingPoint {
	var out []swingPoint
	for i := 2; i < len(lows)-2; i++ {
		l := lows[i]
		if l < lows[i-1] && l < lows[i-2] && l < lows[i+1] && l < lows[i+2] {
			out = append(out, swingPoint{
				price:    l,
				index:    i,
				strength: levelStrength(l, lows[i-2], lows[i-1], lows[i+1], lows[i+2]),
			})
		}
	}
	return out
}

// levelStrength scores how far a swing point sticks out from its neighbors.
func levelStrength(price float64, neighbors ...float64) float64 {
	var sum float64
	for _, n := range neighbors {
		sum += n
	}
	avg := sum / float64(len(neighbors))
	s := abs(price-avg) / strengthNorm
	if s > 1 {
		s = 1
	}
	return model.Round2(s)
}

// classify keeps swing points on the correct side of current price, beyond
// the distance threshold, sorted by strength descending, capped to top 5.
func classify(points []swingPoint, current float64, side model.Side) []model.LiquidityLevel {
	out := []model.LiquidityLevel{}
	for _, p := range points {
		if side == model.SideBuy && p.price >= current {
			continue
		}
		if side == model.SideSell && p.price <= current {
			continue
		}
		distance := abs(current - p.price)
		if distance <= distanceThreshold {
			continue
		}
		sig := model.SignificanceMedium
		if p.strength > highSignificance {
			sig = model.SignificanceHigh
		}
		out = append(out, model.LiquidityLevel{
			Price:        p.price,
			Strength:     p.strength,
			Distance:     model.Round5(distance),
			Side:         side,
			Significance: sig,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	if len(out) > maxLevelsPerSide {
		out = out[:maxLevelsPerSide]
	}
	return out
}

func strongest(levels []model.LiquidityLevel) *model.LiquidityLevel {
	if len(levels) == 0 {
		return nil
	}
	best := levels[0]
	for _, lvl := range levels[1:] {
		if lvl.Strength > best.Strength {
			best = lvl
		}
	}
	return &best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
