// Package fvg detects Fair Value Gaps: three-candle imbalances where the
// first candle's extreme does not overlap the third candle's opposite
// extreme. Gaps track their fill state against subsequent candles and carry
// trade target levels plus a volatility-weighted confidence score.
package fvg

import (
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

const (
	// MinCandles is the minimum window for a gap scan.
	MinCandles = 5

	// minGapSize is the smallest gap worth reporting (2 pips).
	minGapSize = 0.0002

	// atrLookback bounds the pre-formation window for the volatility factor.
	atrLookback   = 10
	atrMinCandles = 5
	defaultATR    = 0.001

	sizeNorm = 0.001
	atrNorm  = 0.002
)

// Detector finds Fair Value Gaps in candle series.
type Detector struct{}

// NewDetector creates a gap Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect scans the series for gaps. Each three-candle window (i-2, i-1, i)
// emits at most one gap, bullish checked first. With fewer than MinCandles
// the scan reports incomplete instead of failing.
func (d *Detector) Detect(series model.Series) model.GapScan {
	now := time.Now().UTC()
	if len(series) < MinCandles {
		return model.GapScan{
			Gaps:      []model.FairValueGap{},
			Active:    []model.FairValueGap{},
			Filled:    []model.FairValueGap{},
			Message:   "insufficient data for FVG analysis",
			Timestamp: now,
		}
	}

	scan := model.GapScan{
		Gaps:             []model.FairValueGap{},
		Active:           []model.FairValueGap{},
		Filled:           []model.FairValueGap{},
		AnalysisComplete: true,
		Timestamp:        now,
	}

	for i := 2; i < len(series)-1; i++ {
		gap := d.analyzeWindow(series, i)
		if gap == nil {
			continue
		}
		scan.Gaps = append(scan.Gaps, *gap)
		if gap.Status == model.FVGActive {
			scan.Active = append(scan.Active, *gap)
		} else {
			scan.Filled = append(scan.Filled, *gap)
		}
	}
	return scan
}

// analyzeWindow checks the window ending at index i for a gap. Only one
// type can fire per window; bullish wins when both edges qualify.
func (d *Detector) analyzeWindow(series model.Series, i int) *model.FairValueGap {
	first := series[i-2]
	third := series[i]

	// Bullish FVG: the first candle's low sits above the third candle's
	// high, leaving an unfilled zone the market is expected to revisit.
	if size := first.Low - third.High; size >= minGapSize {
		return d.buildGap(series, i, model.FVGBullish, third.High, first.Low, size)
	}

	// Bearish FVG: mirrored, first candle's high below third candle's low.
	if size := third.Low - first.High; size >= minGapSize {
		return d.buildGap(series, i, model.FVGBearish, first.High, third.Low, size)
	}

	return nil
}

func (d *Detector) buildGap(series model.Series, i int, typ model.FVGType, bottom, top, size float64) *model.FairValueGap {
	gap := &model.FairValueGap{
		ID:             fmt.Sprintf("fvg_%d_%s", i, typ),
		Type:           typ,
		GapTop:         top,
		GapBottom:      bottom,
		GapSize:        model.Round5(size),
		FormationTime:  series[i-1].Timestamp,
		FormationIndex: i - 1,
		Status:         model.FVGActive,
		Confidence:     confidence(series, i, size),
	}
	fill(gap, series, i)
	gap.Targets = targets(typ, bottom, top, size)
	return gap
}

// fill scans candles after the formation window in order and marks the gap
// filled on the first one whose range re-enters the gap. The transition is
// one-way; fill_index is minimal over all candidates.
func fill(gap *model.FairValueGap, series model.Series, formationEnd int) {
	for j := formationEnd + 1; j < len(series); j++ {
		c := series[j]
		switch gap.Type {
		case model.FVGBullish:
			if c.High >= gap.GapBottom {
				markFilled(gap, gap.GapBottom, c.Timestamp, j)
				return
			}
		case model.FVGBearish:
			if c.Low <= gap.GapTop {
				markFilled(gap, gap.GapTop, c.Timestamp, j)
				return
			}
		}
	}
}

func markFilled(gap *model.FairValueGap, price float64, ts time.Time, index int) {
	t := ts
	gap.Status = model.FVGFilled
	gap.FillPrice = price
	gap.FillTime = &t
	gap.FillIndex = index
}

// targets derives the trade levels from the gap edges. Entry is the edge
// price is expected to return to first; stop sits half a gap beyond it.
func targets(typ model.FVGType, bottom, top, size float64) model.TargetLevels {
	if typ == model.FVGBullish {
		entry := bottom
		stop := entry - size*0.5
		tp1 := top
		tp2 := top + size
		return model.TargetLevels{
			Entry:       model.Round5(entry),
			StopLoss:    model.Round5(stop),
			TakeProfit1: model.Round5(tp1),
			TakeProfit2: model.Round5(tp2),
			RiskReward1: model.Round2((tp1 - entry) / (entry - stop)),
			RiskReward2: model.Round2((tp2 - entry) / (entry - stop)),
		}
	}
	entry := top
	stop := entry + size*0.5
	tp1 := bottom
	tp2 := bottom - size
	return model.TargetLevels{
		Entry:       model.Round5(entry),
		StopLoss:    model.Round5(stop),
		TakeProfit1: model.Round5(tp1),
		TakeProfit2: model.Round5(tp2),
		RiskReward1: model.Round2((entry - tp1) / (stop - entry)),
		RiskReward2: model.Round2((entry - tp2) / (stop - entry)),
	}
}

// confidence blends gap size with recent volatility: a wide gap in a quiet
// market scores lower than the same gap in a volatile one.
func confidence(series model.Series, formationEnd int, size float64) float64 {
	sizeFactor := clamp01(size / sizeNorm)
	volFactor := clamp01(recentATR(series, formationEnd) / atrNorm)
	return model.Round2(clamp01(sizeFactor*0.6 + volFactor*0.4))
}

// recentATR is the mean true range over up to atrLookback candles preceding
// the formation window. Too few candles falls back to a default.
func recentATR(series model.Series, index int) float64 {
	start := index - atrLookback
	if start < 0 {
		start = 0
	}
	recent := series[start:index]
	if len(recent) < atrMinCandles {
		return defaultATR
	}

	var sum float64
	n := 0
	for j := 1; j < len(recent); j++ {
		tr := recent[j].High - recent[j].Low
		if v := abs(recent[j].High - recent[j-1].Close); v > tr {
			tr = v
		}
		if v := abs(recent[j].Low - recent[j-1].Close); v > tr {
			tr = v
		}
		sum += tr
		n++
	}
	if n == 0 {
		return defaultATR
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
