// Package bias computes EMA-based directional bias for a candle series.
//
// The EMA period is selected by timeframe (slower charts use shorter
// periods); the bias is the sign of price-vs-EMA with a small neutral band.
package bias

import (
	"time"

	"signal-systemv1/internal/model"
)

const (
	// neutralBand is the |price-EMA| distance below which bias is neutral.
	neutralBand = 0.0005
	// confidenceNorm scales |price-EMA| into a [0,1] confidence.
	confidenceNorm = 0.002
	// neutralConfidence is the fixed confidence reported inside the band.
	neutralConfidence = 0.3

	defaultEMAPeriod = 200
)

// Detector determines market bias from closing prices.
type Detector struct {
	periods map[model.Timeframe]int
}

// NewDetector creates a Detector with the default per-timeframe EMA periods.
func NewDetector() *Detector {
	return &Detector{
		periods: map[model.Timeframe]int{
			model.TFH1: 200,
			model.TFH4: 50,
			model.TFD1: 20,
		},
	}
}

// Period returns the EMA period used for a timeframe.
func (d *Detector) Period(tf model.Timeframe) int {
	if p, ok := d.periods[tf]; ok {
		return p
	}
	return defaultEMAPeriod
}

// Determine computes the bias for one candle series on one timeframe.
// An empty series yields neutral with zero confidence.
func (d *Detector) Determine(series model.Series, tf model.Timeframe) model.BiasResult {
	now := time.Now().UTC()
	if len(series) == 0 {
		return model.BiasResult{
			Bias:      model.BiasNeutral,
			Timeframe: tf,
			EMAPeriod: d.Period(tf),
			Timestamp: now,
		}
	}

	closes := series.Closes()
	current := closes[len(closes)-1]
	period := d.Period(tf)
	emaValue := ema(closes, period)
	diff := current - emaValue

	var b model.Bias
	var confidence float64
	switch {
	case diff > -neutralBand && diff < neutralBand:
		b = model.BiasNeutral
		confidence = neutralConfidence
	case diff > 0:
		b = model.BiasBullish
		confidence = min1(abs(diff) / confidenceNorm)
	default:
		b = model.BiasBearish
		confidence = min1(abs(diff) / confidenceNorm)
	}

	return model.BiasResult{
		Bias:         b,
		Confidence:   model.Round2(confidence),
		EMAValue:     model.Round5(emaValue),
		CurrentPrice: model.Round5(current),
		PriceVsEMA:   model.Round5(diff),
		EMAPeriod:    period,
		Timeframe:    tf,
		Timestamp:    now,
	}
}

// MultiTimeframe runs Determine per timeframe and aggregates by majority
// vote on the bias, ties broken toward neutral. Overall confidence is the
// simple average across timeframes.
func (d *Detector) MultiTimeframe(byTF map[model.Timeframe]model.Series) model.MultiTFBias {
	out := model.MultiTFBias{
		Overall:      model.BiasNeutral,
		ByTimeframe:  make(map[model.Timeframe]model.BiasResult, len(byTF)),
		Distribution: map[model.Bias]int{model.BiasBullish: 0, model.BiasBearish: 0, model.BiasNeutral: 0},
		Timestamp:    time.Now().UTC(),
	}
	if len(byTF) == 0 {
		return out
	}

	var total float64
	for tf, series := range byTF {
		r := d.Determine(series, tf)
		out.ByTimeframe[tf] = r
		out.Distribution[r.Bias]++
		total += r.Confidence
	}

	bull := out.Distribution[model.BiasBullish]
	bear := out.Distribution[model.BiasBearish]
	neut := out.Distribution[model.BiasNeutral]
	switch {
	case bull > bear && bull > neut:
		out.Overall = model.BiasBullish
	case bear > bull && bear > neut:
		out.Overall = model.BiasBearish
	}
	out.Confidence = model.Round2(total / float64(len(byTF)))
	return out
}

// ema is the standard recursive exponential average seeded with the first
// close. With fewer samples than the period it degrades to the last close.
func ema(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return prices[len(prices)-1]
	}
	k := 2.0 / float64(period+1)
	v := prices[0]
	for _, p := range prices[1:] {
		v = p*k + v*(1-k)
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
