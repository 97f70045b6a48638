package liquidity

import (
	"math"
	"testing"

	"signal-systemv1/internal/model"
)

// baseSeries is n flat candles around 1.1000; swing points are carved in
// afterwards by dropping a low or raising a high.
func baseSeries(n int) model.Series {
	s := make(model.Series, n)
	for i := range s {
		s[i] = model.Candle{Open: 1.1000, High: 1.1005, Low: 1.0995, Close: 1.1000}
	}
	return s
}

// mirror reflects a series around pivot so highs become lows and the
// directional roles swap.
func mirror(series model.Series, pivot float64) model.Series {
	out := make(model.Series, len(series))
	for i, c := range series {
		out[i] = model.Candle{
			Timestamp: c.Timestamp,
			Open:      2*pivot - c.Open,
			High:      2*pivot - c.Low,
			Low:       2*pivot - c.High,
			Close:     2*pivot - c.Close,
			Volume:    c.Volume,
		}
	}
	return out
}

func TestFindLevels_InsufficientData(t *testing.T) {
	d := NewDetector()
	r := d.FindLevels(baseSeries(MinCandles - 1))

	if r.AnalysisComplete {
		t.Fatal("analysis reported complete on a short series")
	}
	if r.Message == "" {
		t.Error("expected an explanatory message")
	}
	if len(r.BuySide) != 0 || len(r.SellSide) != 0 {
		t.Errorf("short series produced levels: buy=%d sell=%d", len(r.BuySide), len(r.SellSide))
	}
}

func TestFindLevels_ClassifiesSwings(t *testing.T) {
	// Flat series with three carved swing points:
	//   idx 5:  low 1.0900 → strength |1.0900-1.0995|/0.01 = 0.95, high tier
	//   idx 10: low 1.0970 → strength 0.25, medium tier
	//   idx 15: high 1.1100 → strength 0.95, high tier
	s := baseSeries(24)
	s[5].Low = 1.0900
	s[10].Low = 1.0970
	s[15].High = 1.1100

	d := NewDetector()
	r := d.FindLevels(s)
	if !r.AnalysisComplete {
		t.Fatal("analysis incomplete")
	}

	if len(r.BuySide) != 2 {
		t.Fatalf("buy side: got %d levels, want 2", len(r.BuySide))
	}
	if r.BuySide[0].Price != 1.0900 || r.BuySide[0].Strength != 0.95 {
		t.Errorf("buy[0] = %.4f/%.2f, want 1.0900/0.95", r.BuySide[0].Price, r.BuySide[0].Strength)
	}
	if r.BuySide[0].Significance != model.SignificanceHigh {
		t.Errorf("buy[0] significance = %s, want high", r.BuySide[0].Significance)
	}
	if r.BuySide[1].Price != 1.0970 || r.BuySide[1].Significance != model.SignificanceMedium {
		t.Errorf("buy[1] = %.4f/%s, want 1.0970/medium", r.BuySide[1].Price, r.BuySide[1].Significance)
	}

	if len(r.SellSide) != 1 || r.SellSide[0].Price != 1.1100 {
		t.Fatalf("sell side = %+v, want one level at 1.1100", r.SellSide)
	}

	if r.StrongestBuy == nil || r.StrongestBuy.Price != 1.0900 {
		t.Errorf("strongest buy = %+v, want 1.0900", r.StrongestBuy)
	}
	if r.StrongestSell == nil || r.StrongestSell.Price != 1.1100 {
		t.Errorf("strongest sell = %+v, want 1.1100", r.StrongestSell)
	}
}

func TestFindLevels_DistanceThreshold(t *testing.T) {
	// A swing low 0.0008 under current price is inside the 0.001 exclusion
	// zone and must not become a level.
	s := baseSeries(24)
	s[10].Low = 1.0992

	r := NewDetector().FindLevels(s)
	if len(r.BuySide) != 0 {
		t.Fatalf("level within distance threshold was kept: %+v", r.BuySide)
	}
}

func TestFindLevels_CapsTopFive(t *testing.T) {
	s := baseSeries(30)
	lows := []float64{1.0985, 1.0980, 1.0975, 1.0970, 1.0965, 1.0960}
	for i, l := range lows {
		s[2+3*i].Low = l
	}

	r := NewDetector().FindLevels(s)
	if len(r.BuySide) != 5 {
		t.Fatalf("buy side: got %d levels, want cap of 5", len(r.BuySide))
	}
	// Sorted by strength descending: the deepest low (1.0960, strength 0.35)
	// first; the shallowest (1.0985, strength 0.10) dropped by the cap.
	if r.BuySide[0].Price != 1.0960 {
		t.Errorf("buy[0] = %.4f, want 1.0960", r.BuySide[0].Price)
	}
	for _, lvl := range r.BuySide {
		if lvl.Price == 1.0985 {
			t.Error("weakest level survived the top-5 cap")
		}
	}
}

func TestFindLevels_ReversalSymmetry(t *testing.T) {
	// Mirroring the series around a pivot must swap the sides while
	// preserving strengths and distances.
	s := baseSeries(24)
	s[5].Low = 1.0900
	s[10].Low = 1.0970
	s[15].High = 1.1100

	d := NewDetector()
	orig := d.FindLevels(s)
	flipped := d.FindLevels(mirror(s, 1.1000))

	if len(flipped.SellSide) != len(orig.BuySide) || len(flipped.BuySide) != len(orig.SellSide) {
		t.Fatalf("mirrored sides: buy=%d sell=%d, want buy=%d sell=%d",
			len(flipped.BuySide), len(flipped.SellSide), len(orig.SellSide), len(orig.BuySide))
	}
	for i, lvl := range orig.BuySide {
		m := flipped.SellSide[i]
		if lvl.Strength != m.Strength {
			t.Errorf("level %d: strength %.2f vs mirrored %.2f", i, lvl.Strength, m.Strength)
		}
		if math.Abs(lvl.Distance-m.Distance) > 1e-9 {
			t.Errorf("level %d: distance %.5f vs mirrored %.5f", i, lvl.Distance, m.Distance)
		}
	}
}

func TestCheckSweep(t *testing.T) {
	s := baseSeries(24)
	s[5].Low = 1.0900
	s[15].High = 1.1100

	d := NewDetector()
	levels := d.FindLevels(s)

	// Close under the buy-side level sweeps it.
	swept := append(baseSeries(23), model.Candle{Open: 1.0995, High: 1.0995, Low: 1.0885, Close: 1.0890})
	r := d.CheckSweep(swept, levels)
	if !r.Detected || len(r.Swept) != 1 {
		t.Fatalf("sweep report = %+v, want one swept level", r)
	}
	if r.Swept[0].Side != model.SideBuy {
		t.Errorf("swept side = %s, want buy", r.Swept[0].Side)
	}
	if math.Abs(r.Swept[0].Magnitude-0.0010) > 1e-9 {
		t.Errorf("magnitude = %.5f, want 0.00100", r.Swept[0].Magnitude)
	}

	// Close between the levels sweeps nothing.
	if r := d.CheckSweep(s, levels); r.Detected {
		t.Errorf("unexpected sweep: %+v", r.Swept)
	}
}
