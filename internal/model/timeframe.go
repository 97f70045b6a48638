package model

// Timeframe is a chart timeframe label (M1, M5, M15, M30, H1, H4, D1).
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var tfSeconds = map[Timeframe]int{
	TFM1:  60,
	TFM5:  300,
	TFM15: 900,
	TFM30: 1800,
	TFH1:  3600,
	TFH4:  14400,
	TFD1:  86400,
}

// Seconds returns the bar granularity in seconds. Unknown labels map to H1.
func (tf Timeframe) Seconds() int {
	if s, ok := tfSeconds[tf]; ok {
		return s
	}
	return 3600
}

// Valid reports whether the label is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := tfSeconds[tf]
	return ok
}
