package stoploss

import (
	"math"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

const atrPeriod = 14

// ATR computes the average true range over the last atrPeriod candles.
// Returns 0 when the window is too short.
func ATR(data []types.OHLCV) float64 {
	if len(data) < atrPeriod+1 {
		return 0
	}
	start := len(data) - atrPeriod
	var sum float64
	for i := start; i < len(data); i++ {
		high := data[i].High
		low := data[i].Low
		prevClose := data[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		sum += tr
	}
	return sum / float64(atrPeriod)
}

// closeStdDev computes the standard deviation of closing prices.
func closeStdDev(data []types.OHLCV) float64 {
	if len(data) < 2 {
		return 0
	}
	var sum float64
	for _, c := range data {
		sum += c.Close
	}
	mean := sum / float64(len(data))

	var sq float64
	for _, c := range data {
		d := c.Close - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(data)))
}
