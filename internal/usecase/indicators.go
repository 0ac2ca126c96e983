package usecase

import (
	"math"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

// ATR returns the simple mean of the last period true ranges. Candles must be
// ordered oldest to newest; ok is false when fewer than period+1 are given.
func ATR(candles []domain.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period+1 {
		return 0, false
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1].Close)
	}
	atr := sum / float64(period)
	if math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 0, false
	}
	return atr, true
}

func trueRange(c domain.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
