package usecase

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

const (
	PricePrecision = 2
	QtyPrecision   = 4

	// FallbackStepPct spaces fallback levels 1% apart below the reference price.
	FallbackStepPct = 0.01
	// DefaultTPMarkup is used whenever the configured take-profit method cannot be applied.
	DefaultTPMarkup = 0.005
)

// Level is one planned rung: where to buy and where to take profit.
type Level struct {
	Entry float64 `json:"entry"`
	TP    float64 `json:"tp"`
}

// LevelPlanner turns a reference price and bot configuration into ladder prices.
// A nil atr means the indicator was not requested or is unavailable.
type LevelPlanner struct{}

func NewLevelPlanner() *LevelPlanner {
	return &LevelPlanner{}
}

// EntryTargets returns bot.NumSlots entry prices rounded to PricePrecision and
// sorted descending, so index 0 is always closest to the reference price.
func (p *LevelPlanner) EntryTargets(refPrice float64, bot *domain.Bot, atr *float64) []float64 {
	n := bot.NumSlots
	if n < 1 {
		return nil
	}

	targets := make([]float64, n)
	switch {
	case bot.LevelsMethod == domain.LevelsATR && atr != nil:
		for i := range targets {
			mult := float64(i)
			if i < len(bot.LevelATRMults) {
				mult = bot.LevelATRMults[i]
			}
			targets[i] = RoundPrice(refPrice - *atr*mult)
		}
	case bot.LevelsMethod == domain.LevelsPercent && len(bot.LevelPcts) > 0:
		for i := range targets {
			pct := -FallbackStepPct * float64(i)
			if i < len(bot.LevelPcts) {
				pct = bot.LevelPcts[i]
			}
			targets[i] = RoundPrice(refPrice * (1 + pct))
		}
	default:
		for i := range targets {
			targets[i] = RoundPrice(refPrice * (1 - FallbackStepPct*float64(i)))
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(targets)))
	return targets
}

// TakeProfit returns the exit price for an entry, rounded to PricePrecision.
func (p *LevelPlanner) TakeProfit(entry float64, bot *domain.Bot, atr *float64) float64 {
	switch bot.TPMethod {
	case domain.TPATRAboveEntry:
		if atr != nil && bot.TPATRMult != nil {
			return RoundPrice(entry + *atr**bot.TPATRMult)
		}
	case domain.TPPercentOfEntry:
		if bot.TPPct != nil {
			return RoundPrice(entry * (1 + *bot.TPPct))
		}
	case domain.TPFixed:
		if bot.TPFixed != nil && *bot.TPFixed > 0 {
			return RoundPrice(*bot.TPFixed)
		}
	}
	return RoundPrice(entry * (1 + DefaultTPMarkup))
}

// Plan pairs every entry target with its take-profit.
func (p *LevelPlanner) Plan(refPrice float64, bot *domain.Bot, atr *float64) []Level {
	targets := p.EntryTargets(refPrice, bot, atr)
	levels := make([]Level, len(targets))
	for i, entry := range targets {
		levels[i] = Level{Entry: entry, TP: p.TakeProfit(entry, bot, atr)}
	}
	return levels
}

// Quantity sizes a slot in base units: sizeUSDT / entry, rounded to QtyPrecision.
func Quantity(sizeUSDT, entry float64) float64 {
	if entry <= 0 {
		return 0
	}
	return round(sizeUSDT/entry, QtyPrecision)
}

func RoundPrice(v float64) float64 {
	return round(v, PricePrecision)
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
