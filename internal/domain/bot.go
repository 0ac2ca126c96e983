package domain

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

type LevelsMethod string

const (
	LevelsATR     LevelsMethod = "atr"
	LevelsPercent LevelsMethod = "percent"
)

type TPMethod string

const (
	TPATRAboveEntry  TPMethod = "atr_above_entry"
	TPPercentOfEntry TPMethod = "percent_of_entry"
	TPFixed          TPMethod = "fixed"
)

type AccountType string

const (
	AccountDemo AccountType = "demo"
	AccountReal AccountType = "real"
)

// Bot is the operator-owned ladder configuration. The engine only ever writes LastRunAt.
type Bot struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Exchange    string      `json:"exchange_name"`
	AccountType AccountType `json:"account_type"`
	IsTestnet   bool        `json:"is_testnet"`
	Symbol      string      `json:"symbol"` // unified form, e.g. "XMR/USDT:USDT"

	NumSlots      int     `json:"num_slots"`
	Leverage      *int    `json:"leverage,omitempty"`
	TotalAllocPct float64 `json:"total_alloc_pct"` // fraction of capital across all slots, (0,1]

	LevelsMethod  LevelsMethod `json:"levels_method"`
	ATRTimeframe  string       `json:"atr_timeframe"`
	ATRPeriod     int          `json:"atr_period"`
	LevelATRMults []float64    `json:"level_atr_mults,omitempty"`
	LevelPcts     []float64    `json:"level_pcts,omitempty"`

	TPMethod  TPMethod `json:"tp_method"`
	TPATRMult *float64 `json:"tp_atr_mult,omitempty"`
	TPPct     *float64 `json:"tp_pct,omitempty"`
	TPFixed   *float64 `json:"tp_fixed,omitempty"`

	RecenterThresholdPct float64 `json:"recenter_threshold_pct"`
	IsActive             bool    `json:"is_active"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NeedsATR reports whether either pricing step consults the ATR.
func (b *Bot) NeedsATR() bool {
	return b.LevelsMethod == LevelsATR || b.TPMethod == TPATRAboveEntry
}

// Validate checks the fields the engine relies on.
func (b *Bot) Validate() error {
	var err error
	if b.Symbol == "" {
		err = multierr.Append(err, errors.New("symbol is required"))
	}
	if b.Exchange == "" {
		err = multierr.Append(err, errors.New("exchange_name is required"))
	}
	if b.NumSlots < 1 {
		err = multierr.Append(err, fmt.Errorf("num_slots must be >= 1, got %d", b.NumSlots))
	}
	if b.TotalAllocPct <= 0 || b.TotalAllocPct > 1 {
		err = multierr.Append(err, fmt.Errorf("total_alloc_pct must be in (0,1], got %v", b.TotalAllocPct))
	}
	if b.NeedsATR() && b.ATRPeriod < 1 {
		err = multierr.Append(err, fmt.Errorf("atr_period must be >= 1, got %d", b.ATRPeriod))
	}
	if b.RecenterThresholdPct < 0 {
		err = multierr.Append(err, fmt.Errorf("recenter_threshold_pct must be >= 0, got %v", b.RecenterThresholdPct))
	}
	switch b.AccountType {
	case AccountDemo, AccountReal:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown account_type %q", b.AccountType))
	}
	if b.Leverage != nil && *b.Leverage < 1 {
		err = multierr.Append(err, fmt.Errorf("leverage must be >= 1, got %d", *b.Leverage))
	}
	return err
}
