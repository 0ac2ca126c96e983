package domain

import "time"

type SlotStatus string

const (
	SlotWaiting SlotStatus = "waiting"
	SlotBuyOpen SlotStatus = "buy_open"
	SlotBought  SlotStatus = "bought"
	SlotClosed  SlotStatus = "closed"
)

// Idle reports whether the slot is not holding a live position or an acknowledged resting buy.
func (s SlotStatus) Idle() bool {
	return s == SlotWaiting || s == SlotClosed
}

// Slot is one rung of a bot's ladder. Exactly one row exists per (BotID, SlotID).
type Slot struct {
	ID         int64      `json:"id"`
	BotID      string     `json:"bot_id"`
	SlotID     int        `json:"slot_id"` // 1..NumSlots, 1 is closest to price
	EntryPrice float64    `json:"entry_price"`
	TPPrice    float64    `json:"tp_price"`
	SizeUSDT   float64    `json:"size_usdt"`
	Qty        float64    `json:"qty"`
	BuyOrderID string     `json:"buy_order_id"` // "" means no resting order
	TPOrderID  string     `json:"tp_order_id"`
	Status     SlotStatus `json:"status"`
	FilledQty  float64    `json:"filled_qty"`
	UpdatedAt  time.Time  `json:"last_update_ts"`
}

func (s *Slot) HasRestingBuy() bool {
	return s.BuyOrderID != ""
}
