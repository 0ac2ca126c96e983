package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

const slotColumns = `id, bot_id, slot_id, entry_price, tp_price, size_usdt, qty, buy_order_id,
	tp_order_id, status, filled_qty, last_update_ts`

// SlotRepository Implementation

func (s *SQLiteStore) GetSlot(ctx context.Context, botID string, slotID int) (*domain.Slot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM bot_slots WHERE bot_id = ? AND slot_id = ?`, botID, slotID)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return slot, err
}

func (s *SQLiteStore) ListSlots(ctx context.Context, botID string) ([]*domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+slotColumns+` FROM bot_slots WHERE bot_id = ? ORDER BY slot_id`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *SQLiteStore) CreateSlot(ctx context.Context, slot *domain.Slot) (*domain.Slot, error) {
	if slot.Status == "" {
		slot.Status = domain.SlotWaiting
	}
	if slot.UpdatedAt.IsZero() {
		slot.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO bot_slots (bot_id, slot_id, entry_price, tp_price, size_usdt, qty, buy_order_id, tp_order_id, status, filled_qty, last_update_ts)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(bot_id, slot_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query,
		slot.BotID, slot.SlotID, slot.EntryPrice, slot.TPPrice, slot.SizeUSDT, slot.Qty,
		slot.BuyOrderID, slot.TPOrderID, slot.Status, slot.FilledQty, slot.UpdatedAt); err != nil {
		return nil, err
	}
	return s.GetSlot(ctx, slot.BotID, slot.SlotID)
}

func (s *SQLiteStore) UpdateSlot(ctx context.Context, slot *domain.Slot) error {
	slot.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `UPDATE bot_slots SET entry_price = ?, tp_price = ?, size_usdt = ?, qty = ?,
			buy_order_id = ?, tp_order_id = ?, status = ?, filled_qty = ?, last_update_ts = ?
			WHERE bot_id = ? AND slot_id = ?`,
		slot.EntryPrice, slot.TPPrice, slot.SizeUSDT, slot.Qty, slot.BuyOrderID, slot.TPOrderID,
		slot.Status, slot.FilledQty, slot.UpdatedAt, slot.BotID, slot.SlotID)
}

func scanSlot(row scanner) (*domain.Slot, error) {
	var sl domain.Slot
	err := row.Scan(&sl.ID, &sl.BotID, &sl.SlotID, &sl.EntryPrice, &sl.TPPrice, &sl.SizeUSDT, &sl.Qty,
		&sl.BuyOrderID, &sl.TPOrderID, &sl.Status, &sl.FilledQty, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sl, nil
}
