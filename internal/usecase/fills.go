package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

// RecordBuyFill moves a buy_open slot to bought and rests its take-profit.
// A non-positive filledQty means the whole slot quantity filled. The slot is
// persisted as bought even if the take-profit cannot be placed; calling again
// for a bought slot without a take-profit retries the placement.
func (r *Reconciler) RecordBuyFill(ctx context.Context, botID string, slotID int, filledQty float64) (*domain.Slot, error) {
	bot, err := r.loadBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	lease, err := r.acquireLease(ctx, botID)
	if err != nil {
		return nil, err
	}
	defer lease.release(ctx)

	slot, err := r.slotInStatus(ctx, botID, slotID, domain.SlotBuyOpen, domain.SlotBought)
	if err != nil {
		return nil, err
	}
	if slot.Status == domain.SlotBought && slot.TPOrderID != "" {
		return nil, domain.NewRunError(domain.KindConfiguration, "check slot",
			fmt.Errorf("slot %d already has take profit %s", slotID, slot.TPOrderID))
	}

	if slot.Status == domain.SlotBuyOpen || filledQty > 0 {
		if filledQty <= 0 {
			filledQty = slot.Qty
		}
		slot.FilledQty = round(filledQty, QtyPrecision)
		slot.Status = domain.SlotBought
		if err := r.saveSlot(ctx, slot); err != nil {
			return nil, err
		}
		r.activity.Info(ctx, botID, fmt.Sprintf("Slot %d bought %v @ %v", slotID, slot.FilledQty, slot.EntryPrice),
			map[string]any{"buy_order_id": slot.BuyOrderID})
	}

	ex, err := r.connect(ctx, bot)
	if err != nil {
		return slot, err
	}
	gw := &orderGateway{ex: ex, symbol: bot.Symbol, dryRun: r.cfg.DryRunPolicy.Simulate(bot), now: r.now, metrics: r.metrics}
	if err := r.restTakeProfit(ctx, gw, slot); err != nil {
		return slot, err
	}
	return slot, nil
}

// RecordTakeProfitFill closes a bought slot and clears its order ids so the
// next pass re-arms the rung.
func (r *Reconciler) RecordTakeProfitFill(ctx context.Context, botID string, slotID int) (*domain.Slot, error) {
	if _, err := r.loadBot(ctx, botID); err != nil {
		return nil, err
	}
	lease, err := r.acquireLease(ctx, botID)
	if err != nil {
		return nil, err
	}
	defer lease.release(ctx)

	slot, err := r.slotInStatus(ctx, botID, slotID, domain.SlotBought)
	if err != nil {
		return nil, err
	}

	tpOrderID := slot.TPOrderID
	slot.Status = domain.SlotClosed
	slot.BuyOrderID = ""
	slot.TPOrderID = ""
	slot.FilledQty = 0
	if err := r.saveSlot(ctx, slot); err != nil {
		return nil, err
	}
	r.activity.Info(ctx, botID, fmt.Sprintf("Slot %d closed at take profit %v", slotID, slot.TPPrice),
		map[string]any{"tp_order_id": tpOrderID})
	return slot, nil
}

func (r *Reconciler) slotInStatus(ctx context.Context, botID string, slotID int, want ...domain.SlotStatus) (*domain.Slot, error) {
	slot, err := r.slots.GetSlot(ctx, botID, slotID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewRunError(domain.KindConfiguration, "load slot", fmt.Errorf("slot %d %w", slotID, domain.ErrNotFound))
	}
	if err != nil {
		return nil, domain.NewRunError(domain.KindPersistence, "load slot", err)
	}
	if slices.Contains(want, slot.Status) {
		return slot, nil
	}
	expected := make([]string, len(want))
	for i, st := range want {
		expected[i] = string(st)
	}
	return nil, domain.NewRunError(domain.KindConfiguration, "check slot",
		fmt.Errorf("slot %d is %s, expected %s", slotID, slot.Status, strings.Join(expected, " or ")))
}
