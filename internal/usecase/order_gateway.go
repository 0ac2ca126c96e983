package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/metrics"
)

const (
	dryBuyPrefix = "DRY-BUY-"
	dryTPPrefix  = "DRY-TP-"
)

var errEmptyOrderID = errors.New("exchange returned an empty order id")

// orderGateway places and cancels orders for one run, substituting synthetic
// ids and skipping network calls when the run is simulated.
type orderGateway struct {
	ex      domain.ExchangeProxy
	symbol  string
	dryRun  bool
	now     func() time.Time
	metrics *metrics.Metrics
}

// PlaceBuy rests a post-only limit buy.
func (g *orderGateway) PlaceBuy(ctx context.Context, qty, price float64) (string, error) {
	if g.dryRun {
		g.metrics.OrderPlaced(string(domain.OrderBuy), true)
		return fmt.Sprintf("%s%d", dryBuyPrefix, g.now().UnixMilli()), nil
	}
	return g.place(ctx, &domain.OrderRequest{
		Symbol:   g.symbol,
		Side:     domain.OrderBuy,
		Type:     domain.OrderLimit,
		Amount:   qty,
		Price:    price,
		PostOnly: true,
	})
}

// PlaceTakeProfit rests a reduce-only limit sell.
func (g *orderGateway) PlaceTakeProfit(ctx context.Context, qty, price float64) (string, error) {
	if g.dryRun {
		g.metrics.OrderPlaced(string(domain.OrderSell), true)
		return fmt.Sprintf("%s%d", dryTPPrefix, g.now().UnixMilli()), nil
	}
	return g.place(ctx, &domain.OrderRequest{
		Symbol:     g.symbol,
		Side:       domain.OrderSell,
		Type:       domain.OrderLimit,
		Amount:     qty,
		Price:      price,
		ReduceOnly: true,
	})
}

func (g *orderGateway) place(ctx context.Context, req *domain.OrderRequest) (string, error) {
	order, err := g.ex.CreateOrder(ctx, req)
	if err != nil {
		return "", err
	}
	if order == nil || order.ID == "" {
		return "", errEmptyOrderID
	}
	g.metrics.OrderPlaced(string(req.Side), false)
	return order.ID, nil
}

// Cancel is a no-op for simulated runs and for empty ids.
func (g *orderGateway) Cancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return nil
	}
	g.metrics.OrderCancelled(g.dryRun)
	if g.dryRun {
		return nil
	}
	return g.ex.CancelOrder(ctx, g.symbol, orderID)
}
