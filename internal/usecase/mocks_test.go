package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/metrics"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

// MockProxy is an in-memory exchange session.
type MockProxy struct {
	mu sync.Mutex

	Price      float64
	TickerErr  error
	Balance    float64
	BalanceErr error
	Candles    []domain.Candle
	OHLCVErr   error
	FailPrices map[float64]error
	EmptyID    bool
	CancelErr  error

	Orders      []domain.OrderRequest
	Cancelled   []string
	OHLCVLimits []int
	nextID      int
}

func (m *MockProxy) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	if m.TickerErr != nil {
		return nil, m.TickerErr
	}
	return &domain.Ticker{Symbol: symbol, Last: m.Price}, nil
}

func (m *MockProxy) GetBalance(ctx context.Context, accountTypes []string) (*domain.Balance, error) {
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return &domain.Balance{USDT: m.Balance}, nil
}

func (m *MockProxy) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	m.OHLCVLimits = append(m.OHLCVLimits, limit)
	m.mu.Unlock()
	if m.OHLCVErr != nil {
		return nil, m.OHLCVErr
	}
	return m.Candles, nil
}

func (m *MockProxy) CreateOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailPrices[req.Price]; err != nil {
		return nil, err
	}
	m.Orders = append(m.Orders, *req)
	if m.EmptyID {
		return &domain.PlacedOrder{}, nil
	}
	m.nextID++
	return &domain.PlacedOrder{ID: fmt.Sprintf("ord-%d", m.nextID)}, nil
}

func (m *MockProxy) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return m.CancelErr
}

func (m *MockProxy) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

type MockConnector struct {
	Proxy *MockProxy
	Err   error
}

func (c *MockConnector) Connect(bot *domain.Bot, creds *domain.Credentials) (domain.ExchangeProxy, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Proxy, nil
}

// failingSlots breaks UpdateSlot on top of a real store.
type failingSlots struct {
	*storage.SQLiteStore
}

func (f failingSlots) UpdateSlot(ctx context.Context, slot *domain.Slot) error {
	return errors.New("disk full")
}

type harness struct {
	store    *storage.SQLiteStore
	proxy    *MockProxy
	conn     *MockConnector
	activity *usecase.ActivityLogger
	metrics  *metrics.Metrics
	rec      *usecase.Reconciler
}

func newHarness(t *testing.T, cfg usecase.ReconcilerConfig) *harness {
	t.Helper()
	return newHarnessWithSlots(t, cfg, nil)
}

func newHarnessWithSlots(t *testing.T, cfg usecase.ReconcilerConfig, wrap func(*storage.SQLiteStore) domain.SlotRepository) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var slots domain.SlotRepository = store
	if wrap != nil {
		slots = wrap(store)
	}
	h := &harness{
		store:   store,
		proxy:   &MockProxy{Price: 1000, Balance: 10000},
		metrics: metrics.New(),
	}
	h.conn = &MockConnector{Proxy: h.proxy}
	h.activity = usecase.NewActivityLogger(store, zap.NewNop())
	h.rec = usecase.NewReconciler(store, slots, store, store, h.conn, h.activity, h.metrics, cfg, zap.NewNop())

	require.NoError(t, store.SaveCredentials(context.Background(), &domain.Credentials{
		Exchange:    "Bybit",
		AccountType: domain.AccountDemo,
		APIKey:      "key",
		APISecret:   "secret",
		UpdatedAt:   time.Now(),
	}))
	return h
}

func (h *harness) addBot(t *testing.T, bot *domain.Bot) *domain.Bot {
	t.Helper()
	require.NoError(t, h.store.SaveBot(context.Background(), bot))
	return bot
}

func percentBot(id string) *domain.Bot {
	tpPct := 0.01
	now := time.Now().UTC()
	return &domain.Bot{
		ID:                   id,
		Name:                 "ladder " + id,
		Exchange:             "Bybit",
		AccountType:          domain.AccountDemo,
		IsTestnet:            true,
		Symbol:               "ETH/USDT:USDT",
		NumSlots:             3,
		TotalAllocPct:        0.3,
		LevelsMethod:         domain.LevelsPercent,
		LevelPcts:            []float64{0, -0.05, -0.10},
		TPMethod:             domain.TPPercentOfEntry,
		TPPct:                &tpPct,
		RecenterThresholdPct: 0.01,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// cancelAfterOrder cancels the run context once an order has reached the exchange.
type cancelAfterOrder struct {
	*MockProxy
	cancel context.CancelFunc
}

func (c *cancelAfterOrder) CreateOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	order, err := c.MockProxy.CreateOrder(ctx, req)
	c.cancel()
	return order, err
}

type proxyConnector struct {
	proxy domain.ExchangeProxy
}

func (c proxyConnector) Connect(bot *domain.Bot, creds *domain.Credentials) (domain.ExchangeProxy, error) {
	return c.proxy, nil
}
