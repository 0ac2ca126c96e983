package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/secrets"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBot(id string) *domain.Bot {
	tpMult := 0.5
	lev := 3
	return &domain.Bot{
		ID:                   id,
		Name:                 "xmr ladder",
		Exchange:             "Bybit",
		AccountType:          domain.AccountDemo,
		IsTestnet:            true,
		Symbol:               "XMR/USDT:USDT",
		NumSlots:             3,
		Leverage:             &lev,
		TotalAllocPct:        0.6,
		LevelsMethod:         domain.LevelsATR,
		ATRTimeframe:         "5m",
		ATRPeriod:            14,
		LevelATRMults:        []float64{0, 1, 2},
		TPMethod:             domain.TPATRAboveEntry,
		TPATRMult:            &tpMult,
		RecenterThresholdPct: 0.001,
		IsActive:             true,
	}
}

func TestBots_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBot(ctx, sampleBot("b1")))

	got, err := store.GetBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "XMR/USDT:USDT", got.Symbol)
	assert.Equal(t, []float64{0, 1, 2}, got.LevelATRMults)
	assert.Nil(t, got.LevelPcts)
	require.NotNil(t, got.TPATRMult)
	assert.Equal(t, 0.5, *got.TPATRMult)
	assert.Nil(t, got.TPFixed)
	require.NotNil(t, got.Leverage)
	assert.Equal(t, 3, *got.Leverage)
	assert.Nil(t, got.LastRunAt)

	_, err = store.GetBot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBots_ActiveAndLastRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBot(ctx, sampleBot("a")))
	inactive := sampleBot("b")
	inactive.IsActive = false
	require.NoError(t, store.SaveBot(ctx, inactive))

	active, err := store.ListActiveBots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	require.NoError(t, store.SetBotActive(ctx, "b", true))
	active, err = store.ListActiveBots(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.TouchLastRun(ctx, "a", at))
	got, err := store.GetBot(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, at.Equal(*got.LastRunAt))

	assert.ErrorIs(t, store.SetBotActive(ctx, "nope", true), domain.ErrNotFound)
}

func TestSlots_CreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateSlot(ctx, &domain.Slot{BotID: "b1", SlotID: 1, EntryPrice: 100, TPPrice: 101})
	require.NoError(t, err)
	assert.Equal(t, domain.SlotWaiting, first.Status)

	second, err := store.CreateSlot(ctx, &domain.Slot{BotID: "b1", SlotID: 1, EntryPrice: 999})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 100.0, second.EntryPrice)

	slots, err := store.ListSlots(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestSlots_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	slot, err := store.CreateSlot(ctx, &domain.Slot{BotID: "b1", SlotID: 2, EntryPrice: 95})
	require.NoError(t, err)

	slot.BuyOrderID = "ord-1"
	slot.Status = domain.SlotBuyOpen
	slot.Qty = 1.5
	require.NoError(t, store.UpdateSlot(ctx, slot))

	got, err := store.GetSlot(ctx, "b1", 2)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.BuyOrderID)
	assert.Equal(t, domain.SlotBuyOpen, got.Status)
	assert.Equal(t, 1.5, got.Qty)

	_, err = store.GetSlot(ctx, "b1", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteBot_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBot(ctx, sampleBot("b1")))
	_, err := store.CreateSlot(ctx, &domain.Slot{BotID: "b1", SlotID: 1})
	require.NoError(t, err)
	require.NoError(t, store.AppendLog(ctx, &domain.LogEntry{ID: "l1", BotID: "b1", Timestamp: time.Now(), Level: domain.LogInfo, Message: "x"}))

	require.NoError(t, store.DeleteBot(ctx, "b1"))

	slots, err := store.ListSlots(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, slots)
	logs, err := store.ListLogs(ctx, "b1", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.ErrorIs(t, store.DeleteBot(ctx, "b1"), domain.ErrNotFound)
}

func TestLogs_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendLog(ctx, &domain.LogEntry{
			ID:        msg,
			BotID:     "b1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Level:     domain.LogInfo,
			Message:   msg,
			Details:   map[string]any{"i": i},
		}))
	}

	logs, err := store.ListLogs(ctx, "b1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "third", logs[0].Message)
	assert.Equal(t, "second", logs[1].Message)
	assert.Equal(t, float64(2), logs[0].Details["i"])
}

func TestCredentials_EncryptedAtRest(t *testing.T) {
	c, err := secrets.NewCipher("passphrase")
	require.NoError(t, err)
	store, err := NewSQLiteStore(":memory:", c)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveCredentials(ctx, &domain.Credentials{
		Exchange: "Bybit", AccountType: domain.AccountDemo, APIKey: "key", APISecret: "secret",
	}))

	var raw string
	require.NoError(t, store.db.QueryRow(`SELECT api_secret_ciphertext FROM exchange_credentials`).Scan(&raw))
	assert.NotEqual(t, "secret", raw)

	got, err := store.GetCredentials(ctx, "Bybit", domain.AccountDemo)
	require.NoError(t, err)
	assert.Equal(t, "key", got.APIKey)
	assert.Equal(t, "secret", got.APISecret)

	_, err = store.GetCredentials(ctx, "Bybit", domain.AccountReal)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ttl := time.Minute

	ok, err := store.AcquireLease(ctx, "b1", "t1", ttl, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLease(ctx, "b1", "t2", ttl, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be stolen")

	ok, err = store.RenewLease(ctx, "b1", "t1", ttl, now.Add(50*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	// Renewed until now+110s, so 90s is still held.
	ok, err = store.AcquireLease(ctx, "b1", "t2", ttl, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.AcquireLease(ctx, "b1", "t2", ttl, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	ok, err = store.RenewLease(ctx, "b1", "t1", ttl, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "previous holder lost the lease")

	require.NoError(t, store.ReleaseLease(ctx, "b1", "t2"))
	ok, err = store.AcquireLease(ctx, "b1", "t3", ttl, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}
