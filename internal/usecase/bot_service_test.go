package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

func newBotService(t *testing.T) (*usecase.BotService, *harness, *usecase.Scheduler, *countingRunner) {
	t.Helper()
	h := newHarness(t, usecase.DefaultReconcilerConfig())
	runner := newCountingRunner()
	sched := usecase.NewScheduler(runner, h.store, time.Hour, zap.NewNop())
	t.Cleanup(sched.StopAll)
	return usecase.NewBotService(h.store, h.store, h.store, sched, h.activity, zap.NewNop()), h, sched, runner
}

func TestDefaultBot(t *testing.T) {
	bot := usecase.DefaultBot()
	assert.Equal(t, 6, bot.NumSlots)
	assert.Equal(t, 0.6, bot.TotalAllocPct)
	assert.Equal(t, domain.LevelsATR, bot.LevelsMethod)
	assert.Equal(t, 14, bot.ATRPeriod)
	assert.Equal(t, "5m", bot.ATRTimeframe)
	assert.Equal(t, domain.TPATRAboveEntry, bot.TPMethod)
	assert.Equal(t, 0.5, *bot.TPATRMult)
	assert.Equal(t, 0.001, bot.RecenterThresholdPct)
	assert.True(t, bot.IsTestnet)
	assert.False(t, bot.IsActive)
	assert.Len(t, bot.LevelPcts, 6)
	assert.NoError(t, bot.Validate())
}

func TestBotService_CreateAndActivate(t *testing.T) {
	svc, _, sched, runner := newBotService(t)
	ctx := context.Background()

	bot := usecase.DefaultBot()
	bot.Name = "xmr"
	created, err := svc.CreateBot(ctx, bot)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, sched.Running())

	got, err := svc.SetActive(ctx, created.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, []string{created.ID}, sched.Running())
	assert.Eventually(t, func() bool { return runner.Calls(created.ID) == 1 }, time.Second, 5*time.Millisecond)

	got, err = svc.SetActive(ctx, created.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Empty(t, sched.Running())

	bots, err := svc.ListBots(ctx)
	require.NoError(t, err)
	assert.Len(t, bots, 1)
}

func TestBotService_Errors(t *testing.T) {
	svc, _, _, _ := newBotService(t)
	ctx := context.Background()

	bad := usecase.DefaultBot()
	bad.NumSlots = 0
	_, err := svc.CreateBot(ctx, bad)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	_, err = svc.GetBot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)

	_, err = svc.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, domain.ErrBotNotFound)

	_, err = svc.ListSlots(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)

	assert.ErrorIs(t, svc.DeleteBot(ctx, "missing"), domain.ErrBotNotFound)
}

func TestBotService_SaveCredentials(t *testing.T) {
	svc, h, _, _ := newBotService(t)
	ctx := context.Background()

	err := svc.SaveCredentials(ctx, &domain.Credentials{Exchange: "Bybit"})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	require.NoError(t, svc.SaveCredentials(ctx, &domain.Credentials{Exchange: "Bybit", AccountType: domain.AccountReal, APIKey: "k", APISecret: "s"}))
	creds, err := h.store.GetCredentials(ctx, "Bybit", domain.AccountReal)
	require.NoError(t, err)
	assert.Equal(t, "k", creds.APIKey)
}

func TestBotService_DeleteStopsTask(t *testing.T) {
	svc, h, sched, _ := newBotService(t)
	ctx := context.Background()
	bot := h.addBot(t, percentBot("bot-1"))
	sched.Start(bot.ID)

	require.NoError(t, svc.DeleteBot(ctx, bot.ID))
	assert.Empty(t, sched.Running())
	_, err := svc.GetBot(ctx, bot.ID)
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}
