package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

func TestFleetSweep_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t, usecase.DefaultReconcilerConfig())

	a := percentBot("a")
	a.Exchange = "Binance" // no credentials stored
	h.addBot(t, a)
	h.addBot(t, percentBot("b"))
	idle := percentBot("c")
	idle.IsActive = false
	h.addBot(t, idle)

	sweeper := usecase.NewFleetSweeper(h.store, h.rec, zap.NewNop())
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, 1, report.Successful)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "a", report.Results[0].BotID)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, "credentials")
	assert.Equal(t, "b", report.Results[1].BotID)
	assert.True(t, report.Results[1].Success)

	// B still placed its ladder.
	assert.Len(t, h.proxy.Orders, 3)
}

type panickingRunner struct{ next usecase.BotRunner }

func (p panickingRunner) Reconcile(ctx context.Context, botID string) (*usecase.RunResult, error) {
	if botID == "a" {
		panic("boom")
	}
	return p.next.Reconcile(ctx, botID)
}

func TestFleetSweep_RecoversPanics(t *testing.T) {
	h := newHarness(t, usecase.DefaultReconcilerConfig())
	h.addBot(t, percentBot("a"))
	h.addBot(t, percentBot("b"))

	sweeper := usecase.NewFleetSweeper(h.store, panickingRunner{next: h.rec}, zap.NewNop())
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, 1, report.Successful)
	assert.Contains(t, report.Results[0].Error, "boom")
}

func TestFleetSweep_Cancelled(t *testing.T) {
	h := newHarness(t, usecase.DefaultReconcilerConfig())
	h.addBot(t, percentBot("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweeper := usecase.NewFleetSweeper(h.store, h.rec, zap.NewNop())
	_, err := sweeper.Sweep(ctx)
	assert.Error(t, err)
	assert.Empty(t, h.proxy.Orders)
}
