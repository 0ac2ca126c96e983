package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

type countingRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
	gate    chan struct{}
	err     error
}

func newCountingRunner() *countingRunner {
	return &countingRunner{calls: make(map[string]int)}
}

func (c *countingRunner) Reconcile(ctx context.Context, botID string) (*usecase.RunResult, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	c.mu.Lock()
	c.calls[botID]++
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if c.err != nil {
		return &usecase.RunResult{BotID: botID}, c.err
	}
	return &usecase.RunResult{BotID: botID, Success: true}, nil
}

func (c *countingRunner) Calls(botID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[botID]
}

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	runner := newCountingRunner()
	s := usecase.NewScheduler(runner, nil, 20*time.Millisecond, zap.NewNop())
	defer s.StopAll()

	require.True(t, s.Start("a"))
	assert.False(t, s.Start("a"))
	assert.Equal(t, []string{"a"}, s.Running())
	assert.True(t, s.IsRunning("a"))

	assert.Eventually(t, func() bool { return runner.Calls("a") >= 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return runner.Calls("a") >= 3 }, time.Second, 5*time.Millisecond)

	require.True(t, s.Stop("a"))
	assert.False(t, s.Stop("a"))
	assert.Empty(t, s.Running())

	stopped := runner.Calls("a")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, runner.Calls("a"))
}

func TestScheduler_SkipsTicksWhileInFlight(t *testing.T) {
	runner := newCountingRunner()
	runner.gate = make(chan struct{})
	s := usecase.NewScheduler(runner, nil, 10*time.Millisecond, zap.NewNop())

	s.Start("a")
	assert.Eventually(t, func() bool { return runner.Calls("a") == 1 }, time.Second, 5*time.Millisecond)

	// Several ticks elapse while the first run is blocked.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, runner.Calls("a"))
	assert.Equal(t, int32(1), runner.maxSeen.Load())

	runner.mu.Lock()
	gate := runner.gate
	runner.gate = nil
	runner.mu.Unlock()
	close(gate)

	assert.Eventually(t, func() bool { return runner.Calls("a") >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runner.maxSeen.Load())
	s.StopAll()
}

func TestScheduler_StopsWhenBotNoLongerRunnable(t *testing.T) {
	runner := newCountingRunner()
	runner.err = domain.NewRunError(domain.KindConfiguration, "check bot", domain.ErrBotInactive)
	s := usecase.NewScheduler(runner, nil, time.Hour, zap.NewNop())
	defer s.StopAll()

	s.Start("a")
	assert.Eventually(t, func() bool { return !s.IsRunning("a") }, time.Second, 5*time.Millisecond)
}

func TestScheduler_Sync(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	a, b := percentBot("a"), percentBot("b")
	b.IsActive = false
	require.NoError(t, store.SaveBot(ctx, a))
	require.NoError(t, store.SaveBot(ctx, b))

	runner := newCountingRunner()
	s := usecase.NewScheduler(runner, store, time.Hour, zap.NewNop())
	defer s.StopAll()

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"a"}, s.Running())

	require.NoError(t, store.SetBotActive(ctx, "a", false))
	require.NoError(t, store.SetBotActive(ctx, "b", true))
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"b"}, s.Running())

	require.NoError(t, store.DeleteBot(ctx, "b"))
	require.NoError(t, s.Sync(ctx))
	assert.Empty(t, s.Running())
}
