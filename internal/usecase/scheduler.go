package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/zap"
)

const DefaultRunInterval = 60 * time.Second

// BotRunner executes one reconciliation pass for a bot.
type BotRunner interface {
	Reconcile(ctx context.Context, botID string) (*RunResult, error)
}

// Scheduler keeps one interval task per active bot. A task runs its bot
// immediately and then on every tick; a tick that lands while the previous
// run is still in flight is skipped.
type Scheduler struct {
	runner   BotRunner
	bots     domain.BotRepository
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	tasks map[string]*botTask
	runs  sync.WaitGroup
}

type botTask struct {
	botID    string
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

func NewScheduler(runner BotRunner, bots domain.BotRepository, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRunInterval
	}
	return &Scheduler{
		runner:   runner,
		bots:     bots,
		interval: interval,
		logger:   logger,
		tasks:    make(map[string]*botTask),
	}
}

// Start launches the task for botID. It returns false if one is already running.
// Tasks live until Stop or StopAll, independent of any request context.
func (s *Scheduler) Start(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[botID]; exists {
		return false
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &botTask{botID: botID, cancel: cancel, done: make(chan struct{})}
	s.tasks[botID] = task
	go s.loop(taskCtx, task)

	s.logger.Info("Bot task started", zap.String("bot_id", botID), zap.Duration("interval", s.interval))
	return true
}

// Stop cancels the task for botID. An in-flight run is allowed to finish.
func (s *Scheduler) Stop(botID string) bool {
	s.mu.Lock()
	task, exists := s.tasks[botID]
	if exists {
		delete(s.tasks, botID)
	}
	s.mu.Unlock()

	if !exists {
		return false
	}
	s.halt(task)
	return true
}

// stopTask stops task only if it is still the registered one for its bot.
func (s *Scheduler) stopTask(task *botTask) {
	s.mu.Lock()
	current := s.tasks[task.botID] == task
	if current {
		delete(s.tasks, task.botID)
	}
	s.mu.Unlock()

	if current {
		s.halt(task)
	}
}

func (s *Scheduler) halt(task *botTask) {
	task.cancel()
	<-task.done
	s.logger.Info("Bot task stopped", zap.String("bot_id", task.botID))
}

// StopAll stops every task and waits for in-flight runs to finish.
func (s *Scheduler) StopAll() {
	for _, id := range s.Running() {
		s.Stop(id)
	}
	s.runs.Wait()
}

// Running returns the ids of bots with a live task, sorted.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) IsRunning(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[botID]
	return ok
}

// Sync starts tasks for active bots and stops tasks whose bot is inactive or gone.
func (s *Scheduler) Sync(ctx context.Context) error {
	bots, err := s.bots.ListBots(ctx)
	if err != nil {
		return err
	}

	active := make(map[string]bool, len(bots))
	for _, b := range bots {
		if b.IsActive {
			active[b.ID] = true
			s.Start(b.ID)
		}
	}
	for _, id := range s.Running() {
		if !active[id] {
			s.Stop(id)
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, task *botTask) {
	defer close(task.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(ctx, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, task)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, task *botTask) {
	if !task.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("Previous run still in flight, skipping tick", zap.String("bot_id", task.botID))
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer task.inFlight.Store(false)

		// Stopping the task must not abort a run halfway through its slots.
		res, err := s.runner.Reconcile(context.WithoutCancel(ctx), task.botID)
		switch {
		case errors.Is(err, domain.ErrBotInactive), errors.Is(err, domain.ErrBotNotFound):
			s.logger.Info("Bot no longer runnable, stopping task", zap.String("bot_id", task.botID), zap.Error(err))
			go s.stopTask(task)
		case errors.Is(err, domain.ErrLeaseHeld):
			s.logger.Debug("Bot busy in another run", zap.String("bot_id", task.botID))
		case err != nil:
			s.logger.Warn("Scheduled run failed", zap.String("bot_id", task.botID), zap.Error(err))
		default:
			s.logger.Info("Scheduled run completed",
				zap.String("bot_id", task.botID),
				zap.Int("slot_errors", res.SlotErrors),
				zap.Bool("dry_run", res.DryRun))
		}
	}()
}
