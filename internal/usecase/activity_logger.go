package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultLogLimit = 100
	subscriberBuf   = 64
)

// ActivityLogger records bot-scoped activity lines, mirrors them to zap and
// fans them out to live subscribers. Failures never reach the caller.
type ActivityLogger struct {
	repo   domain.LogRepository
	logger *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs map[string]map[chan domain.LogEntry]struct{}
}

func NewActivityLogger(repo domain.LogRepository, logger *zap.Logger) *ActivityLogger {
	return &ActivityLogger{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		subs:   make(map[string]map[chan domain.LogEntry]struct{}),
	}
}

func (a *ActivityLogger) Info(ctx context.Context, botID, message string, details map[string]any) {
	a.log(ctx, domain.LogInfo, botID, message, details)
}

func (a *ActivityLogger) Warn(ctx context.Context, botID, message string, details map[string]any) {
	a.log(ctx, domain.LogWarn, botID, message, details)
}

func (a *ActivityLogger) Error(ctx context.Context, botID, message string, details map[string]any) {
	a.log(ctx, domain.LogError, botID, message, details)
}

func (a *ActivityLogger) log(ctx context.Context, level domain.LogLevel, botID, message string, details map[string]any) {
	entry := &domain.LogEntry{
		ID:        uuid.NewString(),
		BotID:     botID,
		Timestamp: a.now().UTC(),
		Level:     level,
		Message:   message,
		Details:   details,
	}

	fields := []zap.Field{zap.String("bot_id", botID)}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	switch level {
	case domain.LogWarn:
		a.logger.Warn(message, fields...)
	case domain.LogError:
		a.logger.Error(message, fields...)
	default:
		a.logger.Info(message, fields...)
	}

	if err := a.repo.AppendLog(ctx, entry); err != nil {
		a.logger.Error("Failed to persist activity log", zap.String("bot_id", botID), zap.Error(err))
	}
	a.publish(*entry)
}

func (a *ActivityLogger) publish(entry domain.LogEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for ch := range a.subs[entry.BotID] {
		select {
		case ch <- entry:
		default:
			// slow subscriber, drop the line
		}
	}
}

// Subscribe streams new entries for botID until cancel is called.
func (a *ActivityLogger) Subscribe(botID string) (<-chan domain.LogEntry, func()) {
	ch := make(chan domain.LogEntry, subscriberBuf)

	a.mu.Lock()
	if a.subs[botID] == nil {
		a.subs[botID] = make(map[chan domain.LogEntry]struct{})
	}
	a.subs[botID][ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs[botID], ch)
			if len(a.subs[botID]) == 0 {
				delete(a.subs, botID)
			}
			a.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns the newest entries first. A non-positive limit means DefaultLogLimit.
func (a *ActivityLogger) Recent(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	entries, err := a.repo.ListLogs(ctx, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for bot %s: %w", botID, err)
	}
	return entries, nil
}
