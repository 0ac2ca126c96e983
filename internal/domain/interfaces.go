package domain

import (
	"context"
	"time"
)

// BotRepository defines storage operations for bot configuration.
type BotRepository interface {
	SaveBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	ListBots(ctx context.Context) ([]*Bot, error)
	ListActiveBots(ctx context.Context) ([]*Bot, error)
	SetBotActive(ctx context.Context, id string, active bool) error
	TouchLastRun(ctx context.Context, id string, at time.Time) error
	DeleteBot(ctx context.Context, id string) error
}

// SlotRepository defines storage operations for per-slot order records.
type SlotRepository interface {
	GetSlot(ctx context.Context, botID string, slotID int) (*Slot, error)
	ListSlots(ctx context.Context, botID string) ([]*Slot, error)
	// CreateSlot inserts the slot unless (bot_id, slot_id) already exists and
	// returns the stored row either way.
	CreateSlot(ctx context.Context, slot *Slot) (*Slot, error)
	UpdateSlot(ctx context.Context, slot *Slot) error
}

type CredentialRepository interface {
	SaveCredentials(ctx context.Context, creds *Credentials) error
	GetCredentials(ctx context.Context, exchange string, accountType AccountType) (*Credentials, error)
}

type LogRepository interface {
	AppendLog(ctx context.Context, entry *LogEntry) error
	ListLogs(ctx context.Context, botID string, limit int) ([]*LogEntry, error)
}

// LeaseRepository guards at-most-one reconciliation per bot across processes.
type LeaseRepository interface {
	AcquireLease(ctx context.Context, botID, token string, ttl time.Duration, now time.Time) (bool, error)
	RenewLease(ctx context.Context, botID, token string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, botID, token string) error
}
