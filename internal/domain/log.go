package domain

import "time"

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is an append-only activity line scoped to one bot.
type LogEntry struct {
	ID        string         `json:"id"`
	BotID     string         `json:"bot_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"log_level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
