package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

// LogRepository Implementation

func (s *SQLiteStore) AppendLog(ctx context.Context, entry *domain.LogEntry) error {
	var details sql.NullString
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_logs (id, bot_id, timestamp, log_level, message, details) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.BotID, entry.Timestamp.UTC(), entry.Level, entry.Message, details)
	return err
}

// ListLogs returns the newest entries first.
func (s *SQLiteStore) ListLogs(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_id, timestamp, log_level, message, details FROM bot_logs
		 WHERE bot_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var (
			e       domain.LogEntry
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BotID, &e.Timestamp, &e.Level, &e.Message, &details); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
