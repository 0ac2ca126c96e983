package storage

import (
	"context"
	"time"
)

// LeaseRepository Implementation

// AcquireLease takes the bot's lease if nobody holds it or the holder's lease expired.
func (s *SQLiteStore) AcquireLease(ctx context.Context, botID, token string, ttl time.Duration, now time.Time) (bool, error) {
	query := `INSERT INTO bot_leases (bot_id, token, expires_at_ms) VALUES (?, ?, ?)
			  ON CONFLICT(bot_id) DO UPDATE SET token=excluded.token, expires_at_ms=excluded.expires_at_ms
			  WHERE bot_leases.expires_at_ms <= ?`
	res, err := s.db.ExecContext(ctx, query, botID, token, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) RenewLease(ctx context.Context, botID, token string, ttl time.Duration, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bot_leases SET expires_at_ms = ? WHERE bot_id = ? AND token = ?`,
		now.Add(ttl).UnixMilli(), botID, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, botID, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_leases WHERE bot_id = ? AND token = ?`, botID, token)
	return err
}
