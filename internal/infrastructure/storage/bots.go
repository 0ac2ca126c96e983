package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

const botColumns = `id, name, exchange_name, account_type, is_testnet, symbol, num_slots, leverage,
	total_alloc_pct, levels_method, atr_timeframe, atr_period, level_atr_mults, level_pcts,
	tp_method, tp_atr_mult, tp_pct, tp_fixed, recenter_threshold_pct, is_active,
	last_run_at, created_at, updated_at`

// BotRepository Implementation

func (s *SQLiteStore) SaveBot(ctx context.Context, bot *domain.Bot) error {
	mults, err := encodeFloats(bot.LevelATRMults)
	if err != nil {
		return err
	}
	pcts, err := encodeFloats(bot.LevelPcts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	query := `INSERT INTO trading_bots (` + botColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  name=excluded.name, exchange_name=excluded.exchange_name, account_type=excluded.account_type,
			  is_testnet=excluded.is_testnet, symbol=excluded.symbol, num_slots=excluded.num_slots,
			  leverage=excluded.leverage, total_alloc_pct=excluded.total_alloc_pct,
			  levels_method=excluded.levels_method, atr_timeframe=excluded.atr_timeframe,
			  atr_period=excluded.atr_period, level_atr_mults=excluded.level_atr_mults,
			  level_pcts=excluded.level_pcts, tp_method=excluded.tp_method,
			  tp_atr_mult=excluded.tp_atr_mult, tp_pct=excluded.tp_pct, tp_fixed=excluded.tp_fixed,
			  recenter_threshold_pct=excluded.recenter_threshold_pct, is_active=excluded.is_active,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Exchange, bot.AccountType, bot.IsTestnet, bot.Symbol, bot.NumSlots,
		nullInt(bot.Leverage), bot.TotalAllocPct, bot.LevelsMethod, bot.ATRTimeframe, bot.ATRPeriod,
		mults, pcts, bot.TPMethod, nullFloat(bot.TPATRMult), nullFloat(bot.TPPct), nullFloat(bot.TPFixed),
		bot.RecenterThresholdPct, bot.IsActive, nullTime(bot.LastRunAt), bot.CreatedAt, bot.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM trading_bots WHERE id = ?`, id)
	bot, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return bot, err
}

func (s *SQLiteStore) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	return s.queryBots(ctx, `SELECT `+botColumns+` FROM trading_bots ORDER BY created_at, id`)
}

func (s *SQLiteStore) ListActiveBots(ctx context.Context) ([]*domain.Bot, error) {
	return s.queryBots(ctx, `SELECT `+botColumns+` FROM trading_bots WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *SQLiteStore) SetBotActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, `UPDATE trading_bots SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
}

func (s *SQLiteStore) TouchLastRun(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE trading_bots SET last_run_at = ? WHERE id = ?`, at.UTC(), id)
}

// DeleteBot removes the bot together with its slots, logs and lease.
func (s *SQLiteStore) DeleteBot(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM bot_slots WHERE bot_id = ?`,
		`DELETE FROM bot_logs WHERE bot_id = ?`,
		`DELETE FROM bot_leases WHERE bot_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM trading_bots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) queryBots(ctx context.Context, query string, args ...any) ([]*domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *SQLiteStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBot(row scanner) (*domain.Bot, error) {
	var (
		b                   domain.Bot
		leverage            sql.NullInt64
		mults, pcts         sql.NullString
		tpATR, tpPct, tpFix sql.NullFloat64
		lastRun             sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &b.Exchange, &b.AccountType, &b.IsTestnet, &b.Symbol, &b.NumSlots,
		&leverage, &b.TotalAllocPct, &b.LevelsMethod, &b.ATRTimeframe, &b.ATRPeriod, &mults, &pcts,
		&b.TPMethod, &tpATR, &tpPct, &tpFix, &b.RecenterThresholdPct, &b.IsActive,
		&lastRun, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if leverage.Valid {
		v := int(leverage.Int64)
		b.Leverage = &v
	}
	if b.LevelATRMults, err = decodeFloats(mults); err != nil {
		return nil, fmt.Errorf("bot %s level_atr_mults: %w", b.ID, err)
	}
	if b.LevelPcts, err = decodeFloats(pcts); err != nil {
		return nil, fmt.Errorf("bot %s level_pcts: %w", b.ID, err)
	}
	b.TPATRMult = floatPtr(tpATR)
	b.TPPct = floatPtr(tpPct)
	b.TPFixed = floatPtr(tpFix)
	if lastRun.Valid {
		t := lastRun.Time
		b.LastRunAt = &t
	}
	return &b, nil
}

func encodeFloats(v []float64) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeFloats(v sql.NullString) ([]float64, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
