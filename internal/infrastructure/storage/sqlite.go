package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/secrets"
)

type SQLiteStore struct {
	db     *sql.DB
	cipher *secrets.Cipher
}

// NewSQLiteStore opens dbPath (":memory:" is fine for tests). A nil cipher
// stores credentials unencrypted.
func NewSQLiteStore(dbPath string, cipher *secrets.Cipher) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps upserts and lease checks serialized, and keeps an
	// in-memory database from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, cipher: cipher}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trading_bots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			exchange_name TEXT NOT NULL,
			account_type TEXT NOT NULL,
			is_testnet BOOLEAN NOT NULL DEFAULT 1,
			symbol TEXT NOT NULL,
			num_slots INTEGER NOT NULL,
			leverage INTEGER,
			total_alloc_pct REAL NOT NULL,
			levels_method TEXT NOT NULL,
			atr_timeframe TEXT NOT NULL,
			atr_period INTEGER NOT NULL,
			level_atr_mults TEXT,
			level_pcts TEXT,
			tp_method TEXT NOT NULL,
			tp_atr_mult REAL,
			tp_pct REAL,
			tp_fixed REAL,
			recenter_threshold_pct REAL NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 0,
			last_run_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trading_bots_active ON trading_bots(is_active);`,
		`CREATE TABLE IF NOT EXISTS bot_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_id TEXT NOT NULL,
			slot_id INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			tp_price REAL NOT NULL,
			size_usdt REAL NOT NULL DEFAULT 0,
			qty REAL NOT NULL DEFAULT 0,
			buy_order_id TEXT NOT NULL DEFAULT '',
			tp_order_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'waiting',
			filled_qty REAL NOT NULL DEFAULT 0,
			last_update_ts DATETIME NOT NULL,
			UNIQUE (bot_id, slot_id)
		);`,
		`CREATE TABLE IF NOT EXISTS bot_logs (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			log_level TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bot_logs_bot_ts ON bot_logs(bot_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS exchange_credentials (
			exchange_name TEXT NOT NULL,
			account_type TEXT NOT NULL,
			api_key_ciphertext TEXT NOT NULL,
			api_secret_ciphertext TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (exchange_name, account_type)
		);`,
		`CREATE TABLE IF NOT EXISTS bot_leases (
			bot_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			expires_at_ms INTEGER NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}
