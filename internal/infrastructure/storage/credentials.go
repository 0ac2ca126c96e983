package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
)

// CredentialRepository Implementation

func (s *SQLiteStore) SaveCredentials(ctx context.Context, creds *domain.Credentials) error {
	key, err := s.cipher.Encrypt(creds.APIKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	secret, err := s.cipher.Encrypt(creds.APISecret)
	if err != nil {
		return fmt.Errorf("encrypt api secret: %w", err)
	}
	creds.UpdatedAt = time.Now().UTC()

	query := `INSERT INTO exchange_credentials (exchange_name, account_type, api_key_ciphertext, api_secret_ciphertext, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(exchange_name, account_type) DO UPDATE SET
			  api_key_ciphertext=excluded.api_key_ciphertext,
			  api_secret_ciphertext=excluded.api_secret_ciphertext,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, creds.Exchange, creds.AccountType, key, secret, creds.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetCredentials(ctx context.Context, exchange string, accountType domain.AccountType) (*domain.Credentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT exchange_name, account_type, api_key_ciphertext, api_secret_ciphertext, updated_at
		 FROM exchange_credentials WHERE exchange_name = ? AND account_type = ?`, exchange, accountType)

	var c domain.Credentials
	var key, secret string
	if err := row.Scan(&c.Exchange, &c.AccountType, &key, &secret, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var err error
	if c.APIKey, err = s.cipher.Decrypt(key); err != nil {
		return nil, fmt.Errorf("decrypt api key: %w", err)
	}
	if c.APISecret, err = s.cipher.Decrypt(secret); err != nil {
		return nil, fmt.Errorf("decrypt api secret: %w", err)
	}
	return &c, nil
}
