package domain

import "time"

// Credentials are the API keys for one (exchange, account type) pair.
type Credentials struct {
	Exchange    string      `json:"exchange_name"`
	AccountType AccountType `json:"account_type"`
	APIKey      string      `json:"-"`
	APISecret   string      `json:"-"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
