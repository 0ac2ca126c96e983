package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	ModeProxy  = "proxy"
	ModeDirect = "direct"
)

type Config struct {
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Exchange struct {
		Mode                string `yaml:"mode"`
		ProxyURL            string `yaml:"proxy_url"`
		ProxyToken          string `yaml:"proxy_token"`
		RequestsPerSecond   int    `yaml:"requests_per_second"`
		RESTEndpoint        string `yaml:"rest_endpoint"`
		TestnetRESTEndpoint string `yaml:"testnet_rest_endpoint"`
	} `yaml:"exchange"`
	Trading struct {
		FallbackCapital     float64  `yaml:"fallback_capital"`
		BalanceAccountTypes []string `yaml:"balance_account_types"`
		DryRunPolicy        string   `yaml:"dry_run_policy"`
		LeaseTTLSeconds     int      `yaml:"lease_ttl_seconds"`
		RecenterRestingBuys bool     `yaml:"recenter_resting_buys"`
	} `yaml:"trading"`
	Scheduler struct {
		IntervalSeconds     int `yaml:"interval_seconds"`
		SyncIntervalSeconds int `yaml:"sync_interval_seconds"`
		// FleetSweepSeconds enables the in-process fleet sweep; 0 leaves it to an external cron.
		FleetSweepSeconds int `yaml:"fleet_sweep_seconds"`
	} `yaml:"scheduler"`
	Security struct {
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"security"`
}

// Load reads the YAML file at path, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if env := os.Getenv("LADDER_ENCRYPTION_KEY"); env != "" {
		cfg.Security.EncryptionKey = env
	}
	if env := os.Getenv("LADDER_PROXY_TOKEN"); env != "" {
		cfg.Exchange.ProxyToken = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "ladder.db"
	}
	if c.Exchange.Mode == "" {
		c.Exchange.Mode = ModeProxy
	}
	if c.Exchange.RequestsPerSecond == 0 {
		c.Exchange.RequestsPerSecond = 5
	}
	if c.Exchange.RESTEndpoint == "" {
		c.Exchange.RESTEndpoint = "https://api.bybit.com"
	}
	if c.Exchange.TestnetRESTEndpoint == "" {
		c.Exchange.TestnetRESTEndpoint = "https://api-testnet.bybit.com"
	}
	if c.Trading.FallbackCapital == 0 {
		c.Trading.FallbackCapital = 10000
	}
	if len(c.Trading.BalanceAccountTypes) == 0 {
		c.Trading.BalanceAccountTypes = []string{"UNIFIED", "SPOT", "CONTRACT", "FUNDING"}
	}
	if c.Trading.DryRunPolicy == "" {
		c.Trading.DryRunPolicy = string(domain.ReferenceDryRunPolicy)
	}
	if c.Trading.LeaseTTLSeconds == 0 {
		c.Trading.LeaseTTLSeconds = 120
	}
	if c.Scheduler.IntervalSeconds == 0 {
		c.Scheduler.IntervalSeconds = 60
	}
	if c.Scheduler.SyncIntervalSeconds == 0 {
		c.Scheduler.SyncIntervalSeconds = 30
	}
}

func (c *Config) Validate() error {
	switch c.Exchange.Mode {
	case ModeProxy:
		if c.Exchange.ProxyURL == "" {
			return fmt.Errorf("exchange.proxy_url is required in %s mode", ModeProxy)
		}
	case ModeDirect:
	default:
		return fmt.Errorf("unknown exchange.mode %q (want %s or %s)", c.Exchange.Mode, ModeProxy, ModeDirect)
	}
	if _, err := domain.ParseDryRunPolicy(c.Trading.DryRunPolicy); err != nil {
		return fmt.Errorf("trading.dry_run_policy: %w", err)
	}
	if c.Trading.FallbackCapital < 0 {
		return fmt.Errorf("trading.fallback_capital must be >= 0")
	}
	if c.Scheduler.IntervalSeconds < 0 || c.Scheduler.SyncIntervalSeconds < 0 || c.Scheduler.FleetSweepSeconds < 0 {
		return fmt.Errorf("scheduler intervals must be >= 0")
	}
	return nil
}

func (c *Config) DryRunPolicy() domain.DryRunPolicy {
	p, _ := domain.ParseDryRunPolicy(c.Trading.DryRunPolicy)
	return p
}

func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Scheduler.SyncIntervalSeconds) * time.Second
}

func (c *Config) FleetSweepInterval() time.Duration {
	return time.Duration(c.Scheduler.FleetSweepSeconds) * time.Second
}

func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Trading.LeaseTTLSeconds) * time.Second
}
