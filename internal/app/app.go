// Package app wires the configured storage, exchange connector and engine
// components shared by the command line tools.
package app

import (
	"fmt"

	"github.com/vitos/crypto_ladder_bot/internal/config"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/metrics"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/secrets"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      *storage.SQLiteStore
	Connector  domain.ExchangeConnector
	Metrics    *metrics.Metrics
	Activity   *usecase.ActivityLogger
	Reconciler *usecase.Reconciler
	Fleet      *usecase.FleetSweeper
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	}
	return logger.NewLogger(cfg.Logging.Level)
}

func NewConnector(cfg *config.Config) domain.ExchangeConnector {
	if cfg.Exchange.Mode == config.ModeDirect {
		return exchange.NewBybitConnector(cfg.Exchange.RESTEndpoint, cfg.Exchange.TestnetRESTEndpoint, cfg.Exchange.RequestsPerSecond)
	}
	return exchange.NewProxyClient(cfg.Exchange.ProxyURL, cfg.Exchange.ProxyToken, cfg.Exchange.RequestsPerSecond)
}

// New opens the store and builds the engine. Callers own Close.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	cipher, err := secrets.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if cipher == nil {
		log.Warn("No encryption key configured, exchange credentials are stored in plain text")
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Path, cipher)
	if err != nil {
		return nil, fmt.Errorf("failed to init sqlite: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    log,
		Store:     store,
		Connector: NewConnector(cfg),
		Metrics:   metrics.New(),
	}
	a.Activity = usecase.NewActivityLogger(store, log)
	a.Reconciler = usecase.NewReconciler(store, store, store, store, a.Connector, a.Activity, a.Metrics,
		usecase.ReconcilerConfig{
			FallbackCapital:     cfg.Trading.FallbackCapital,
			BalanceAccountTypes: cfg.Trading.BalanceAccountTypes,
			DryRunPolicy:        cfg.DryRunPolicy(),
			LeaseTTL:            cfg.LeaseTTL(),
			RecenterRestingBuys: cfg.Trading.RecenterRestingBuys,
		}, log)
	a.Fleet = usecase.NewFleetSweeper(store, a.Reconciler, log)

	rc := a.Reconciler.Config()
	log.Info("Reconciliation engine ready",
		zap.String("exchange_mode", cfg.Exchange.Mode),
		zap.String("dry_run_policy", string(rc.DryRunPolicy)),
		zap.Bool("reference_dry_run_policy", rc.DryRunPolicy == domain.ReferenceDryRunPolicy),
		zap.Float64("fallback_capital", rc.FallbackCapital),
		zap.Strings("balance_account_types", rc.BalanceAccountTypes),
		zap.Duration("lease_ttl", rc.LeaseTTL))
	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
