package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/app"
	"github.com/vitos/crypto_ladder_bot/internal/config"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"github.com/vitos/crypto_ladder_bot/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage, Exchange and Engine
	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to init app", zap.Error(err))
	}
	defer a.Close()

	scheduler := usecase.NewScheduler(a.Reconciler, a.Store, cfg.RunInterval(), log)
	bots := usecase.NewBotService(a.Store, a.Store, a.Store, scheduler, a.Activity, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Keep per-bot tasks in line with the is_active flags (Reload Loop)
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval())
		defer ticker.Stop()

		for {
			if err := scheduler.Sync(ctx); err != nil {
				log.Error("Failed to sync bot tasks", zap.Error(err))
			}

			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}()

	// 5. Optional in-process fleet sweep
	if every := cfg.FleetSweepInterval(); every > 0 {
		go func() {
			ticker := time.NewTicker(every)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if _, err := a.Fleet.Sweep(ctx); err != nil {
						log.Error("Fleet sweep failed", zap.Error(err))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// 6. Init Web Server
	server := web.NewServer(cfg.Server.Port, bots, a.Reconciler, a.Fleet, a.Activity, a.Metrics, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.StopAll()
}
