// Command check_proxy exercises the read-only exchange calls for one bot's
// credentials so operators can verify proxy or direct connectivity.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_ladder_bot/internal/app"
	"github.com/vitos/crypto_ladder_bot/internal/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	botID := flag.String("bot", "", "bot id whose exchange and credentials to check")
	flag.Parse()

	if *botID == "" {
		fmt.Println("Usage: check_proxy -bot <id> [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, zap.NewNop())
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bot, err := a.Store.GetBot(ctx, *botID)
	if err != nil {
		fmt.Printf("❌ Failed to load bot %s: %v\n", *botID, err)
		os.Exit(1)
	}
	creds, err := a.Store.GetCredentials(ctx, bot.Exchange, bot.AccountType)
	if err != nil {
		fmt.Printf("❌ No credentials for %s (%s): %v\n", bot.Exchange, bot.AccountType, err)
		os.Exit(1)
	}

	fmt.Printf("Testing %s via %s mode...\n", bot.Exchange, cfg.Exchange.Mode)
	fmt.Printf("Symbol: %s, testnet: %v\n", bot.Symbol, bot.IsTestnet)
	fmt.Printf("API Key: %s...\n", mask(creds.APIKey))

	ex, err := a.Connector.Connect(bot, creds)
	if err != nil {
		fmt.Printf("❌ Failed to connect: %v\n", err)
		os.Exit(1)
	}

	ticker, err := ex.GetTicker(ctx, bot.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
	} else {
		fmt.Printf("✅ Last price (%s): %f\n", bot.Symbol, ticker.Last)
	}

	balance, err := ex.GetBalance(ctx, cfg.Trading.BalanceAccountTypes)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ USDT balance: %f\n", balance.USDT)
	}

	candles, err := ex.GetOHLCV(ctx, bot.Symbol, bot.ATRTimeframe, bot.ATRPeriod+2)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
	} else {
		fmt.Printf("✅ Candles (%s): %d\n", bot.ATRTimeframe, len(candles))
	}
}

func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4]
}
