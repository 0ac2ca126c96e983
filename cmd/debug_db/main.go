package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "ladder.db", "path to sqlite database")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath, nil)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	bots, err := store.ListBots(ctx)
	if err != nil {
		fmt.Printf("Failed to list bots: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d bots:\n", len(bots))
	for _, b := range bots {
		lastRun := "never"
		if b.LastRunAt != nil {
			lastRun = b.LastRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("- Bot ID: %s, Name: %s, Symbol: %s, Active: %v, Testnet: %v, Last run: %s\n",
			b.ID, b.Name, b.Symbol, b.IsActive, b.IsTestnet, lastRun)

		slots, err := store.ListSlots(ctx, b.ID)
		if err != nil {
			fmt.Printf("  ❌ Failed to list slots: %v\n", err)
			continue
		}
		if len(slots) == 0 {
			fmt.Printf("  ⚠️ No slots yet\n")
			continue
		}
		for _, s := range slots {
			fmt.Printf("  Slot %d: %-8s entry=%.2f tp=%.2f qty=%.4f buy=%q tp_order=%q\n",
				s.SlotID, s.Status, s.EntryPrice, s.TPPrice, s.Qty, s.BuyOrderID, s.TPOrderID)
		}
	}
}
