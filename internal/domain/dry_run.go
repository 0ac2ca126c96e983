package domain

import "fmt"

// DryRunPolicy decides, per bot, whether order calls are simulated.
type DryRunPolicy string

const (
	// DryRunUnlessTestnet simulates whenever the bot is NOT on testnet, so real
	// orders only ever reach testnet. This is the historical polarity and is
	// suspected to be inverted; it stays the default until product confirms.
	DryRunUnlessTestnet DryRunPolicy = "unless_testnet"
	// DryRunOnTestnet simulates testnet bots and trades production bots for real.
	DryRunOnTestnet DryRunPolicy = "on_testnet"
	DryRunAlways    DryRunPolicy = "always"
	DryRunNever     DryRunPolicy = "never"
)

const ReferenceDryRunPolicy = DryRunUnlessTestnet

func ParseDryRunPolicy(s string) (DryRunPolicy, error) {
	switch p := DryRunPolicy(s); p {
	case DryRunUnlessTestnet, DryRunOnTestnet, DryRunAlways, DryRunNever:
		return p, nil
	case "":
		return ReferenceDryRunPolicy, nil
	}
	return "", fmt.Errorf("unknown dry run policy %q", s)
}

func (p DryRunPolicy) Simulate(bot *Bot) bool {
	switch p {
	case DryRunOnTestnet:
		return bot.IsTestnet
	case DryRunAlways:
		return true
	case DryRunNever:
		return false
	default:
		return !bot.IsTestnet
	}
}
