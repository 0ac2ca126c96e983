package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/zap"
)

type FleetBotResult struct {
	BotID   string `json:"botId"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type FleetReport struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Executed   int              `json:"executed"`
	Successful int              `json:"successful"`
	Results    []FleetBotResult `json:"results"`
}

// FleetSweeper reconciles every active bot once, one at a time.
type FleetSweeper struct {
	bots   domain.BotRepository
	runner BotRunner
	logger *zap.Logger
}

func NewFleetSweeper(bots domain.BotRepository, runner BotRunner, logger *zap.Logger) *FleetSweeper {
	return &FleetSweeper{bots: bots, runner: runner, logger: logger}
}

// Sweep never stops on a single bot's failure. It returns an error only when
// the active bot list cannot be read or ctx is cancelled mid-sweep.
func (f *FleetSweeper) Sweep(ctx context.Context) (*FleetReport, error) {
	bots, err := f.bots.ListActiveBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bots: %w", err)
	}

	report := &FleetReport{Results: make([]FleetBotResult, 0, len(bots))}
	for _, bot := range bots {
		if err := ctx.Err(); err != nil {
			report.Message = fmt.Sprintf("Sweep interrupted after %d of %d bots", report.Executed, len(bots))
			return report, err
		}

		result := f.runOne(ctx, bot)
		report.Executed++
		if result.Success {
			report.Successful++
		}
		report.Results = append(report.Results, result)
	}

	report.Success = true
	report.Message = fmt.Sprintf("Executed %d bots, %d successful", report.Executed, report.Successful)
	f.logger.Info("Fleet sweep completed",
		zap.Int("executed", report.Executed),
		zap.Int("successful", report.Successful))
	return report, nil
}

func (f *FleetSweeper) runOne(ctx context.Context, bot *domain.Bot) (result FleetBotResult) {
	result = FleetBotResult{BotID: bot.ID, Name: bot.Name}
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("Bot run panicked", zap.String("bot_id", bot.ID), zap.Any("panic", p))
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	res, err := f.runner.Reconcile(ctx, bot.ID)
	if err != nil {
		f.logger.Warn("Bot run failed during sweep", zap.String("bot_id", bot.ID), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Success = res.Success
	result.Message = res.Message
	return result
}
