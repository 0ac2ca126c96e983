package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"go.uber.org/zap"
)

// DefaultBot returns the configuration new bots start from. Request payloads
// are decoded on top of it, so omitted fields keep these values.
func DefaultBot() *domain.Bot {
	tpATRMult, tpPct, tpFixed := 0.5, 0.005, 0.0
	return &domain.Bot{
		Exchange:             "Bybit",
		AccountType:          domain.AccountDemo,
		IsTestnet:            true,
		Symbol:               "XMR/USDT:USDT",
		NumSlots:             6,
		TotalAllocPct:        0.6,
		LevelsMethod:         domain.LevelsATR,
		ATRTimeframe:         "5m",
		ATRPeriod:            14,
		LevelATRMults:        []float64{0, 1, 2, 3, 4, 5},
		LevelPcts:            []float64{0, -0.03, -0.06, -0.12, -0.25, -0.5},
		TPMethod:             domain.TPATRAboveEntry,
		TPATRMult:            &tpATRMult,
		TPPct:                &tpPct,
		TPFixed:              &tpFixed,
		RecenterThresholdPct: 0.001,
	}
}

// BotService is the operator-facing surface: bot CRUD, activation and credentials.
type BotService struct {
	bots      domain.BotRepository
	slots     domain.SlotRepository
	creds     domain.CredentialRepository
	scheduler *Scheduler
	activity  *ActivityLogger
	logger    *zap.Logger
	now       func() time.Time
}

func NewBotService(
	bots domain.BotRepository,
	slots domain.SlotRepository,
	creds domain.CredentialRepository,
	scheduler *Scheduler,
	activity *ActivityLogger,
	logger *zap.Logger,
) *BotService {
	return &BotService{
		bots:      bots,
		slots:     slots,
		creds:     creds,
		scheduler: scheduler,
		activity:  activity,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *BotService) CreateBot(ctx context.Context, bot *domain.Bot) (*domain.Bot, error) {
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	if strings.TrimSpace(bot.Name) == "" {
		bot.Name = bot.Symbol
	}
	if err := bot.Validate(); err != nil {
		return nil, domain.NewRunError(domain.KindConfiguration, "validate bot", err)
	}
	now := s.now().UTC()
	bot.CreatedAt, bot.UpdatedAt = now, now
	bot.LastRunAt = nil

	if err := s.bots.SaveBot(ctx, bot); err != nil {
		return nil, fmt.Errorf("failed to save bot: %w", err)
	}
	s.logger.Info("Bot created", zap.String("bot_id", bot.ID), zap.String("symbol", bot.Symbol))
	s.activity.Info(ctx, bot.ID, fmt.Sprintf("Bot %s created", bot.Name), nil)

	if bot.IsActive && s.scheduler != nil {
		s.scheduler.Start(bot.ID)
	}
	return bot, nil
}

func (s *BotService) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	bot, err := s.bots.GetBot(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrBotNotFound
	}
	return bot, err
}

func (s *BotService) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	return s.bots.ListBots(ctx)
}

func (s *BotService) ListSlots(ctx context.Context, botID string) ([]*domain.Slot, error) {
	if _, err := s.GetBot(ctx, botID); err != nil {
		return nil, err
	}
	return s.slots.ListSlots(ctx, botID)
}

// SetActive persists the flag and starts or stops the bot's interval task.
func (s *BotService) SetActive(ctx context.Context, botID string, active bool) (*domain.Bot, error) {
	err := s.bots.SetBotActive(ctx, botID, active)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update bot: %w", err)
	}

	if s.scheduler != nil {
		if active {
			s.scheduler.Start(botID)
		} else {
			s.scheduler.Stop(botID)
		}
	}

	msg := "Bot deactivated"
	if active {
		msg = "Bot activated"
	}
	s.activity.Info(ctx, botID, msg, nil)
	return s.GetBot(ctx, botID)
}

func (s *BotService) DeleteBot(ctx context.Context, botID string) error {
	if s.scheduler != nil {
		s.scheduler.Stop(botID)
	}
	err := s.bots.DeleteBot(ctx, botID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrBotNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info("Bot deleted", zap.String("bot_id", botID))
	return nil
}

func (s *BotService) SaveCredentials(ctx context.Context, creds *domain.Credentials) error {
	if creds.Exchange == "" || creds.APIKey == "" || creds.APISecret == "" {
		return domain.NewRunError(domain.KindConfiguration, "validate credentials",
			errors.New("exchange_name, api_key and api_secret are required"))
	}
	if creds.AccountType == "" {
		creds.AccountType = domain.AccountDemo
	}
	if creds.AccountType != domain.AccountDemo && creds.AccountType != domain.AccountReal {
		return domain.NewRunError(domain.KindConfiguration, "validate credentials",
			fmt.Errorf("unknown account_type %q", creds.AccountType))
	}
	creds.UpdatedAt = s.now().UTC()
	if err := s.creds.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	s.logger.Info("Exchange credentials saved",
		zap.String("exchange", creds.Exchange),
		zap.String("account_type", string(creds.AccountType)))
	return nil
}
