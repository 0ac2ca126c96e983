package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultFallbackCapital = 10000.0
	DefaultLeaseTTL        = 2 * time.Minute

	minDriftBase = 1e-9
)

var DefaultBalanceAccountTypes = []string{"UNIFIED", "SPOT", "CONTRACT", "FUNDING"}

type ReconcilerConfig struct {
	// FallbackCapital is used when the balance call fails or reports nothing.
	FallbackCapital     float64
	BalanceAccountTypes []string
	DryRunPolicy        domain.DryRunPolicy
	LeaseTTL            time.Duration
	// RecenterRestingBuys also recenters buy_open slots, not only waiting and closed ones.
	RecenterRestingBuys bool
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		FallbackCapital:     DefaultFallbackCapital,
		BalanceAccountTypes: DefaultBalanceAccountTypes,
		DryRunPolicy:        domain.ReferenceDryRunPolicy,
		LeaseTTL:            DefaultLeaseTTL,
	}
}

type SlotAction string

const (
	SlotCreated    SlotAction = "created"
	SlotRecentered SlotAction = "recentered"
	SlotRefreshed  SlotAction = "refreshed"
	SlotPlaced     SlotAction = "placed"
	SlotTPPlaced   SlotAction = "tp_placed"
)

type SlotOutcome struct {
	SlotID     int               `json:"slot_id"`
	Target     float64           `json:"target"`
	Status     domain.SlotStatus `json:"status,omitempty"`
	BuyOrderID string            `json:"buy_order_id,omitempty"`
	Actions    []SlotAction      `json:"actions,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RunResult is the summary of one reconciliation pass.
type RunResult struct {
	BotID          string        `json:"bot_id"`
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	ReferencePrice float64       `json:"refPrice,omitempty"`
	Targets        []float64     `json:"targets,omitempty"`
	SizePerSlot    float64       `json:"sizePerSlot,omitempty"`
	Capital        float64       `json:"capital,omitempty"`
	ATR            *float64      `json:"atr,omitempty"`
	DryRun         bool          `json:"dry_run"`
	Slots          []SlotOutcome `json:"slots,omitempty"`
	SlotErrors     int           `json:"slot_errors"`
}

// Reconciler drives one bot's ladder toward the levels computed from live
// market data. Runs for the same bot are serialized through a persisted lease.
type Reconciler struct {
	bots      domain.BotRepository
	slots     domain.SlotRepository
	creds     domain.CredentialRepository
	leases    domain.LeaseRepository
	connector domain.ExchangeConnector
	planner   *LevelPlanner
	activity  *ActivityLogger
	metrics   *metrics.Metrics
	cfg       ReconcilerConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(
	bots domain.BotRepository,
	slots domain.SlotRepository,
	creds domain.CredentialRepository,
	leases domain.LeaseRepository,
	connector domain.ExchangeConnector,
	activity *ActivityLogger,
	m *metrics.Metrics,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) *Reconciler {
	def := DefaultReconcilerConfig()
	if cfg.FallbackCapital <= 0 {
		cfg.FallbackCapital = def.FallbackCapital
	}
	if len(cfg.BalanceAccountTypes) == 0 {
		cfg.BalanceAccountTypes = def.BalanceAccountTypes
	}
	if cfg.DryRunPolicy == "" {
		cfg.DryRunPolicy = def.DryRunPolicy
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	return &Reconciler{
		bots:      bots,
		slots:     slots,
		creds:     creds,
		leases:    leases,
		connector: connector,
		planner:   NewLevelPlanner(),
		activity:  activity,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *Reconciler) Config() ReconcilerConfig {
	return r.cfg
}

// Reconcile runs one full pass for botID. The returned result is always
// non-nil; err is set when the run aborted before completing all slots.
// Per-slot placement failures do not abort the run and are reported in the result.
func (r *Reconciler) Reconcile(ctx context.Context, botID string) (*RunResult, error) {
	start := r.now()
	res := &RunResult{BotID: botID}

	err := r.run(ctx, botID, res)
	r.metrics.ObserveRun(runLabel(err), r.now().Sub(start))
	if err != nil {
		res.Success = false
		res.Message = err.Error()
		r.logger.Warn("Reconciliation aborted",
			zap.String("bot_id", botID),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return res, err
	}
	res.Success = true
	return res, nil
}

func runLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrLeaseHeld), errors.Is(err, domain.ErrBotInactive):
		return "skipped"
	default:
		return "failure"
	}
}

func (r *Reconciler) run(ctx context.Context, botID string, res *RunResult) error {
	bot, err := r.loadBot(ctx, botID)
	if err != nil {
		return err
	}
	if !bot.IsActive {
		r.activity.Info(ctx, botID, "Bot is inactive, skipping run", nil)
		return domain.NewRunError(domain.KindConfiguration, "check bot", domain.ErrBotInactive)
	}
	if err := bot.Validate(); err != nil {
		r.activity.Error(ctx, botID, "Invalid bot configuration", map[string]any{"error": err.Error()})
		return domain.NewRunError(domain.KindConfiguration, "validate bot", err)
	}

	lease, err := r.acquireLease(ctx, botID)
	if err != nil {
		return err
	}
	defer lease.release(ctx)

	r.activity.Info(ctx, botID, fmt.Sprintf("Starting bot run for %s", bot.Name), map[string]any{"symbol": bot.Symbol})

	ex, err := r.connect(ctx, bot)
	if err != nil {
		return err
	}

	price, err := r.referencePrice(ctx, ex, bot)
	if err != nil {
		return err
	}
	res.ReferencePrice = price
	res.Capital = r.capital(ctx, ex, bot)
	res.ATR = r.atr(ctx, ex, bot)

	levels := r.planner.Plan(price, bot, res.ATR)
	res.Targets = make([]float64, len(levels))
	for i, lvl := range levels {
		res.Targets[i] = lvl.Entry
	}
	r.activity.Info(ctx, botID, "Entry levels computed", map[string]any{
		"method":  string(bot.LevelsMethod),
		"targets": res.Targets,
	})

	res.SizePerSlot = bot.TotalAllocPct * res.Capital / float64(bot.NumSlots)
	res.DryRun = r.cfg.DryRunPolicy.Simulate(bot)
	gw := &orderGateway{ex: ex, symbol: bot.Symbol, dryRun: res.DryRun, now: r.now, metrics: r.metrics}

	var slotErrs error
	for i, lvl := range levels {
		if err := lease.renew(ctx); err != nil {
			return err
		}

		slotID := i + 1
		out, err := r.reconcileSlot(ctx, bot, gw, slotID, lvl, res.SizePerSlot)
		res.Slots = append(res.Slots, out)
		if err == nil {
			continue
		}
		if domain.KindOf(err) == domain.KindPersistence {
			return err
		}
		res.Slots[len(res.Slots)-1].Error = err.Error()
		slotErrs = multierr.Append(slotErrs, fmt.Errorf("slot %d: %w", slotID, err))
		r.metrics.SlotError()
		r.activity.Error(ctx, botID, fmt.Sprintf("Slot %d failed", slotID), map[string]any{"error": err.Error()})
	}

	if err := r.bots.TouchLastRun(ctx, botID, r.now().UTC()); err != nil {
		return domain.NewRunError(domain.KindPersistence, "update last run", err)
	}

	res.SlotErrors = len(multierr.Errors(slotErrs))
	if slotErrs != nil {
		res.Message = fmt.Sprintf("Bot executed with %d slot error(s)", res.SlotErrors)
		r.logger.Warn("Slot errors during run", zap.String("bot_id", botID), zap.Error(slotErrs))
	} else {
		res.Message = "Bot executed successfully"
	}
	r.activity.Info(ctx, botID, "Bot run completed", map[string]any{
		"refPrice":    res.ReferencePrice,
		"targets":     res.Targets,
		"sizePerSlot": res.SizePerSlot,
		"dry_run":     res.DryRun,
		"slot_errors": res.SlotErrors,
	})
	return nil
}

func (r *Reconciler) loadBot(ctx context.Context, botID string) (*domain.Bot, error) {
	bot, err := r.bots.GetBot(ctx, botID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewRunError(domain.KindConfiguration, "load bot", fmt.Errorf("%w: %s", domain.ErrBotNotFound, botID))
	}
	if err != nil {
		return nil, domain.NewRunError(domain.KindPersistence, "load bot", err)
	}
	return bot, nil
}

func (r *Reconciler) connect(ctx context.Context, bot *domain.Bot) (domain.ExchangeProxy, error) {
	creds, err := r.creds.GetCredentials(ctx, bot.Exchange, bot.AccountType)
	if errors.Is(err, domain.ErrNotFound) {
		r.activity.Error(ctx, bot.ID, fmt.Sprintf(
			"No exchange credentials found for %s (%s). Connect your exchange in settings.", bot.Exchange, bot.AccountType), nil)
		return nil, domain.NewRunError(domain.KindConfiguration, "load credentials",
			fmt.Errorf("%w for %s (%s): connect your exchange in settings", domain.ErrCredentialsMissing, bot.Exchange, bot.AccountType))
	}
	if err != nil {
		return nil, domain.NewRunError(domain.KindPersistence, "load credentials", err)
	}

	ex, err := r.connector.Connect(bot, creds)
	if err != nil {
		r.activity.Error(ctx, bot.ID, "Failed to connect exchange", map[string]any{"error": err.Error()})
		return nil, domain.NewRunError(domain.KindConfiguration, "connect exchange", err)
	}
	return ex, nil
}

func (r *Reconciler) referencePrice(ctx context.Context, ex domain.ExchangeProxy, bot *domain.Bot) (float64, error) {
	ticker, err := ex.GetTicker(ctx, bot.Symbol)
	if err != nil {
		r.activity.Error(ctx, bot.ID, "Failed to fetch ticker", map[string]any{"error": err.Error()})
		return 0, domain.NewRunError(domain.KindUpstream, "fetch ticker", fmt.Errorf("%w: %w", domain.ErrPriceUnavailable, err))
	}
	if ticker == nil || !(ticker.Last > 0) {
		r.activity.Warn(ctx, bot.ID, "Reference price not available, skipping run", nil)
		return 0, domain.NewRunError(domain.KindUpstream, "fetch ticker", domain.ErrPriceUnavailable)
	}
	r.activity.Info(ctx, bot.ID, fmt.Sprintf("Current price: %v", ticker.Last), nil)
	return ticker.Last, nil
}

// capital fails open to the configured fallback so demo runs are never
// blocked by a balance outage. Zero balance falls back too.
func (r *Reconciler) capital(ctx context.Context, ex domain.ExchangeProxy, bot *domain.Bot) float64 {
	bal, err := ex.GetBalance(ctx, r.cfg.BalanceAccountTypes)
	if err != nil || bal == nil || !(bal.USDT > 0) {
		details := map[string]any{"fallback_capital": r.cfg.FallbackCapital}
		if err != nil {
			details["error"] = err.Error()
		}
		r.activity.Warn(ctx, bot.ID, "Balance unavailable, using fallback capital", details)
		return r.cfg.FallbackCapital
	}
	r.activity.Info(ctx, bot.ID, fmt.Sprintf("Available balance: %v USDT", bal.USDT), nil)
	return bal.USDT
}

func (r *Reconciler) atr(ctx context.Context, ex domain.ExchangeProxy, bot *domain.Bot) *float64 {
	if !bot.NeedsATR() {
		return nil
	}
	candles, err := ex.GetOHLCV(ctx, bot.Symbol, bot.ATRTimeframe, bot.ATRPeriod+2)
	if err != nil {
		r.activity.Warn(ctx, bot.ID, "Failed to fetch candles, ATR unavailable", map[string]any{"error": err.Error()})
		return nil
	}
	v, ok := ATR(candles, bot.ATRPeriod)
	if !ok {
		r.activity.Warn(ctx, bot.ID, "Not enough candles for ATR", map[string]any{
			"candles": len(candles),
			"period":  bot.ATRPeriod,
		})
		return nil
	}
	r.activity.Info(ctx, bot.ID, fmt.Sprintf("ATR(%d, %s) = %v", bot.ATRPeriod, bot.ATRTimeframe, v), nil)
	return &v
}

func (r *Reconciler) reconcileSlot(ctx context.Context, bot *domain.Bot, gw *orderGateway, slotID int, lvl Level, size float64) (out SlotOutcome, err error) {
	out = SlotOutcome{SlotID: slotID, Target: lvl.Entry}
	var slot *domain.Slot
	defer func() {
		if slot != nil {
			out.Status = slot.Status
			out.BuyOrderID = slot.BuyOrderID
		}
	}()

	if !(lvl.Entry > 0) {
		return out, domain.NewRunError(domain.KindPlacement, "plan slot", fmt.Errorf("non-positive entry target %v", lvl.Entry))
	}
	qty := Quantity(size, lvl.Entry)

	slot, err = r.slots.GetSlot(ctx, bot.ID, slotID)
	if errors.Is(err, domain.ErrNotFound) {
		slot, err = r.slots.CreateSlot(ctx, &domain.Slot{
			BotID:      bot.ID,
			SlotID:     slotID,
			EntryPrice: lvl.Entry,
			TPPrice:    lvl.TP,
			SizeUSDT:   size,
			Qty:        qty,
			Status:     domain.SlotWaiting,
			UpdatedAt:  r.now().UTC(),
		})
		if err != nil {
			return out, domain.NewRunError(domain.KindPersistence, "create slot", err)
		}
		out.Actions = append(out.Actions, SlotCreated)
	} else if err != nil {
		return out, domain.NewRunError(domain.KindPersistence, "load slot", err)
	}

	if r.shouldRecenter(bot, slot, lvl.Entry) {
		if err := gw.Cancel(ctx, slot.BuyOrderID); err != nil {
			r.activity.Warn(ctx, bot.ID, fmt.Sprintf("Failed to cancel order %s for slot %d", slot.BuyOrderID, slotID),
				map[string]any{"error": err.Error()})
		}
		r.activity.Info(ctx, bot.ID, fmt.Sprintf("Recentering slot %d: %v -> %v", slotID, slot.EntryPrice, lvl.Entry), nil)
		slot.BuyOrderID = ""
		slot.Status = domain.SlotWaiting
		if err := r.saveSlot(context.WithoutCancel(ctx), slot); err != nil {
			return out, err
		}
		out.Actions = append(out.Actions, SlotRecentered)
	}

	if slot.Status == domain.SlotBought && slot.TPOrderID == "" {
		if err := r.restTakeProfit(ctx, gw, slot); err != nil {
			return out, err
		}
		out.Actions = append(out.Actions, SlotTPPlaced)
		return out, nil
	}
	if !slot.Status.Idle() {
		return out, nil
	}

	slot.EntryPrice = lvl.Entry
	slot.TPPrice = lvl.TP
	slot.SizeUSDT = size
	slot.Qty = qty
	if err := r.saveSlot(ctx, slot); err != nil {
		return out, err
	}
	out.Actions = append(out.Actions, SlotRefreshed)

	if slot.HasRestingBuy() {
		return out, nil
	}
	if !(qty > 0) {
		return out, domain.NewRunError(domain.KindPlacement, "place buy",
			fmt.Errorf("quantity rounds to zero (size %v USDT at %v)", size, lvl.Entry))
	}

	id, err := gw.PlaceBuy(ctx, qty, lvl.Entry)
	if err != nil {
		return out, domain.NewRunError(domain.KindPlacement, "place buy", err)
	}
	// The order is live on the exchange; its id must be stored even if ctx is gone.
	slot.BuyOrderID = id
	slot.Status = domain.SlotBuyOpen
	if err := r.saveSlot(context.WithoutCancel(ctx), slot); err != nil {
		return out, err
	}
	r.activity.Info(ctx, bot.ID, fmt.Sprintf("Placed BUY order for slot %d: %v @ %v", slotID, qty, lvl.Entry),
		map[string]any{"order_id": id, "dry_run": gw.dryRun})
	out.Actions = append(out.Actions, SlotPlaced)
	return out, nil
}

// restTakeProfit rests the reduce-only exit for a bought slot and records its id.
func (r *Reconciler) restTakeProfit(ctx context.Context, gw *orderGateway, slot *domain.Slot) error {
	qty := slot.FilledQty
	if !(qty > 0) {
		qty = slot.Qty
	}
	id, err := gw.PlaceTakeProfit(ctx, qty, slot.TPPrice)
	if err != nil {
		r.activity.Error(ctx, slot.BotID, fmt.Sprintf("Failed to place TP for slot %d", slot.SlotID),
			map[string]any{"error": err.Error()})
		return domain.NewRunError(domain.KindPlacement, "place take profit", err)
	}
	slot.TPOrderID = id
	if err := r.saveSlot(context.WithoutCancel(ctx), slot); err != nil {
		return err
	}
	r.activity.Info(ctx, slot.BotID, fmt.Sprintf("Placed TP order for slot %d: %v @ %v", slot.SlotID, qty, slot.TPPrice),
		map[string]any{"order_id": id, "dry_run": gw.dryRun})
	return nil
}

func (r *Reconciler) shouldRecenter(bot *domain.Bot, slot *domain.Slot, target float64) bool {
	if !slot.HasRestingBuy() {
		return false
	}
	if !slot.Status.Idle() && !(r.cfg.RecenterRestingBuys && slot.Status == domain.SlotBuyOpen) {
		return false
	}
	return Drift(slot.EntryPrice, target) >= bot.RecenterThresholdPct
}

// Drift is the relative distance of target from entry.
func Drift(entry, target float64) float64 {
	return math.Abs(target-entry) / math.Max(minDriftBase, entry)
}

func (r *Reconciler) saveSlot(ctx context.Context, slot *domain.Slot) error {
	slot.UpdatedAt = r.now().UTC()
	if err := r.slots.UpdateSlot(ctx, slot); err != nil {
		return domain.NewRunError(domain.KindPersistence, fmt.Sprintf("update slot %d", slot.SlotID), err)
	}
	return nil
}

type runLease struct {
	r     *Reconciler
	botID string
	token string
}

func (r *Reconciler) acquireLease(ctx context.Context, botID string) (*runLease, error) {
	token := uuid.NewString()
	ok, err := r.leases.AcquireLease(ctx, botID, token, r.cfg.LeaseTTL, r.now())
	if err != nil {
		return nil, domain.NewRunError(domain.KindPersistence, "acquire lease", err)
	}
	if !ok {
		r.activity.Info(ctx, botID, "Another run is in progress, skipping", nil)
		return nil, domain.NewRunError(domain.KindConcurrency, "acquire lease", domain.ErrLeaseHeld)
	}
	return &runLease{r: r, botID: botID, token: token}, nil
}

func (l *runLease) renew(ctx context.Context) error {
	ok, err := l.r.leases.RenewLease(ctx, l.botID, l.token, l.r.cfg.LeaseTTL, l.r.now())
	if err != nil {
		return domain.NewRunError(domain.KindPersistence, "renew lease", err)
	}
	if !ok {
		l.r.activity.Error(ctx, l.botID, "Run lease lost, aborting", nil)
		return domain.NewRunError(domain.KindConcurrency, "renew lease", domain.ErrLeaseLost)
	}
	return nil
}

func (l *runLease) release(ctx context.Context) {
	if err := l.r.leases.ReleaseLease(context.WithoutCancel(ctx), l.botID, l.token); err != nil {
		l.r.logger.Warn("Failed to release bot lease", zap.String("bot_id", l.botID), zap.Error(err))
	}
}
