package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vitos/crypto_ladder_bot/internal/domain"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrBotNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindConfiguration:
		return http.StatusBadRequest
	case domain.KindConcurrency:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.bots.ListBots(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bots == nil {
		bots = []*domain.Bot{}
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	bot := usecase.DefaultBot()
	if err := json.NewDecoder(r.Body).Decode(bot); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	created, err := s.bots.CreateBot(r.Context(), bot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.bots.GetBot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	if err := s.bots.DeleteBot(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateBot(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, true)
}

func (s *Server) handleDeactivateBot(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, false)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	bot, err := s.bots.SetActive(r.Context(), r.PathValue("id"), active)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bot)
}

// Runs and fills place exchange orders, so they outlive a dropped client.
func (s *Server) handleRunBot(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Reconcile(context.WithoutCancel(r.Context()), r.PathValue("id"))
	s.writeJSON(w, statusFor(err), res)
}

func (s *Server) handleRunFleet(w http.ResponseWriter, r *http.Request) {
	report, err := s.fleet.Sweep(context.WithoutCancel(r.Context()))
	if err != nil && report == nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.bots.ListSlots(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if slots == nil {
		slots = []*domain.Slot{}
	}
	s.writeJSON(w, http.StatusOK, slots)
}

type fillRequest struct {
	Kind      string  `json:"kind"` // buy | tp
	FilledQty float64 `json:"filled_qty"`
}

func (s *Server) handleSlotFill(w http.ResponseWriter, r *http.Request) {
	slotID, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slotID < 1 {
		http.Error(w, "Invalid slot id", http.StatusBadRequest)
		return
	}
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	botID := r.PathValue("id")
	ctx := context.WithoutCancel(r.Context())
	var slot *domain.Slot
	switch req.Kind {
	case "buy":
		slot, err = s.reconciler.RecordBuyFill(ctx, botID, slotID, req.FilledQty)
	case "tp":
		slot, err = s.reconciler.RecordTakeProfitFill(ctx, botID, slotID)
	default:
		http.Error(w, `kind must be "buy" or "tp"`, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	logs, err := s.activity.Recent(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*domain.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

type credentialsRequest struct {
	Exchange    string             `json:"exchange_name"`
	AccountType domain.AccountType `json:"account_type"`
	APIKey      string             `json:"api_key"`
	APISecret   string             `json:"api_secret"`
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	creds := &domain.Credentials{
		Exchange:    req.Exchange,
		AccountType: req.AccountType,
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
	}
	if err := s.bots.SaveCredentials(r.Context(), creds); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "exchange_name": creds.Exchange, "account_type": creds.AccountType})
}
