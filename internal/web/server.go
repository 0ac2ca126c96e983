package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_ladder_bot/internal/infrastructure/metrics"
	"github.com/vitos/crypto_ladder_bot/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router     *http.ServeMux
	server     *http.Server
	bots       *usecase.BotService
	reconciler *usecase.Reconciler
	fleet      *usecase.FleetSweeper
	activity   *usecase.ActivityLogger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewServer(
	port int,
	bots *usecase.BotService,
	reconciler *usecase.Reconciler,
	fleet *usecase.FleetSweeper,
	activity *usecase.ActivityLogger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		bots:       bots,
		reconciler: reconciler,
		fleet:      fleet,
		activity:   activity,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", s.metrics.Handler())

	// Bots
	s.router.HandleFunc("GET /api/bots", s.handleListBots)
	s.router.HandleFunc("POST /api/bots", s.handleCreateBot)
	s.router.HandleFunc("GET /api/bots/{id}", s.handleGetBot)
	s.router.HandleFunc("DELETE /api/bots/{id}", s.handleDeleteBot)
	s.router.HandleFunc("POST /api/bots/{id}/activate", s.handleActivateBot)
	s.router.HandleFunc("POST /api/bots/{id}/deactivate", s.handleDeactivateBot)

	// Runs
	s.router.HandleFunc("POST /api/bots/{id}/run", s.handleRunBot)
	s.router.HandleFunc("POST /api/fleet/run", s.handleRunFleet)

	// Slots
	s.router.HandleFunc("GET /api/bots/{id}/slots", s.handleListSlots)
	s.router.HandleFunc("POST /api/bots/{id}/slots/{slot}/fill", s.handleSlotFill)

	// Logs
	s.router.HandleFunc("GET /api/bots/{id}/logs", s.handleListLogs)
	s.router.HandleFunc("GET /ws/bots/{id}/logs", s.handleLogStream)

	// Credentials
	s.router.HandleFunc("POST /api/credentials", s.handleSaveCredentials)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
