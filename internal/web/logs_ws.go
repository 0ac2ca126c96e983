package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleLogStream upgrades to a websocket, replays the last ?backlog entries
// oldest first and then tails new entries for the bot until the client leaves.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	if _, err := s.bots.GetBot(r.Context(), botID); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.String("bot_id", botID), zap.Error(err))
		return
	}
	defer conn.Close()

	entries, cancel := s.activity.Subscribe(botID)
	defer cancel()

	if backlog, _ := strconv.Atoi(r.URL.Query().Get("backlog")); backlog > 0 {
		recent, err := s.activity.Recent(r.Context(), botID, backlog)
		if err != nil {
			s.logger.Warn("Failed to load log backlog", zap.String("bot_id", botID), zap.Error(err))
		}
		for i := len(recent) - 1; i >= 0; i-- {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(recent[i]); err != nil {
				return
			}
		}
	}

	// Reader: handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
