package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// handleWebSocket answers every inbound {message, session_id} frame with one
// chat turn. Failed turns are reported on the socket, which stays open.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.GetLogger().Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := utils.GetLogger().With("component", "websocket", "user", u.ID)
	logger.Info("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(h.now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(h.now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	for {
		var msg chatRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", "error", err)
			}
			return
		}

		reply, err := h.registry.Chat(ctx, u.ID, msg.Message, msg.SessionID)
		// pongs are only processed while reading, so the turn itself counts as liveness
		_ = conn.SetReadDeadline(h.now().Add(pongWait))
		out := chatResponse{
			Status:    utils.StatusSuccess,
			Message:   reply.Message,
			SessionID: reply.SessionID,
		}
		if err != nil {
			logger.Warn("chat turn failed", "session", msg.SessionID, "error", err)
			out = chatResponse{Status: utils.StatusError, Message: apperr.Message(err), SessionID: reply.SessionID}
			if errors.Is(err, apperr.ErrPersistence) {
				out.Reply = reply.Message
			}
		}

		_ = conn.SetWriteDeadline(h.now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("write error", "error", err)
			return
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, h.now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
