package chat

import (
	"errors"
	"net/http"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

type streamEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Reply     string `json:"reply,omitempty"`
}

// handleStream runs one turn and relays the reply as Server-Sent Events:
// start, chunk..., then done or error.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	query := r.URL.Query()
	message := query.Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	logger := utils.GetLogger().With("component", "sse")
	started := false
	onStart := func(sessionID string) error {
		utils.SetupSSEHeaders(w)
		started = true
		logger.Debug("opening chat stream", "session", sessionID)
		return utils.SendSSEEvent(w, flusher, "start", streamEvent{SessionID: sessionID})
	}
	onChunk := func(content string) error {
		return utils.SendSSEEvent(w, flusher, "chunk", streamEvent{Content: content})
	}

	reply, err := h.registry.ChatStream(r.Context(), u.ID, message, query.Get("session_id"), onStart, onChunk)
	if err != nil {
		if !started {
			respondTurnError(w, r, reply, err)
			return
		}
		event := streamEvent{SessionID: reply.SessionID, Message: apperr.Message(err)}
		if errors.Is(err, apperr.ErrPersistence) {
			event.Reply = reply.Message
		}
		logger.Warn("chat stream failed", "session", reply.SessionID, "error", err)
		if sendErr := utils.SendSSEEvent(w, flusher, "error", event); sendErr != nil {
			logger.Debug("client went away", "error", sendErr)
		}
		return
	}

	if err := utils.SendSSEEvent(w, flusher, "done", streamEvent{SessionID: reply.SessionID, Message: reply.Message}); err != nil {
		logger.Debug("client went away", "error", err)
	}
}
