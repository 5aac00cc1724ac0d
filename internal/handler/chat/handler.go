package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
	chatService "github.com/skynetai/skynet/backend/internal/service/chat"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Handler serves the /chatbot routes.
type Handler struct {
	registry *chatService.Registry
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New creates the chat handler.
func New(registry *chatService.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chatbot", func(r chi.Router) {
		r.Post("/chat", h.handleChat)
		r.Get("/sessions", h.handleListSessions)
		r.Post("/session", h.handleCreateSession)
		r.Get("/session/{sessionID}/messages", h.handleMessages)
		r.Delete("/session/{sessionID}", h.handleDeleteSession)
		r.Get("/stream", h.handleStream)
		r.Get("/ws", h.handleWebSocket)
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Reply     string `json:"reply,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.registry.Chat(r.Context(), u.ID, payload.Message, payload.SessionID)
	if err != nil {
		respondTurnError(w, r, reply, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Status:    utils.StatusSuccess,
		Message:   reply.Message,
		SessionID: reply.SessionID,
	})
}

// respondTurnError reports a failed turn. A reply that was generated but not
// stored is still handed back alongside the error.
func respondTurnError(w http.ResponseWriter, r *http.Request, reply chatService.Reply, err error) {
	if errors.Is(err, apperr.ErrPersistence) && reply.Message != "" {
		utils.GetLogger().Error("chat reply not persisted", "session", reply.SessionID, "error", err)
		utils.RespondJSON(w, http.StatusInternalServerError, chatResponse{
			Status:    utils.StatusError,
			Message:   apperr.Message(err),
			SessionID: reply.SessionID,
			Reply:     reply.Message,
		})
		return
	}
	utils.RespondErr(w, r, err)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.registry.List(r.Context(), u.ID)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Name      string `json:"name"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.registry.Create(r.Context(), u.ID, payload.SessionID, payload.Name)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	messages, err := h.registry.Messages(r.Context(), u.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.registry.Delete(r.Context(), u.ID, sessionID); err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, fmt.Sprintf("Session %s deleted successfully", sessionID))
}

func requireUser(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		utils.RespondError(w, http.StatusUnauthorized, "Missing or invalid authentication token")
		return nil, false
	}
	return u, true
}
