package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/llmtest"
	"github.com/skynetai/skynet/backend/internal/model/chat"
	"github.com/skynetai/skynet/backend/internal/model/user"
	"github.com/skynetai/skynet/backend/internal/service/ai"
	chatservice "github.com/skynetai/skynet/backend/internal/service/chat"
	"github.com/skynetai/skynet/backend/internal/store"
)

// asUser authenticates requests by the X-User header.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-User"); id != "" {
			r = r.WithContext(user.WithUser(r.Context(), &user.User{ID: id, Role: user.DefaultRole}))
		}
		next.ServeHTTP(w, r)
	})
}

type brokenAppends struct {
	*store.Store
}

func (brokenAppends) AppendMessages(context.Context, string, string, ...chat.Message) error {
	return apperr.New(apperr.ErrTransient, "disk full")
}

func setupRouter(t *testing.T, wrap func(*store.Store) chatservice.Store) *chi.Mux {
	t.Helper()
	return setupRouterWithModel(t, llmtest.Echo("echo: "), wrap)
}

func setupRouterWithModel(t *testing.T, m *llmtest.ChatModel, wrap func(*store.Store) chatservice.Store) *chi.Mux {
	t.Helper()
	return mount(newHandler(t, m, wrap))
}

func newHandler(t *testing.T, m *llmtest.ChatModel, wrap func(*store.Store) chatservice.Store) *Handler {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "handler.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := ai.NewService(ctx, m, config.ChatConfig{})
	require.NoError(t, err)

	var backing chatservice.Store = st
	if wrap != nil {
		backing = wrap(st)
	}
	return New(chatservice.NewRegistry(backing, svc))
}

func mount(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(asUser)
	h.RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User", uid)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestChatCreatesSessionAndContinuesIt(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{Message: "Hello"})
	require.Equal(t, http.StatusOK, resp.Code)
	first := decode[chatResponse](t, resp)
	require.Equal(t, "success", first.Status)
	require.Equal(t, "echo: Hello", first.Message)
	require.NotEmpty(t, first.SessionID)

	resp = do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{Message: "How are you?", SessionID: first.SessionID})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, first.SessionID, decode[chatResponse](t, resp).SessionID)

	resp = do(t, r, http.MethodGet, "/chatbot/session/"+first.SessionID+"/messages", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	messages := decode[[]chat.Message](t, resp)
	require.Len(t, messages, 4)
	require.Equal(t, chat.RoleHuman, messages[2].Role)
}

func TestChatErrors(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{Message: "hi", SessionID: "missing"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "error", decode[map[string]string](t, resp)["status"])

	resp = do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/chatbot/chat", "", chatRequest{Message: "hi"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestProviderErrorsStayOutOfResponses(t *testing.T) {
	m := llmtest.New()
	m.Reply = func(context.Context, []*schema.Message) (string, error) {
		return "", errors.New("POST https://models.internal/v1/chat 429 org=acme-prod key=sk-live-123 quota exceeded")
	}
	r := setupRouterWithModel(t, m, nil)

	resp := do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{Message: "Hello"})
	require.Equal(t, http.StatusBadGateway, resp.Code)
	require.NotContains(t, resp.Body.String(), "sk-live-123")
	require.NotContains(t, resp.Body.String(), "models.internal")
	require.Equal(t, "language model unavailable: generate reply", decode[chatResponse](t, resp).Message)

	resp = do(t, r, http.MethodGet, "/chatbot/stream?message=Hello", "u1", nil)
	require.NotContains(t, resp.Body.String(), "sk-live-123")
}

func TestChatPersistenceFailureStillReturnsReply(t *testing.T) {
	r := setupRouter(t, func(st *store.Store) chatservice.Store { return brokenAppends{Store: st} })

	resp := do(t, r, http.MethodPost, "/chatbot/chat", "u1", chatRequest{Message: "Hello"})
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	out := decode[chatResponse](t, resp)
	require.Equal(t, "error", out.Status)
	require.Equal(t, "echo: Hello", out.Reply)
	require.NotEmpty(t, out.SessionID)
}

func TestSessionLifecycle(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodPost, "/chatbot/session", "u1", map[string]string{"session_id": "s-1", "name": "Planning"})
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = do(t, r, http.MethodPost, "/chatbot/session", "u1", map[string]string{"session_id": "s-1", "name": "Other"})
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "Planning", decode[chat.Session](t, resp).Name)

	resp = do(t, r, http.MethodGet, "/chatbot/sessions", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	sessions := decode[[]chat.Session](t, resp)
	require.Len(t, sessions, 1)
	require.Equal(t, "s-1", sessions[0].ID)

	resp = do(t, r, http.MethodGet, "/chatbot/sessions", "u2", nil)
	require.Empty(t, decode[[]chat.Session](t, resp))

	resp = do(t, r, http.MethodDelete, "/chatbot/session/s-1", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, map[string]string{"status": "success", "message": "Session s-1 deleted successfully"}, decode[map[string]string](t, resp))

	resp = do(t, r, http.MethodDelete, "/chatbot/session/s-1", "u1", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, r, http.MethodGet, "/chatbot/session/s-1/messages", "u1", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateSessionWithoutBody(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodPost, "/chatbot/session", "u1", nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotEmpty(t, decode[chat.Session](t, resp).ID)
}

func TestStreamEmitsEvents(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodGet, "/chatbot/stream?message=good+morning", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	body := resp.Body.String()
	start := strings.Index(body, "event: start")
	chunk := strings.Index(body, "event: chunk")
	done := strings.Index(body, "event: done")
	require.True(t, start >= 0 && chunk > start && done > chunk, body)
	require.Contains(t, body, `"message":"echo: good morning"`)
}

func TestStreamUnknownSessionIsPlainError(t *testing.T) {
	r := setupRouter(t, nil)

	resp := do(t, r, http.MethodGet, "/chatbot/stream?message=hi&session_id=nope", "u1", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
}

func TestWebSocketChat(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t, nil))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-User", "u1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chatbot/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "ping"}))
	var first chatResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "success", first.Status)
	require.Equal(t, "echo: ping", first.Message)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "again", SessionID: "unknown"}))
	var failed chatResponse
	require.NoError(t, conn.ReadJSON(&failed))
	require.Equal(t, "error", failed.Status)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "still open", SessionID: first.SessionID}))
	var third chatResponse
	require.NoError(t, conn.ReadJSON(&third))
	require.Equal(t, first.SessionID, third.SessionID)
}

func TestWebSocketSurvivesTurnLongerThanPongWait(t *testing.T) {
	var (
		mu     sync.Mutex
		offset = -pongWait + 200*time.Millisecond
	)
	m := llmtest.Echo("echo: ")
	echo := m.Reply
	m.Reply = func(ctx context.Context, in []*schema.Message) (string, error) {
		// the turn outlasts the read deadline taken before it started
		time.Sleep(500 * time.Millisecond)
		mu.Lock()
		offset = 0
		mu.Unlock()
		return echo(ctx, in)
	}

	h := newHandler(t, m, nil)
	h.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return time.Now().Add(offset)
	}
	srv := httptest.NewServer(mount(h))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-User", "u1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chatbot/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "slow"}))
	var first chatResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "echo: slow", first.Message)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "next", SessionID: first.SessionID}))
	var second chatResponse
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "success", second.Status)
}
