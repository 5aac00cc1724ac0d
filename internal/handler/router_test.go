package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/cache"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/llmtest"
	"github.com/skynetai/skynet/backend/internal/model/user"
	"github.com/skynetai/skynet/backend/internal/service/ai"
	"github.com/skynetai/skynet/backend/internal/service/chat"
	"github.com/skynetai/skynet/backend/internal/service/summarizer"
	"github.com/skynetai/skynet/backend/internal/store"
)

type tokenTable map[string]string

func (t tokenTable) Verify(_ context.Context, token string) (*user.User, error) {
	uid, ok := t[token]
	if !ok {
		return nil, apperr.New(apperr.ErrInvalidToken, "unknown token")
	}
	return &user.User{ID: uid, Role: user.DefaultRole}, nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(t *testing.T, health map[string]Pinger) http.Handler {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "router.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := llmtest.New()
	aiSvc, err := ai.NewService(ctx, m, config.ChatConfig{})
	require.NoError(t, err)
	sum, err := summarizer.NewService(ctx, m, cache.NewMemory(), config.SummarizerConfig{ChunkSize: 1000, CacheTTL: time.Minute, MapConcurrency: 1})
	require.NoError(t, err)

	if health == nil {
		health = map[string]Pinger{"store": st}
	}
	return NewRouter(Deps{
		Registry:       chat.NewRegistry(st, aiSvc),
		Summarizer:     sum,
		Verifier:       tokenTable{"token-1": "u1"},
		AllowOrigins:   []string{"*"},
		MaxUploadBytes: 1 << 20,
		Health:         health,
	})
}

func get(t *testing.T, h http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestRootIsPublic(t *testing.T) {
	resp := get(t, newRouter(t, nil), "/", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"Hello":"World"}`, resp.Body.String())
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	r := newRouter(t, nil)

	resp := get(t, r, "/chatbot/sessions", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "Bearer", resp.Header().Get("WWW-Authenticate"))

	resp = get(t, r, "/chatbot/sessions", "token-1")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `[]`, resp.Body.String())
}

func TestAuthRoutesAbsentWithoutService(t *testing.T) {
	resp := get(t, newRouter(t, nil), "/auth/profile", "token-1")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHealthz(t *testing.T) {
	resp := get(t, newRouter(t, nil), "/healthz", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = get(t, newRouter(t, map[string]Pinger{
		"cache": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}), "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "error", body.Status)
	require.Equal(t, "down", body.Checks["cache"])
}
