package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/service/auth"
	"github.com/skynetai/skynet/backend/internal/store"
)

// identityAPI imitates the account endpoints.
type identityAPI struct {
	mu       sync.Mutex
	accounts map[string]string
	requests []string
	names    map[string]string
}

func newIdentityAPI(t *testing.T) (*identityAPI, *httptest.Server) {
	t.Helper()
	api := &identityAPI{accounts: map[string]string{}, names: map[string]string{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *identityAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	method := strings.TrimPrefix(r.URL.Path, "/")
	a.requests = append(a.requests, method)
	if r.URL.Query().Get("key") != "api-key" {
		writeAPIError(w, http.StatusBadRequest, "API_KEY_INVALID")
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)

	switch method {
	case "accounts:signUp":
		if _, exists := a.accounts[email]; exists {
			writeAPIError(w, http.StatusBadRequest, "EMAIL_EXISTS")
			return
		}
		a.accounts[email] = password
		writeAccount(w, "uid-"+email, email)
	case "accounts:signInWithPassword":
		if a.accounts[email] != password || password == "" {
			writeAPIError(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		writeAccount(w, "uid-"+email, email)
	case "accounts:signInWithIdp":
		postBody, _ := body["postBody"].(string)
		if !strings.Contains(postBody, "providerId=google.com") || !strings.Contains(postBody, "id_token=google-ok") {
			writeAPIError(w, http.StatusBadRequest, "INVALID_IDP_RESPONSE")
			return
		}
		writeAccount(w, "uid-google", "g@example.com")
	case "accounts:update":
		token, _ := body["idToken"].(string)
		a.names[token], _ = body["displayName"].(string)
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "x"})
	default:
		http.NotFound(w, r)
	}
}

func writeAccount(w http.ResponseWriter, uid, email string) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"localId":      uid,
		"email":        email,
		"idToken":      "id-" + uid,
		"refreshToken": "refresh-" + uid,
	})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": message}})
}

func newAuthService(t *testing.T) (*auth.Service, *identityAPI, *store.Store) {
	t.Helper()
	api, srv := newIdentityAPI(t)
	st, err := store.Open(context.Background(), config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "auth.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	client := auth.NewClient("api-key", "skynet.firebaseapp.com", auth.WithBaseURL(srv.URL), auth.WithClientHTTP(srv.Client()))
	return auth.NewService(client, st), api, st
}

func TestRegisterCreatesAccountAndProfile(t *testing.T) {
	svc, api, st := newAuthService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "ada@example.com", "secret-pw", "Ada")
	require.NoError(t, err)
	require.Equal(t, "uid-ada@example.com", account.UserID)
	require.NotEmpty(t, account.IDToken)
	require.Equal(t, "Ada", api.names[account.IDToken])

	profile, err := st.GetProfile(ctx, account.UserID)
	require.NoError(t, err)
	require.Equal(t, "Ada", profile.DisplayName)
	require.Equal(t, "user", profile.Role)

	_, err = svc.Register(ctx, "ada@example.com", "secret-pw", "")
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	require.Contains(t, err.Error(), "EMAIL_EXISTS")
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, api, _ := newAuthService(t)

	_, err := svc.Register(context.Background(), "not-an-email", "secret-pw", "")
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = svc.Register(context.Background(), "a@example.com", "123", "")
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	require.Empty(t, api.requests)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ada@example.com", "secret-pw", "")
	require.NoError(t, err)

	account, err := svc.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	require.Equal(t, "refresh-uid-ada@example.com", account.RefreshToken)

	_, err = svc.Login(ctx, "ada@example.com", "wrong-pw")
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestGoogleSignInProvisionsProfile(t *testing.T) {
	svc, _, st := newAuthService(t)
	ctx := context.Background()

	account, err := svc.Google(ctx, "google-ok")
	require.NoError(t, err)
	require.Equal(t, "uid-google", account.UserID)

	_, err = st.GetProfile(ctx, "uid-google")
	require.NoError(t, err)

	_, err = svc.Google(ctx, "google-bad")
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestProviderOutageIsTransient(t *testing.T) {
	_, srv := newIdentityAPI(t)
	client := auth.NewClient("api-key", "", auth.WithBaseURL(srv.URL))
	srv.Close()

	_, err := client.SignIn(context.Background(), "a@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrTransient)
}
