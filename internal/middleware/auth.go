package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
	"github.com/skynetai/skynet/backend/internal/service/auth"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

const unauthorizedMessage = "Missing or invalid authentication token"

// DefaultPublicPaths are reachable without a token.
var DefaultPublicPaths = []string{"/", "/healthz", "/auth/login", "/auth/register", "/auth/google"}

// Auth requires a verified bearer token on every path outside public. The
// resolved user is attached to the request context.
func Auth(verifier auth.Verifier, public []string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			u, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, apperr.ErrTransient) {
					utils.RespondErr(w, r, err)
					return
				}
				utils.GetLogger().Debug("token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(user.WithUser(r.Context(), u)))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter that browsers use for WebSocket and SSE connections.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	utils.RespondError(w, http.StatusUnauthorized, unauthorizedMessage)
}
