package utils

import (
	"net/http"

	"github.com/skynetai/skynet/backend/internal/apperr"
)

// RespondErr maps err onto its status code and writes the failure payload.
// Server-side failures are logged with their full cause.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		GetLogger().Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	RespondError(w, status, apperr.Message(err))
}
