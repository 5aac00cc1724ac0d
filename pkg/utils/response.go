package utils

import (
	"encoding/json"
	"net/http"
)

// StatusSuccess and StatusError are the status markers every JSON body carries.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		GetLogger().Warn("failed to encode response", "error", err)
	}
}

// RespondError writes the structured failure payload.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"status": StatusError, "message": message})
}

// RespondMessage writes {status: "success", message}.
func RespondMessage(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"status": StatusSuccess, "message": message})
}
