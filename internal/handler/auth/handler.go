package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
	authService "github.com/skynetai/skynet/backend/internal/service/auth"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Handler serves the /auth routes.
type Handler struct {
	svc *authService.Service
}

// New creates the auth handler.
func New(svc *authService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/google", h.handleGoogle)
		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile", h.handleUpdateProfile)
	})
}

type tokenResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

func respondAccount(w http.ResponseWriter, status int, message string, account authService.Account) {
	utils.RespondJSON(w, status, tokenResponse{
		Status:       utils.StatusSuccess,
		Message:      message,
		UserID:       account.UserID,
		IDToken:      account.IDToken,
		RefreshToken: account.RefreshToken,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.svc.Register(r.Context(), payload.Email, payload.Password, payload.DisplayName)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	respondAccount(w, http.StatusCreated, "User registered successfully", account)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.svc.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if apperr.Status(err) == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		utils.RespondErr(w, r, err)
		return
	}
	respondAccount(w, http.StatusOK, "Login successful", account)
}

func (h *Handler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.svc.Google(r.Context(), payload.IDToken)
	if err != nil {
		if apperr.Status(err) == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		utils.RespondErr(w, r, err)
		return
	}
	respondAccount(w, http.StatusOK, "Google sign-in successful", account)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondErr(w, r, apperr.New(apperr.ErrInvalidToken, "missing user"))
		return
	}

	profile, err := h.svc.Profile(r.Context(), u.ID)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondErr(w, r, apperr.New(apperr.ErrInvalidToken, "missing user"))
		return
	}

	var upd user.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.svc.UpdateProfile(r.Context(), u.ID, upd)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
