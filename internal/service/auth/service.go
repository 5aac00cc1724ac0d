package auth

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

const minPasswordLength = 6

// ProfileStore keeps the per-user profile documents.
type ProfileStore interface {
	CreateProfile(ctx context.Context, userID, email, displayName string) error
	GetProfile(ctx context.Context, userID string) (user.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error)
}

// Service implements the account flows exposed under /auth.
type Service struct {
	client   *Client
	profiles ProfileStore
	logger   *slog.Logger
}

// NewService combines the identity client with the profile store.
func NewService(client *Client, profiles ProfileStore) *Service {
	return &Service{
		client:   client,
		profiles: profiles,
		logger:   utils.GetLogger().With("component", "auth"),
	}
}

// Register creates an account, sets its display name and writes the
// profile document.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (Account, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return Account{}, err
	}

	account, err := s.client.SignUp(ctx, email, password)
	if err != nil {
		return Account{}, err
	}

	if displayName != "" {
		if err := s.client.UpdateDisplayName(ctx, account.IDToken, displayName); err != nil {
			s.logger.Warn("display name not set", "user", account.UserID, "error", err)
		} else {
			account.DisplayName = displayName
		}
	}

	if err := s.profiles.CreateProfile(ctx, account.UserID, email, displayName); err != nil {
		return Account{}, err
	}
	s.logger.Info("user registered", "user", account.UserID)
	return account, nil
}

// Login signs in with email and password.
func (s *Service) Login(ctx context.Context, email, password string) (Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Account{}, apperr.New(apperr.ErrBadRequest, "email and password are required")
	}
	return s.client.SignIn(ctx, email, password)
}

// Google signs in with a Google ID token and makes sure a profile exists.
func (s *Service) Google(ctx context.Context, idToken string) (Account, error) {
	if strings.TrimSpace(idToken) == "" {
		return Account{}, apperr.New(apperr.ErrBadRequest, "id_token is required")
	}
	account, err := s.client.SignInWithIdp(ctx, idToken)
	if err != nil {
		return Account{}, err
	}
	if err := s.profiles.CreateProfile(ctx, account.UserID, account.Email, account.DisplayName); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Profile returns the profile of userID.
func (s *Service) Profile(ctx context.Context, userID string) (user.Profile, error) {
	return s.profiles.GetProfile(ctx, userID)
}

// UpdateProfile changes the editable fields of the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	return s.profiles.UpdateProfile(ctx, userID, upd)
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.New(apperr.ErrBadRequest, "invalid email address")
	}
	if len(password) < minPasswordLength {
		return apperr.New(apperr.ErrBadRequest, "password must be at least %d characters", minPasswordLength)
	}
	return nil
}
