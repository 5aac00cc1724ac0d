package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// DefaultIdentityURL is the base of the account REST API.
const DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"

// Account is what the provider returns after a successful sign-in or sign-up.
type Account struct {
	UserID       string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn,omitempty"`
}

// Client calls the identity provider's account endpoints.
type Client struct {
	apiKey     string
	authDomain string
	baseURL    string
	http       *http.Client
	logger     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithClientHTTP sets the underlying HTTP client.
func WithClientHTTP(client *http.Client) ClientOption {
	return func(c *Client) { c.http = client }
}

// NewClient creates a REST client authenticated with apiKey.
func NewClient(apiKey, authDomain string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		authDomain: authDomain,
		baseURL:    DefaultIdentityURL,
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     utils.GetLogger().With("component", "identity"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignUp registers an email/password account.
func (c *Client) SignUp(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &account, apperr.ErrBadRequest)
	return account, err
}

// SignIn exchanges email and password for tokens.
func (c *Client) SignIn(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &account, apperr.ErrInvalidToken)
	return account, err
}

// SignInWithIdp signs in (or up) with a Google ID token.
func (c *Client) SignInWithIdp(ctx context.Context, googleIDToken string) (Account, error) {
	postBody := url.Values{}
	postBody.Set("id_token", googleIDToken)
	postBody.Set("providerId", "google.com")

	var account Account
	err := c.post(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          c.requestURI(),
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	}, &account, apperr.ErrInvalidToken)
	return account, err
}

// UpdateDisplayName sets the display name of the account owning idToken.
func (c *Client) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	return c.post(ctx, "accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, nil, apperr.ErrBadRequest)
}

func (c *Client) requestURI() string {
	if c.authDomain == "" {
		return "http://localhost"
	}
	if strings.Contains(c.authDomain, "://") {
		return c.authDomain
	}
	return "https://" + c.authDomain
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends payload to method and decodes the reply into out. Provider
// rejections are reported as rejectKind.
func (c *Client) post(ctx context.Context, method string, payload any, out any, rejectKind error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("identity request failed", "method", method, "error", err)
		return apperr.Wrap(apperr.ErrTransient, err, "authentication service unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		reason := apiErr.Error.Message
		if reason == "" {
			reason = resp.Status
		}
		c.logger.Warn("identity request rejected", "method", method, "status", resp.StatusCode, "reason", reason)
		if resp.StatusCode >= http.StatusInternalServerError {
			return apperr.New(apperr.ErrTransient, "authentication service error")
		}
		return apperr.New(rejectKind, "%s", reason)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.ErrTransient, err, "decode identity response")
	}
	return nil
}
