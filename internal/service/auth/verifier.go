// Package auth verifies identity-provider ID tokens and talks to the
// provider's account REST API.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
)

const (
	// DefaultCertsURL publishes the x509 certificates that sign ID tokens.
	DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	issuerPrefix    = "https://securetoken.google.com/"
	defaultCertsTTL = time.Hour
)

// Verifier resolves a bearer token into the calling user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*user.User, error)
}

// Claims are the ID token fields the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks RS256 ID tokens against the provider's rotating
// public keys.
type TokenVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	now       func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// VerifierOption customizes a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithCertsURL overrides where signing certificates are fetched from.
func WithCertsURL(url string) VerifierOption {
	return func(v *TokenVerifier) { v.certsURL = url }
}

// WithHTTPClient sets the client used for certificate fetches.
func WithHTTPClient(client *http.Client) VerifierOption {
	return func(v *TokenVerifier) { v.client = client }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) { v.now = now }
}

// NewTokenVerifier builds a verifier for tokens minted for projectID.
func NewTokenVerifier(projectID string, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		projectID: projectID,
		certsURL:  DefaultCertsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates signature, audience, issuer, subject and expiry.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*user.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.New(apperr.ErrInvalidToken, "missing token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		keys, err := v.publicKeys(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrTransient) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrInvalidToken, err, "verify token")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.ErrInvalidToken, "token has no subject")
	}

	role := claims.Role
	if role == "" {
		role = user.DefaultRole
	}
	return &user.User{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

func (v *TokenVerifier) publicKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && v.now().Before(v.expires) {
		return v.keys, nil
	}

	keys, ttl, err := v.fetchKeys(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransient, err, "fetch signing certificates")
	}
	v.keys = keys
	v.expires = v.now().Add(ttl)
	return keys, nil
}

func (v *TokenVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certificate endpoint returned %s", resp.Status)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, 0, fmt.Errorf("decode certificates: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		key, err := parseCertificateKey(certPEM)
		if err != nil {
			return nil, 0, fmt.Errorf("certificate %s: %w", kid, err)
		}
		keys[kid] = key
	}
	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

func parseCertificateKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate key is not RSA")
	}
	return key, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultCertsTTL
}
