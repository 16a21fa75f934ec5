package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
)

// DefaultTokenTTL is the lifetime of tokens minted by IssueToken.
const DefaultTokenTTL = 12 * time.Hour

// ErrNoSecret is returned when a token is requested without a configured secret.
var ErrNoSecret = errors.New("api: jwt secret is not configured")

func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}

// IssueToken signs an HS256 token for subject. A zero ttl uses
// DefaultTokenTTL. Operators use it to give a rehearsal tool access to event
// injection.
func IssueToken(cfg config.JWTConfig, subject string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates raw and returns its subject.
func ParseToken(cfg config.JWTConfig, raw string) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
