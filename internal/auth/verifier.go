// Package auth verifies bearer tokens against a remote JWKS key set.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnauthorized indicates a missing, malformed, expired, or
// signature-invalid bearer token, or a failure to obtain the signing keys.
// A key-set fetch failure is never treated as an accept.
var ErrUnauthorized = errors.New("invalid or missing credentials")

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 bearer tokens using keys published at a JWKS URL.
type Verifier struct {
	keys   *keyCache
	issuer string
	logger *zap.Logger
}

// NewVerifier creates a verifier for the configured JWKS endpoint.
func NewVerifier(cfg *config.AuthConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		keys:   newKeyCache(cfg.JWKSURL, time.Duration(cfg.RefreshIntervalSeconds)*time.Second),
		issuer: cfg.Issuer,
		logger: logger,
	}
}

// Verify validates the token and returns the caller identity. Every failure
// path returns ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header missing kid")
		}
		return v.keys.Key(ctx, kid)
	}, opts...)
	if err != nil {
		v.logger.Debug("token verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	return &models.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
	}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid authorization header", ErrUnauthorized)
	}
	return parts[1], nil
}
