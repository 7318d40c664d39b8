// Package mw contains HTTP middleware for the sitesift API.
package mw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClaimsKey is the context key for verified token claims.
	ClaimsKey ContextKey = "token_claims"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

const tokenIssuer = "sitesift"

var (
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned when issuing without a key.
	ErrNoSigningKey = errors.New("signing key is empty")
)

// Claims are the claims carried by API bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject that expires after ttl.
func IssueToken(key []byte, subject string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", ErrNoSigningKey
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token issued by IssueToken.
func ParseToken(key []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetClaims retrieves verified claims from context.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// bearerToken strips an optional "Bearer " prefix.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// HumaAuth returns a Huma middleware that requires a valid bearer token on
// operations whose security lists SecurityScheme. With an empty key every
// operation is open.
func HumaAuth(api huma.API, key []byte, logger *slog.Logger) func(ctx huma.Context, next func(huma.Context)) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx huma.Context, next func(huma.Context)) {
		if len(key) == 0 || !operationRequiresAuth(ctx.Operation()) {
			next(ctx)
			return
		}

		header := ctx.Header("Authorization")
		if header == "" {
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="sitesift"`)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := ParseToken(key, bearerToken(header))
		if err != nil {
			logger.Debug("auth validation failed", "error", err)
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="sitesift", error="invalid_token"`)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token")
			return
		}

		next(huma.WithContext(ctx, context.WithValue(ctx.Context(), ClaimsKey, claims)))
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	if op == nil {
		return false
	}
	for _, req := range op.Security {
		if _, ok := req[SecurityScheme]; ok {
			return true
		}
	}
	return false
}
