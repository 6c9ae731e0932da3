// Package auth mints and verifies the HS256 access tokens shared with the
// hosted backend, and carries verified claims through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized wraps every verification failure.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Role is the backend role carried in the "role" claim.
type Role string

const (
	RoleAnon          Role = "anon"
	RoleAuthenticated Role = "authenticated"
	RoleService       Role = "service_role"
)

// anonOwner is the owner recorded for meetings opened with a token that has
// no subject, such as the shared anon key.
const anonOwner = "anon"

// Claims is the verified token payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// IsService reports whether the token may read every user's data.
func (c *Claims) IsService() bool { return c.Role == RoleService }

// OwnerID names the principal that owns data created with this token. Tokens
// without a subject share the "anon" owner.
func (c *Claims) OwnerID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return anonOwner
}

// KeySpec describes a token to mint.
type KeySpec struct {
	Role    Role
	Issuer  string
	Subject string

	// IssuedAt defaults to the current time.
	IssuedAt time.Time

	// TTL is the token lifetime and must be positive.
	TTL time.Duration
}

// Mint signs an HS256 token for spec.
func Mint(secret string, spec KeySpec) (string, error) {
	if secret == "" {
		return "", errors.New("auth: mint: empty secret")
	}
	if spec.Role == "" {
		return "", errors.New("auth: mint: role is required")
	}
	if spec.TTL <= 0 {
		return "", fmt.Errorf("auth: mint: ttl %v must be positive", spec.TTL)
	}
	iat := spec.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}

	claims := Claims{
		Role: spec.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    spec.Issuer,
			Subject:   spec.Subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(spec.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: mint: %w", err)
	}
	return signed, nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying claims.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

// FromContext returns the claims stored by [Verifier.Middleware], if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}
