package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks access tokens signed with the shared secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// VerifierOption configures a [Verifier].
type VerifierOption func(*Verifier)

// WithLeeway tolerates clock skew when checking exp and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a verifier for tokens signed with secret. When issuer
// is non-empty, the iss claim must match it.
func NewVerifier(secret, issuer string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: verifier: empty secret")
	}
	v := &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify parses token and returns its claims. Only HS256 is accepted; the
// token must carry an expiry and a role.
func (v *Verifier) Verify(token string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: token has no role", ErrUnauthorized)
	}
	return claims, nil
}

// Middleware rejects requests without a valid token with 401 and stores the
// verified claims in the request context. The token is read from the
// Authorization bearer header, falling back to the access_token query
// parameter because browsers cannot set headers on WebSocket upgrades.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			unauthorized(w, "missing access token")
			return
		}
		claims, err := v.Verify(token)
		if err != nil {
			slog.Debug("rejected access token", "path", r.URL.Path, "err", err)
			unauthorized(w, "invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), claims)))
	})
}

// TokenFromRequest extracts the raw token, or "" when none is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="meetscribe"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
