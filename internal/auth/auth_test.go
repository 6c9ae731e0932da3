package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/meetscribe/internal/auth"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters-long"

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func mint(t *testing.T, spec auth.KeySpec) string {
	t.Helper()
	if spec.Issuer == "" {
		spec.Issuer = "supabase"
	}
	if spec.IssuedAt.IsZero() {
		spec.IssuedAt = epoch
	}
	if spec.TTL == 0 {
		spec.TTL = time.Hour
	}
	tok, err := auth.Mint(secret, spec)
	require.NoError(t, err)
	return tok
}

func newVerifier(t *testing.T, at time.Time) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(secret, "supabase", auth.WithClock(fixedClock(at)))
	require.NoError(t, err)
	return v
}

func TestMintVerify_RoundTrip(t *testing.T) {
	tok := mint(t, auth.KeySpec{Role: auth.RoleAuthenticated, Subject: "user-42"})

	claims, err := newVerifier(t, epoch.Add(time.Minute)).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAuthenticated, claims.Role)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "user-42", claims.OwnerID())
	assert.Equal(t, "supabase", claims.Issuer)
	assert.False(t, claims.IsService())
	assert.Equal(t, epoch.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestMint_Validation(t *testing.T) {
	_, err := auth.Mint("", auth.KeySpec{Role: auth.RoleAnon, TTL: time.Hour})
	assert.Error(t, err)
	_, err = auth.Mint(secret, auth.KeySpec{TTL: time.Hour})
	assert.Error(t, err)
	_, err = auth.Mint(secret, auth.KeySpec{Role: auth.RoleAnon})
	assert.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	valid := auth.KeySpec{Role: auth.RoleAnon}

	otherSecret, err := auth.Mint("another-secret-that-is-also-32-chars-long!", auth.KeySpec{
		Role: auth.RoleAnon, Issuer: "supabase", IssuedAt: epoch, TTL: time.Hour,
	})
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.Claims{
		Role: auth.RoleAnon,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "supabase",
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role:             auth.RoleAnon,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "supabase"},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "supabase",
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"expired", mint(t, valid), epoch.Add(2 * time.Hour)},
		{"wrong issuer", mint(t, auth.KeySpec{Role: auth.RoleAnon, Issuer: "someone-else"}), epoch},
		{"wrong secret", otherSecret, epoch},
		{"hs512", hs512, epoch},
		{"no expiry", noExp, epoch},
		{"no role", noRole, epoch},
		{"garbage", "not.a.token", epoch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newVerifier(t, tc.at).Verify(tc.token)
			assert.ErrorIs(t, err, auth.ErrUnauthorized)
		})
	}
}

func TestVerify_Leeway(t *testing.T) {
	tok := mint(t, auth.KeySpec{Role: auth.RoleAnon})
	v, err := auth.NewVerifier(secret, "supabase",
		auth.WithClock(fixedClock(epoch.Add(time.Hour+10*time.Second))),
		auth.WithLeeway(30*time.Second))
	require.NoError(t, err)

	_, err = v.Verify(tok)
	assert.NoError(t, err)
}

func TestClaims_OwnerIDFallsBackToAnon(t *testing.T) {
	c := &auth.Claims{Role: auth.RoleAnon}
	assert.Equal(t, "anon", c.OwnerID())
	assert.True(t, (&auth.Claims{Role: auth.RoleService}).IsService())
}

func TestMiddleware(t *testing.T) {
	v := newVerifier(t, epoch)
	tok := mint(t, auth.KeySpec{Role: auth.RoleService})

	var seen *auth.Claims
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := auth.FromContext(r.Context())
		require.True(t, ok)
		seen = c
	}))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+tok) }, http.StatusOK},
		{"query parameter", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", tok)
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest("GET", "/v1/meetings", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, auth.RoleService, seen.Role)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}

func TestFromContext_Empty(t *testing.T) {
	_, ok := auth.FromContext(httptest.NewRequest("GET", "/", nil).Context())
	assert.False(t, ok)
}
