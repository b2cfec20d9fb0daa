package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwtinfra.NewProviderFromKeys(privKey, &privKey.PublicKey, 24*time.Hour)
}

// liveSessions treats every session as active.
type liveSessions struct{}

func (liveSessions) GetCurrent(_ context.Context, id string) (*domain.Session, error) {
	return &domain.Session{SessionID: id, Enable: true}, nil
}

type sessionErr struct{ err error }

func (s sessionErr) GetCurrent(context.Context, string) (*domain.Session, error) {
	return nil, s.err
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func captureClaims(got **jwtinfra.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingCredential(t *testing.T) {
	p := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Auth(p, liveSessions{})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestAuth_BadToken(t *testing.T) {
	p := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rr := httptest.NewRecorder()
	Auth(p, liveSessions{})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := &jwtinfra.Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privKey)
	require.NoError(t, err)

	p := jwtinfra.NewProviderFromKeys(privKey, &privKey.PublicKey, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(p, liveSessions{})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_BearerInjectsClaims(t *testing.T) {
	p := newTestProvider(t)
	signed, err := p.Sign("u1", "a@x.com", "user", "sess1")
	require.NoError(t, err)

	var got *jwtinfra.Claims
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(p, liveSessions{})(captureClaims(&got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "sess1", got.SessionID)
	assert.Equal(t, "user", got.Role)
}

func TestAuth_CookieTakesPrecedence(t *testing.T) {
	p := newTestProvider(t)
	fromCookie, err := p.Sign("cookie-user", "c@x.com", "user", "s-cookie")
	require.NoError(t, err)

	var got *jwtinfra.Claims
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: fromCookie})
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	Auth(p, liveSessions{})(captureClaims(&got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, "cookie-user", got.UserID)
}

func TestAuth_InactiveSessionRejected(t *testing.T) {
	p := newTestProvider(t)
	signed, err := p.Sign("u1", "a@x.com", "user", "sess1")
	require.NoError(t, err)

	for name, checkErr := range map[string]error{
		"logged out": fmt.Errorf("session inactive: %w", domain.ErrUnauthorized),
		"missing":    fmt.Errorf("session not found: %w", domain.ErrNotFound),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+signed)
			rr := httptest.NewRecorder()
			Auth(p, sessionErr{checkErr})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestAuth_SessionLookupFailure(t *testing.T) {
	p := newTestProvider(t)
	signed, err := p.Sign("u1", "a@x.com", "user", "sess1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(p, sessionErr{errors.New("dynamo down")})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
