package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-cardlink-api/internal/application/claim"
	"github.com/go-cardlink-api/internal/application/session"
	"github.com/go-cardlink-api/internal/config"
	"github.com/go-cardlink-api/internal/domain"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct{}

func (stubClaims) Get(context.Context, string) (*domain.UsernameClaim, error) {
	return nil, domain.ErrNotFound
}

func (stubClaims) GetByUser(context.Context, string) (*domain.UsernameClaim, error) {
	return nil, domain.ErrNotFound
}

func (stubClaims) Claim(context.Context, *domain.UsernameClaim, string) error { return nil }

// memSessions keeps sessions in a map.
type memSessions struct {
	mu    sync.Mutex
	items map[string]domain.Session
}

func (m *memSessions) Put(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.SessionID] = *s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *memSessions) Disable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.items[id]
	s.Enable = false
	m.items[id] = s
	return nil
}

type stubUsers struct{}

func (stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{UserID: id, Email: id + "@example.com", Role: domain.RoleUser}, nil
}

type testRouter struct {
	http.Handler
	sessions session.Service
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)
	sessions := session.NewService(session.ServiceDeps{
		SessionRepo: &memSessions{items: map[string]domain.Session{}},
		Users:       stubUsers{},
		JWTProvider: p,
		Expiry:      time.Hour,
	})
	cfg := &config.Config{AllowedOrigins: []string{"*"}, SessionExpiry: time.Hour}
	return &testRouter{
		Handler: NewRouter(cfg, Services{
			Sessions: sessions,
			Claims:   claim.NewService(claim.ServiceDeps{ClaimRepo: stubClaims{}}),
		}, p),
		sessions: sessions,
	}
}

func bearer(method, path, token, body string) *http.Request {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestRouter_HealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pong")
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "go_goroutines"))
}

func TestRouter_ClaimAvailabilityIsPublic(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/claim-url/alice", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"available":true`)
}

func TestRouter_SessionRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/sessions/current"},
		{http.MethodPost, "/v1/sessions/logout"},
		{http.MethodPost, "/v1/claim-url"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, tc.path)
	}
}

func TestRouter_LogoutRevokesBearerToken(t *testing.T) {
	router := newTestRouter(t)
	token, _, err := router.sessions.Create(context.Background(), &domain.User{UserID: "u1", Email: "u1@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, bearer(http.MethodPost, "/v1/claim-url", token, `{"username":"alice"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, bearer(http.MethodPost, "/v1/sessions/logout", token, ""))
	require.Equal(t, http.StatusOK, rr.Code)

	for _, req := range []*http.Request{
		bearer(http.MethodPost, "/v1/claim-url", token, `{"username":"alice"}`),
		bearer(http.MethodGet, "/v1/sessions/current", token, ""),
	} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, req.URL.Path)
	}
}
