package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-cardlink-api/internal/application/otp"
	"github.com/go-cardlink-api/internal/domain"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
	"github.com/go-cardlink-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockOTPSvc struct{ mock.Mock }

func (m *mockOTPSvc) RequestCode(ctx context.Context, req domain.SendCodeRequest) (domain.Channel, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Channel), args.Error(1)
}

func (m *mockOTPSvc) Verify(ctx context.Context, req domain.VerifyCodeRequest) (*otp.Result, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*otp.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserSvc struct{ mock.Mock }

func (m *mockUserSvc) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	return m.user(m.Called(ctx, userID))
}

func (m *mockUserSvc) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *mockUserSvc) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return m.user(m.Called(ctx, phone))
}

func (m *mockUserSvc) UpsertByEmail(ctx context.Context, in domain.CreateUserInput) (*domain.User, error) {
	return m.user(m.Called(ctx, in))
}

func (m *mockUserSvc) UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error {
	return m.Called(ctx, email, channel, value).Error(0)
}

func (m *mockUserSvc) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	return m.user(m.Called(ctx, req))
}

func (m *mockUserSvc) CheckExists(ctx context.Context, req domain.CheckUserRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserSvc) user(args mock.Arguments) (*domain.User, error) {
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSessionSvc struct{ mock.Mock }

func (m *mockSessionSvc) Create(ctx context.Context, u *domain.User) (string, *domain.Session, error) {
	args := m.Called(ctx, u)
	s, _ := args.Get(1).(*domain.Session)
	return args.String(0), s, args.Error(2)
}

func (m *mockSessionSvc) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionSvc) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockClaimSvc struct{ mock.Mock }

func (m *mockClaimSvc) Available(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockClaimSvc) Claim(ctx context.Context, userID, username string) (*domain.UsernameClaim, error) {
	args := m.Called(ctx, userID, username)
	if c, _ := args.Get(0).(*domain.UsernameClaim); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwtinfra.NewProviderFromKeys(privKey, &privKey.PublicKey, 24*time.Hour)
}

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(b))
}

// cookieReq attaches a signed session cookie for userID/sessionID.
func cookieReq(t *testing.T, p *jwtinfra.Provider, r *http.Request, userID, sessionID string) *http.Request {
	t.Helper()
	token, err := p.Sign(userID, userID+"@example.com", domain.RoleUser, sessionID)
	require.NoError(t, err)
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	return r
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// liveSessions passes every session through the auth middleware so handler
// tests keep their own session expectations.
type liveSessions struct{}

func (liveSessions) GetCurrent(_ context.Context, id string) (*domain.Session, error) {
	return &domain.Session{SessionID: id, Enable: true}, nil
}

func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p, liveSessions{})(h).ServeHTTP(w, r)
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func ptr(s string) *string { return &s }
