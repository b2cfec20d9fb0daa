package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/id"
)

// Service issues and manages durable sessions.
type Service interface {
	Create(ctx context.Context, u *domain.User) (string, *domain.Session, error)
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
}

type userGetter interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
}

type jwtSigner interface {
	Sign(userID, email, role, sessionID string) (string, error)
}

type service struct {
	sessionRepo sessionStore
	users       userGetter
	jwtProvider jwtSigner
	expiry      time.Duration
	now         func() time.Time
}

type ServiceDeps struct {
	SessionRepo sessionStore
	Users       userGetter
	JWTProvider jwtSigner
	Expiry      time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		sessionRepo: deps.SessionRepo,
		users:       deps.Users,
		jwtProvider: deps.JWTProvider,
		expiry:      deps.Expiry,
		now:         time.Now,
	}
}

// Create persists a new session for u and returns its signed credential.
// A user may hold any number of concurrent sessions.
func (s *service) Create(ctx context.Context, u *domain.User) (string, *domain.Session, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID: id.New(),
		UserID:    u.UserID,
		Email:     u.Email,
		Role:      u.Role,
		Enable:    true,
		ExpiresAt: now.Add(s.expiry).Unix(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	token, err := s.jwtProvider.Sign(u.UserID, u.Email, u.Role, sess.SessionID)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	slog.Info("session issued", "user_id", u.UserID, "session_id", sess.SessionID)
	sess.User = u
	return token, sess, nil
}

func (s *service) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Enable || s.now().Unix() >= sess.ExpiresAt {
		return nil, fmt.Errorf("session inactive: %w", domain.ErrUnauthorized)
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	sess.User = u
	return sess, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Disable(ctx, sessionID)
}
