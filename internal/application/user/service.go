package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/id"
	"github.com/go-cardlink-api/internal/pkg/identifier"
	"golang.org/x/crypto/bcrypt"
)

// Service is the user directory: lookups, race-safe creation and verification flags.
type Service interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpsertByEmail(ctx context.Context, in domain.CreateUserInput) (*domain.User, error)
	UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	CheckExists(ctx context.Context, req domain.CheckUserRequest) (bool, error)
}

// userStore is implemented by the DynamoDB and PostgreSQL backends. Create must
// report uniqueness violations as domain.ErrEmailTaken or domain.ErrPhoneTaken.
type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error
}

type service struct {
	repo               userStore
	defaultCountryCode string
}

type ServiceDeps struct {
	UserRepo           userStore
	DefaultCountryCode string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:               deps.UserRepo,
		defaultCountryCode: deps.DefaultCountryCode,
	}
}

func (s *service) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, identifier.NormalizeEmail(email))
}

func (s *service) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return s.repo.GetByPhone(ctx, phone)
}

// UpsertByEmail returns the user owning in.Email, creating it when absent.
// An existing record is never modified. When a concurrent request wins the
// race on the phone or the email, the winner's record is returned.
func (s *service) UpsertByEmail(ctx context.Context, in domain.CreateUserInput) (*domain.User, error) {
	email := identifier.NormalizeEmail(in.Email)
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		slog.Info("existing user data preserved", "user_id", existing.UserID, "email", email)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	role := in.Role
	if !domain.ValidRole(role) {
		role = domain.RoleUser
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:         id.New(),
		Email:          email,
		PhoneNumber:    in.PhoneNumber,
		PasswordHash:   in.PasswordHash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Role:           role,
		EmailVerified:  in.EmailVerified,
		MobileVerified: in.MobileVerified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.repo.Create(ctx, u)
	switch {
	case err == nil:
		slog.Info("user created", "user_id", u.UserID, "email", email)
		return u, nil
	case errors.Is(err, domain.ErrPhoneTaken) && u.PhoneNumber != nil:
		owner, gerr := s.repo.GetByPhone(ctx, *u.PhoneNumber)
		if gerr != nil {
			return nil, fmt.Errorf("resolve phone owner: %w", gerr)
		}
		slog.Info("phone already registered, using existing user", "user_id", owner.UserID)
		return owner, nil
	case errors.Is(err, domain.ErrEmailTaken):
		winner, gerr := s.repo.GetByEmail(ctx, email)
		if gerr != nil {
			return nil, fmt.Errorf("re-read user after email race: %w", gerr)
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("create user: %w", err)
	}
}

func (s *service) UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error {
	return s.repo.UpdateVerificationStatus(ctx, identifier.NormalizeEmail(email), channel, value)
}

// Register creates an unverified account. Existing email or phone yields
// domain.ErrEmailTaken or domain.ErrPhoneTaken.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := identifier.NormalizeEmail(req.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("register %s: %w", email, domain.ErrEmailTaken)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	var phone *string
	if req.Phone != nil && identifier.CleanPhone(*req.Phone) != "" {
		taken, err := s.phoneExists(ctx, *req.Phone)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("register %s: %w", email, domain.ErrPhoneTaken)
		}
		cleaned := identifier.CleanPhone(*req.Phone)
		phone = &cleaned
	}

	var hash string
	if req.Password != nil && *req.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(b)
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return u, nil
}

// CheckExists reports whether an account exists for the given email or mobile.
// The mobile is matched across its equivalent formats.
func (s *service) CheckExists(ctx context.Context, req domain.CheckUserRequest) (bool, error) {
	switch {
	case req.Email != nil && *req.Email != "":
		_, err := s.repo.GetByEmail(ctx, identifier.NormalizeEmail(*req.Email))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup user by email: %w", err)
	case req.Mobile != nil && *req.Mobile != "":
		return s.phoneExists(ctx, *req.Mobile)
	default:
		return false, fmt.Errorf("email or mobile is required: %w", domain.ErrBadRequest)
	}
}

func (s *service) phoneExists(ctx context.Context, raw string) (bool, error) {
	for _, c := range identifier.PhoneCandidates(raw, s.defaultCountryCode) {
		_, err := s.repo.GetByPhone(ctx, c)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return false, fmt.Errorf("lookup user by phone: %w", err)
		}
	}
	return false, nil
}
