package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/validate"
)

// Service reserves custom profile URLs.
type Service interface {
	Available(ctx context.Context, username string) (bool, error)
	Claim(ctx context.Context, userID, username string) (*domain.UsernameClaim, error)
}

type claimStore interface {
	Get(ctx context.Context, username string) (*domain.UsernameClaim, error)
	GetByUser(ctx context.Context, userID string) (*domain.UsernameClaim, error)
	Claim(ctx context.Context, c *domain.UsernameClaim, previous string) error
}

type service struct {
	repo claimStore
}

type ServiceDeps struct {
	ClaimRepo claimStore
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.ClaimRepo}
}

func normalize(username string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if err := validate.Username(name); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	return name, nil
}

func (s *service) Available(ctx context.Context, username string) (bool, error) {
	name, err := normalize(username)
	if err != nil {
		return false, err
	}
	_, err = s.repo.Get(ctx, name)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	return false, fmt.Errorf("lookup username: %w", err)
}

// Claim reserves username for userID, releasing any name the user held before.
// Claiming a name the user already holds returns the existing claim.
func (s *service) Claim(ctx context.Context, userID, username string) (*domain.UsernameClaim, error) {
	name, err := normalize(username)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, name)
	switch {
	case err == nil && existing.UserID == userID:
		return existing, nil
	case err == nil:
		return nil, fmt.Errorf("username %s is already taken: %w", name, domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup username: %w", err)
	}

	var previous string
	prev, err := s.repo.GetByUser(ctx, userID)
	if err == nil {
		previous = prev.Username
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup current username: %w", err)
	}

	c := &domain.UsernameClaim{Username: name, UserID: userID, CreatedAt: time.Now().UTC()}
	if err := s.repo.Claim(ctx, c, previous); err != nil {
		return nil, err
	}
	slog.Info("username claimed", "user_id", userID, "username", name, "previous", previous)
	return c, nil
}
