package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-cardlink-api/internal/domain"
)

// CodeStore is an in-process verification store. Records are purged by a
// background sweep once retention has passed after their expiry.
type CodeStore struct {
	mu        sync.RWMutex
	records   map[string]domain.PendingVerification
	retention time.Duration
	now       func() time.Time
}

func NewCodeStore(retention time.Duration) *CodeStore {
	return &CodeStore{
		records:   make(map[string]domain.PendingVerification),
		retention: retention,
		now:       time.Now,
	}
}

func (s *CodeStore) Set(_ context.Context, identifier string, v *domain.PendingVerification) error {
	rec := *v
	rec.Identifier = identifier
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid verification record: %w", err)
	}
	if rec.UserData != nil {
		ud := *rec.UserData
		rec.UserData = &ud
	}
	s.mu.Lock()
	s.records[identifier] = rec
	s.mu.Unlock()
	return nil
}

func (s *CodeStore) Get(_ context.Context, identifier string) (*domain.PendingVerification, error) {
	s.mu.RLock()
	rec, ok := s.records[identifier]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	return &rec, nil
}

func (s *CodeStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	delete(s.records, identifier)
	s.mu.Unlock()
	return nil
}

// Run sweeps purgeable records every interval until ctx is cancelled.
func (s *CodeStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *CodeStore) sweep() int {
	cutoff := s.now().Add(-s.retention).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.ExpiresAt <= cutoff {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}
