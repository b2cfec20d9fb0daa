package otp

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-cardlink-api/internal/domain"
)

// memUsers is a user store that enforces email and phone uniqueness.
type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
	byPhone map[string]string
	creates int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*domain.User{}, byEmail: map[string]string{}, byPhone: map[string]string{}}
}

func (s *memUsers) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("create: %w", domain.ErrEmailTaken)
	}
	if u.PhoneNumber != nil {
		if _, ok := s.byPhone[*u.PhoneNumber]; ok {
			return fmt.Errorf("create: %w", domain.ErrPhoneTaken)
		}
		s.byPhone[*u.PhoneNumber] = u.UserID
	}
	cp := *u
	s.byID[u.UserID] = &cp
	s.byEmail[u.Email] = u.UserID
	s.creates++
	return nil
}

func (s *memUsers) Get(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	uid, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, uid)
}

func (s *memUsers) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	s.mu.Lock()
	uid, ok := s.byPhone[phone]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, uid)
}

func (s *memUsers) UpdateVerificationStatus(_ context.Context, email string, channel domain.Channel, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.byEmail[email]
	if !ok {
		return domain.ErrNotFound
	}
	if channel == domain.ChannelMobile {
		s.byID[uid].MobileVerified = value
	} else {
		s.byID[uid].EmailVerified = value
	}
	return nil
}

func (s *memUsers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// fakeProvider approves a code per phone format.
type fakeProvider struct {
	mu       sync.Mutex
	codes    map[string]string
	err      error
	startErr error
	checked  []string
	started  []string
}

func (p *fakeProvider) Check(_ context.Context, phone, code string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = append(p.checked, phone)
	if p.err != nil {
		return false, p.err
	}
	return p.codes[phone] == code, nil
}

func (p *fakeProvider) Start(_ context.Context, phone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, phone)
	return p.startErr
}

type fakeSessions struct {
	mu      sync.Mutex
	created []string
	err     error
}

func (f *fakeSessions) Create(_ context.Context, u *domain.User) (string, *domain.Session, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	f.mu.Lock()
	f.created = append(f.created, u.UserID)
	f.mu.Unlock()
	return "tok-" + u.UserID, &domain.Session{SessionID: "s-" + u.UserID, UserID: u.UserID, Enable: true, User: u}, nil
}

type fakeSMS struct {
	to, msg string
	err     error
}

func (f *fakeSMS) SendSMS(_ context.Context, to, msg string) error {
	f.to, f.msg = to, msg
	return f.err
}

type fakeMailer struct {
	to, subject, body string
	err               error
}

func (f *fakeMailer) SendEmail(to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

// brokenStore fails every read, simulating an unreachable backend.
type brokenStore struct{}

func (brokenStore) Set(context.Context, string, *domain.PendingVerification) error {
	return fmt.Errorf("connection refused")
}
func (brokenStore) Get(context.Context, string) (*domain.PendingVerification, error) {
	return nil, fmt.Errorf("connection refused")
}
func (brokenStore) Delete(context.Context, string) error { return nil }

// barrierStore holds the first n Gets until all n have read, so concurrent
// verifications observe the same pending record.
type barrierStore struct {
	CodeStore
	wg sync.WaitGroup
}

func newBarrierStore(inner CodeStore, n int) *barrierStore {
	b := &barrierStore{CodeStore: inner}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, id string) (*domain.PendingVerification, error) {
	rec, err := b.CodeStore.Get(ctx, id)
	b.wg.Done()
	b.wg.Wait()
	return rec, err
}
