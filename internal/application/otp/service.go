package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/identifier"
	"github.com/go-cardlink-api/internal/pkg/token"
)

const codeDigits = 6

// CodeStore holds at most one pending verification per identifier.
// Get returns the record whether or not it has expired and wraps
// domain.ErrNotFound when there is none. Delete of an absent record is a no-op.
type CodeStore interface {
	Set(ctx context.Context, identifier string, v *domain.PendingVerification) error
	Get(ctx context.Context, identifier string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, identifier string) error
}

// Provider is an external verification service for phone numbers.
// Check returns (false, nil) for a denied code and a non-nil error when the
// provider could not give an answer.
type Provider interface {
	Check(ctx context.Context, phone, code string) (bool, error)
	Start(ctx context.Context, phone string) error
}

type directory interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpsertByEmail(ctx context.Context, in domain.CreateUserInput) (*domain.User, error)
	UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error
}

type sessionIssuer interface {
	Create(ctx context.Context, u *domain.User) (string, *domain.Session, error)
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

// Result is a completed verification: the resolved user and a new session.
type Result struct {
	User    *domain.User
	Session *domain.Session
	Token   string
	Channel domain.Channel
}

type Service interface {
	RequestCode(ctx context.Context, req domain.SendCodeRequest) (domain.Channel, error)
	Verify(ctx context.Context, req domain.VerifyCodeRequest) (*Result, error)
}

type service struct {
	emailCodes        CodeStore
	phoneCodes        CodeStore
	provider          Provider
	users             directory
	sessions          sessionIssuer
	sms               smsSender
	mailer            mailer
	countryCode       string
	placeholderDomain string
	codeTTL           time.Duration
	now               func() time.Time
}

type ServiceDeps struct {
	EmailCodes CodeStore
	PhoneCodes CodeStore
	// Provider is nil when no external provider is configured.
	Provider               Provider
	Users                  directory
	Sessions               sessionIssuer
	SMS                    smsSender
	Mailer                 mailer
	DefaultCountryCode     string
	PlaceholderEmailDomain string
	CodeTTL                time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		emailCodes:        deps.EmailCodes,
		phoneCodes:        deps.PhoneCodes,
		provider:          deps.Provider,
		users:             deps.Users,
		sessions:          deps.Sessions,
		sms:               deps.SMS,
		mailer:            deps.Mailer,
		countryCode:       strings.TrimPrefix(deps.DefaultCountryCode, "+"),
		placeholderDomain: deps.PlaceholderEmailDomain,
		codeTTL:           deps.CodeTTL,
		now:               time.Now,
	}
}

// Verify validates a submitted code and, on success, resolves or creates the
// user, marks the channel verified and issues a session. Mobile takes
// precedence when both identifiers are present; the channel follows the
// submitted value itself, whichever field carried it.
func (s *service) Verify(ctx context.Context, req domain.VerifyCodeRequest) (*Result, error) {
	code := strings.TrimSpace(req.OTP)
	raw := pickIdentifier(req.Mobile, req.Email)
	channel := channelOf(raw)
	if code == "" || raw == "" {
		recordOutcome(channel, domain.ErrMissingInput)
		return nil, domain.ErrMissingInput
	}

	res, err := s.verify(ctx, channel, raw, code)
	recordOutcome(channel, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// pickIdentifier returns the trimmed mobile, or the trimmed email when no mobile was sent.
func pickIdentifier(mobile, email *string) string {
	if m := strings.TrimSpace(deref(mobile)); m != "" {
		return m
	}
	return strings.TrimSpace(deref(email))
}

func channelOf(raw string) domain.Channel {
	if identifier.Classify(raw) == identifier.KindEmail {
		return domain.ChannelEmail
	}
	return domain.ChannelMobile
}

func (s *service) verify(ctx context.Context, channel domain.Channel, raw, code string) (*Result, error) {
	var (
		u   *domain.User
		err error
	)
	if channel == domain.ChannelMobile {
		u, err = s.verifyPhone(ctx, raw, code)
	} else {
		u, err = s.verifyEmail(ctx, raw, code)
	}
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateVerificationStatus(ctx, u.Email, channel, true); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("update verification status: %w", err)
		}
		slog.Warn("verification status not updated, user vanished", "user_id", u.UserID, "channel", channel)
	}
	if channel == domain.ChannelMobile {
		u.MobileVerified = true
	} else {
		u.EmailVerified = true
	}

	tok, sess, err := s.sessions.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	slog.Info("otp verified", "user_id", u.UserID, "channel", channel)
	return &Result{User: u, Session: sess, Token: tok, Channel: channel}, nil
}

func (s *service) verifyEmail(ctx context.Context, raw, code string) (*domain.User, error) {
	email := identifier.NormalizeEmail(raw)
	rec, err := s.consumeLocal(ctx, s.emailCodes, []string{email}, code)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if rec.UserData == nil {
		return nil, domain.ErrUserNotFound
	}
	in := domain.CreateUserInput{
		Email:         email,
		FirstName:     rec.UserData.FirstName,
		LastName:      rec.UserData.LastName,
		Role:          domain.RoleUser,
		EmailVerified: true,
	}
	if p := identifier.CleanPhone(rec.UserData.Phone); p != "" {
		in.PhoneNumber = &p
	}
	return s.createUser(ctx, in)
}

func (s *service) verifyPhone(ctx context.Context, raw, code string) (*domain.User, error) {
	candidates := identifier.PhoneCandidates(raw, s.countryCode)
	if len(candidates) == 0 {
		return nil, domain.ErrMissingInput
	}

	var (
		matched  string
		userData *domain.PendingUserData
	)
	if approved := s.checkProvider(ctx, candidates, code); approved != "" {
		matched = approved
		userData = s.releaseLocal(ctx, candidates)
	} else {
		rec, err := s.consumeLocal(ctx, s.phoneCodes, candidates, code)
		if err != nil {
			return nil, err
		}
		matched = rec.Identifier
		userData = rec.UserData
	}

	for _, c := range candidates {
		u, err := s.users.GetByPhone(ctx, c)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup user by phone: %w", err)
		}
	}
	if userData == nil {
		slog.Info("no user for any phone format and no registration data", "candidates", candidates)
		return nil, domain.ErrUserNotFound
	}

	email := identifier.NormalizeEmail(userData.Email)
	if email == "" {
		email = s.placeholderEmail(matched)
	}
	return s.createUser(ctx, domain.CreateUserInput{
		Email:          email,
		FirstName:      userData.FirstName,
		LastName:       userData.LastName,
		PhoneNumber:    &matched,
		Role:           domain.RoleUser,
		MobileVerified: true,
	})
}

// checkProvider tries every candidate with the provider and returns the first
// approved one. Provider errors are logged and never end the verification.
func (s *service) checkProvider(ctx context.Context, candidates []string, code string) string {
	if s.provider == nil {
		return ""
	}
	for _, c := range candidates {
		ok, err := s.provider.Check(ctx, c, code)
		if err != nil {
			slog.Warn("provider check failed", "phone", c, "err", err)
			continue
		}
		if ok {
			return c
		}
	}
	slog.Info("provider did not approve any phone format, using local codes")
	return ""
}

// consumeLocal validates code against the first stored record found across
// candidates. An expired record is deleted; a mismatched one is kept so the
// user can retry; a matching one is marked verified and then removed.
func (s *service) consumeLocal(ctx context.Context, store CodeStore, candidates []string, code string) (*domain.PendingVerification, error) {
	rec, err := findRecord(ctx, store, candidates)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		if err := store.Delete(ctx, rec.Identifier); err != nil {
			slog.Warn("could not delete expired code", "identifier", rec.Identifier, "err", err)
		}
		return nil, domain.ErrCodeExpired
	}
	if rec.Code != code {
		return nil, domain.ErrCodeMismatch
	}
	rec.Verified = true
	if err := store.Set(ctx, rec.Identifier, rec); err != nil {
		return nil, fmt.Errorf("mark code verified: %w", err)
	}
	if err := store.Delete(ctx, rec.Identifier); err != nil {
		return nil, fmt.Errorf("delete used code: %w", err)
	}
	return rec, nil
}

// releaseLocal removes the local record left behind by a provider-approved
// verification and returns its registration data, if any.
func (s *service) releaseLocal(ctx context.Context, candidates []string) *domain.PendingUserData {
	rec, err := findRecord(ctx, s.phoneCodes, candidates)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCodeFound) {
			slog.Warn("could not read local code after provider approval", "err", err)
		}
		return nil
	}
	if err := s.phoneCodes.Delete(ctx, rec.Identifier); err != nil {
		slog.Warn("could not delete local code after provider approval", "identifier", rec.Identifier, "err", err)
	}
	return rec.UserData
}

func findRecord(ctx context.Context, store CodeStore, candidates []string) (*domain.PendingVerification, error) {
	for _, c := range candidates {
		rec, err := store.Get(ctx, c)
		if err == nil {
			rec.Identifier = c
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("read verification code: %w", err)
		}
	}
	return nil, domain.ErrNoCodeFound
}

func (s *service) createUser(ctx context.Context, in domain.CreateUserInput) (*domain.User, error) {
	u, err := s.users.UpsertByEmail(ctx, in)
	if err != nil {
		slog.Error("user creation failed", "email", in.Email, "err", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrUserCreationFailed, err)
	}
	return u, nil
}

// placeholderEmail derives a stable address for phone-first sign-ups so that
// a retried verification finds the account created by the first attempt.
func (s *service) placeholderEmail(phone string) string {
	digits := strings.TrimLeft(strings.TrimLeft(phone, `\`), "+")
	return "phone-" + digits + "@" + s.placeholderDomain
}

// RequestCode issues a new code for the email or mobile in req, replacing any
// pending one, and delivers it.
func (s *service) RequestCode(ctx context.Context, req domain.SendCodeRequest) (domain.Channel, error) {
	raw := pickIdentifier(req.Mobile, req.Email)
	if raw == "" {
		return "", fmt.Errorf("email or mobile is required: %w", domain.ErrBadRequest)
	}
	var mobile, email string
	if channelOf(raw) == domain.ChannelEmail {
		email = identifier.NormalizeEmail(raw)
	} else {
		mobile = identifier.CleanPhone(raw)
	}

	code, err := token.NewNumericCode(codeDigits)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	rec := &domain.PendingVerification{
		Code:      code,
		ExpiresAt: now.Add(s.codeTTL).Unix(),
		UserData:  req.UserData,
		CreatedAt: now,
	}

	if mobile != "" {
		rec.Identifier = mobile
		if err := s.phoneCodes.Set(ctx, mobile, rec); err != nil {
			return "", fmt.Errorf("store phone code: %w", err)
		}
		if err := s.deliverSMS(ctx, mobile, code); err != nil {
			return "", err
		}
		return domain.ChannelMobile, nil
	}

	rec.Identifier = email
	if err := s.emailCodes.Set(ctx, email, rec); err != nil {
		return "", fmt.Errorf("store email code: %w", err)
	}
	if err := s.mailer.SendEmail(email, "Your verification code", emailBody(code, s.codeTTL)); err != nil {
		recordIssued(domain.ChannelEmail, "failed")
		return "", fmt.Errorf("send verification email: %w", err)
	}
	recordIssued(domain.ChannelEmail, "smtp")
	slog.Info("verification code sent", "channel", domain.ChannelEmail, "email", email)
	return domain.ChannelEmail, nil
}

// deliverSMS prefers the provider and falls back to sending the local code by SMS.
func (s *service) deliverSMS(ctx context.Context, phone, code string) error {
	to := s.e164(phone)
	if s.provider != nil {
		err := s.provider.Start(ctx, to)
		if err == nil {
			recordIssued(domain.ChannelMobile, "provider")
			slog.Info("verification started with provider", "phone", to)
			return nil
		}
		slog.Warn("provider start failed, sending local code", "phone", to, "err", err)
	}
	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, ttlMinutes(s.codeTTL))
	if err := s.sms.SendSMS(ctx, to, msg); err != nil {
		recordIssued(domain.ChannelMobile, "failed")
		return fmt.Errorf("send verification sms: %w", err)
	}
	recordIssued(domain.ChannelMobile, "sms")
	slog.Info("verification code sent", "channel", domain.ChannelMobile, "phone", to)
	return nil
}

// e164 adds the default country code to national numbers.
func (s *service) e164(phone string) string {
	p := strings.TrimLeft(phone, `\`)
	if strings.HasPrefix(p, "+") {
		return p
	}
	if len(p) == 10 && s.countryCode != "" {
		return "+" + s.countryCode + p
	}
	return "+" + p
}

func emailBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is %s.\r\n\r\nIt expires in %d minutes. If you did not request it, you can ignore this email.", code, ttlMinutes(ttl))
}

func ttlMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
