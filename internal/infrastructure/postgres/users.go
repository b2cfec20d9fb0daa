package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	constraintEmail = "users_email_key"
	constraintPhone = "idx_users_phone_unique"
	userColumns     = "id, email, phone_number, password_hash, first_name, last_name, role, email_verified, mobile_verified, created_at, updated_at"
)

// UserRepo implements the user directory store on PostgreSQL.
type UserRepo struct {
	db DB
}

func NewUserRepo(db DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		u.UserID,
		u.Email,
		u.PhoneNumber,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.Role,
		u.EmailVerified,
		u.MobileVerified,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, u.Email)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
}

func (r *UserRepo) UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error {
	query := `UPDATE users SET email_verified = $1, updated_at = now() WHERE email = $2`
	if channel == domain.ChannelMobile {
		query = `UPDATE users SET mobile_verified = $1, updated_at = now() WHERE email = $2`
	}
	ct, err := r.db.Exec(ctx, query, value, email)
	if err != nil {
		return fmt.Errorf("update verification status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.UserID,
		&u.Email,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.EmailVerified,
		&u.MobileVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// mapWriteError turns unique violations into the directory's uniqueness errors.
func mapWriteError(err error, email string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintPhone:
			return fmt.Errorf("create user %s: %w", email, domain.ErrPhoneTaken)
		case constraintEmail:
			return fmt.Errorf("create user %s: %w", email, domain.ErrEmailTaken)
		default:
			return fmt.Errorf("create user %s: %w", email, domain.ErrConflict)
		}
	}
	return fmt.Errorf("insert user: %w", err)
}
