package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserTestFixture(t *testing.T) (*UserRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewUserRepo(mock), mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	phone := "919876543210"
	return &domain.User{
		UserID:      "u-1",
		Email:       "asha@example.com",
		PhoneNumber: &phone,
		FirstName:   "Asha",
		LastName:    "Rao",
		Role:        domain.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "phone_number", "password_hash", "first_name", "last_name",
		"role", "email_verified", "mobile_verified", "created_at", "updated_at",
	}).AddRow(
		u.UserID, u.Email, u.PhoneNumber, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.EmailVerified, u.MobileVerified, u.CreatedAt, u.UpdatedAt,
	)
}

func createArgs(u *domain.User) []any {
	return []any{
		u.UserID, u.Email, u.PhoneNumber, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.EmailVerified, u.MobileVerified, u.CreatedAt, u.UpdatedAt,
	}
}

func TestBootstrap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, Bootstrap(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(createArgs(u)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_email_key", domain.ErrEmailTaken},
		{"idx_users_phone_unique", domain.ErrPhoneTaken},
		{"some_other_key", domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newUserTestFixture(t)
			defer mock.Close()
			u := sampleUser()

			mock.ExpectExec("INSERT INTO users").
				WithArgs(createArgs(u)...).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			err := repo.Create(context.Background(), u)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepo_Create_OtherError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(createArgs(u)...).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrEmailTaken)
	assert.NotErrorIs(t, err, domain.ErrPhoneTaken)
}

func TestUserRepo_GetByPhone(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()
	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE phone_number =").
		WithArgs("919876543210").
		WillReturnRows(userRow(u))

	got, err := repo.GetByPhone(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, "919876543210", *got.PhoneNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateVerificationStatus(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET mobile_verified").
		WithArgs(true, "asha@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateVerificationStatus(context.Background(), "asha@example.com", domain.ChannelMobile, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateVerificationStatus_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET email_verified").
		WithArgs(true, "gone@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateVerificationStatus(context.Background(), "gone@example.com", domain.ChannelEmail, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
