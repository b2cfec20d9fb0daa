package domain

import "time"

type User struct {
	UserID         string    `json:"id" dynamodbav:"user_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	PhoneNumber    *string   `json:"phone_number" dynamodbav:"phone_number"`
	PasswordHash   string    `json:"-" dynamodbav:"password_hash,omitempty"`
	FirstName      string    `json:"first_name" dynamodbav:"first_name"`
	LastName       string    `json:"last_name" dynamodbav:"last_name"`
	Role           string    `json:"role" dynamodbav:"role"`
	EmailVerified  bool      `json:"email_verified" dynamodbav:"email_verified"`
	MobileVerified bool      `json:"mobile_verified" dynamodbav:"mobile_verified"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// CreateUserInput carries the fields accepted when a directory record is created.
// Email must already be normalized.
type CreateUserInput struct {
	Email          string
	FirstName      string
	LastName       string
	PhoneNumber    *string
	PasswordHash   string
	Role           string
	EmailVerified  bool
	MobileVerified bool
}

type RegisterRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     *string `json:"phone"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
}

type CheckUserRequest struct {
	Email  *string `json:"email"`
	Mobile *string `json:"mobile"`
}

// Channel names a verification channel on a user account.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
)
