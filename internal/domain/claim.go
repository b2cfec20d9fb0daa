package domain

import "time"

// UsernameClaim reserves a custom profile URL for one user.
type UsernameClaim struct {
	Username  string    `json:"username" dynamodbav:"username"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

type ClaimUsernameRequest struct {
	Username string `json:"username" validate:"required,username"`
}
