package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-cardlink-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SafeUser is the public projection of a directory record.
type SafeUser struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	PhoneNumber   *string `json:"phone_number"`
	EmailVerified bool    `json:"email_verified"`
	Role          string  `json:"role"`
}

// VerifyEnvelope is returned after a code is accepted and a session issued.
type VerifyEnvelope struct {
	Success  bool      `json:"success"`
	Verified bool      `json:"verified"`
	Message  string    `json:"message"`
	User     *SafeUser `json:"user"`
}

// SendCodeEnvelope acknowledges that a code was issued.
type SendCodeEnvelope struct {
	Success bool           `json:"success"`
	Channel domain.Channel `json:"channel"`
	Message string         `json:"message"`
}

// CheckUserEnvelope reports whether an account exists.
type CheckUserEnvelope struct {
	Success bool   `json:"success"`
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// UserEnvelope wraps a single user with a status message.
type UserEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	User    *SafeUser `json:"user"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session"`
	User    *SafeUser       `json:"user,omitempty"`
}

// ClaimEnvelope reports username availability or a completed claim.
type ClaimEnvelope struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	Available *bool  `json:"available,omitempty"`
	Message   string `json:"message,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		ID:            u.UserID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		PhoneNumber:   u.PhoneNumber,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
