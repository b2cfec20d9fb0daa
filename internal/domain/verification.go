package domain

import "time"

// PendingVerification is the single live one-time code for an identifier.
// PK: identifier (normalized email or phone). ExpiresAt is a Unix timestamp also used as the store TTL anchor.
type PendingVerification struct {
	Identifier string           `json:"identifier" dynamodbav:"identifier"`
	Code       string           `json:"code" dynamodbav:"code"`
	ExpiresAt  int64            `json:"expires_at" dynamodbav:"expires_at"`
	Verified   bool             `json:"verified" dynamodbav:"verified"`
	UserData   *PendingUserData `json:"user_data,omitempty" dynamodbav:"user_data,omitempty"`
	CreatedAt  time.Time        `json:"created" dynamodbav:"created_at"`
}

// PendingUserData is registration data captured when a code is issued and
// consumed only if no account exists at verification time.
type PendingUserData struct {
	FirstName string `json:"first_name" dynamodbav:"first_name"`
	LastName  string `json:"last_name" dynamodbav:"last_name"`
	Email     string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone     string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Plan      string `json:"plan,omitempty" dynamodbav:"plan,omitempty"`
}

// Expired reports whether the code can no longer be used at now.
func (v *PendingVerification) Expired(now time.Time) bool {
	return now.Unix() >= v.ExpiresAt
}

// Validate checks the fields every stored record must carry.
func (v *PendingVerification) Validate() error {
	if v.Identifier == "" {
		return ErrBadRequest
	}
	if v.ExpiresAt == 0 {
		return ErrBadRequest
	}
	return nil
}

type SendCodeRequest struct {
	Email    *string          `json:"email"`
	Mobile   *string          `json:"mobile"`
	UserData *PendingUserData `json:"user_data"`
}

type VerifyCodeRequest struct {
	Email  *string `json:"email"`
	Mobile *string `json:"mobile"`
	OTP    string  `json:"otp"`
}
