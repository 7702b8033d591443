package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Account is an authentication record. The password is never stored in plaintext.
type Account struct {
	ID        uuid.UUID // PK, shared with profiles.id
	Email     string    // unique, lower-cased
	PwdHash   []byte    // Argon2id(password, Salt)
	Salt      []byte
	CreatedAt time.Time
}

// Session is the authenticated state handed to the client after sign-in.
type Session struct {
	UserID      uuid.UUID
	Email       string
	AccessToken string
	TokenID     string    // jti, used for revocation
	ExpiresAt   time.Time // access token expiry
}

// RegisterForm is the sign-up input, validated before any gateway call.
type RegisterForm struct {
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6,max=128"`
	ConfirmPassword string `validate:"required"`
	Username        string `validate:"required,username"`
}

// PasswordReset is a pending one-time reset ticket.
type PasswordReset struct {
	TokenHash []byte
	AccountID uuid.UUID
	ExpiresAt time.Time
	UsedAt    *time.Time
}
