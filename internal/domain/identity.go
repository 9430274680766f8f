package domain

import "time"

// Identity is the durable account record a session token is bound to.
// Guest identities start with no email and IsAnonymous=true; verifying
// an email flips both fields.
type Identity struct {
	ID            int64
	Email         string // empty until an email has been verified
	EmailVerified bool
	IsAnonymous   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SigningKey stores the secret used to sign session tokens.
type SigningKey struct {
	ID        int64
	KID       string
	Secret    []byte
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
}
