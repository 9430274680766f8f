package domain

import "time"

// Challenge is one issued one-time code bound to a normalized email
// address. At most one challenge exists per email; issuing a new one
// supersedes whatever was there before.
type Challenge struct {
	Email           string
	Code            string
	GuestIdentityID int64 // 0 when the caller had no guest identity
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Verified        bool
	Attempts        int
}

// Expired reports whether the challenge is past its deadline at the
// given instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
