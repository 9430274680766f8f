package store

import (
	"context"
	"errors"

	"github.com/platewise/auth/internal/domain"
)

// ErrNotFound signals that no challenge exists for the email.
var ErrNotFound = errors.New("challenge not found")

// ChallengeStore persists outstanding one-time-code challenges, keyed
// by normalized email. Implementations must make IncrementAttempts
// atomic at the store level so the attempt cap holds under concurrent
// verify calls.
type ChallengeStore interface {
	// Get returns the challenge for the email regardless of its
	// verified state, or ErrNotFound.
	Get(ctx context.Context, email string) (domain.Challenge, error)
	// Replace deletes any existing challenge for the email and writes
	// the new one, guaranteeing at most one challenge per email.
	Replace(ctx context.Context, ch domain.Challenge) error
	// IncrementAttempts bumps the attempt counter by one and returns
	// the post-increment value, or ErrNotFound when the challenge is
	// gone.
	IncrementAttempts(ctx context.Context, email string) (int, error)
	// MarkVerified flips the verified flag, or returns ErrNotFound
	// when the challenge was deleted concurrently. It never recreates
	// a deleted challenge.
	MarkVerified(ctx context.Context, email string) error
	// Delete removes the challenge. Deleting a missing challenge is
	// not an error.
	Delete(ctx context.Context, email string) error
}
