// Package directory owns durable identity records and session token
// issuance. Callers branch on the sentinel errors below rather than
// inspecting error strings, so every outcome the resolver cares about
// is part of the contract.
package directory

import (
	"context"
	"errors"

	"github.com/platewise/auth/internal/domain"
)

var (
	// ErrIdentityNotFound signals that no identity matches the id or email.
	ErrIdentityNotFound = errors.New("directory: identity not found")
	// ErrEmailClaimed signals that the email already belongs to a
	// different identity.
	ErrEmailClaimed = errors.New("directory: email already claimed")
)

// Directory is the identity provider consumed by the resolver and the
// session endpoints.
type Directory interface {
	// Get loads an identity by id, or ErrIdentityNotFound.
	Get(ctx context.Context, id int64) (domain.Identity, error)
	// Create inserts a new non-anonymous identity with the email.
	// ErrEmailClaimed when the email is taken.
	Create(ctx context.Context, email string, verified bool) (domain.Identity, error)
	// CreateAnonymous inserts a guest identity with no email.
	CreateAnonymous(ctx context.Context) (domain.Identity, error)
	// Update sets the email on an existing identity, marking it
	// verified and non-anonymous. ErrIdentityNotFound when the id is
	// gone, ErrEmailClaimed when a different identity owns the email.
	Update(ctx context.Context, id int64, email string, verified bool) (domain.Identity, error)
	// FindByEmail loads an identity by email, or ErrIdentityNotFound.
	FindByEmail(ctx context.Context, email string) (domain.Identity, error)
	// IssueSessionToken mints an opaque session credential for the
	// identity.
	IssueSessionToken(ctx context.Context, identity domain.Identity) (string, error)
}
