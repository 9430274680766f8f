// Package profile stores per-identity application data as one JSON
// document per identity, separate from the identity record itself.
package profile

import (
	"context"
	"errors"
)

// ErrNotFound signals that the identity has no profile document.
var ErrNotFound = errors.New("profile not found")

// Document is an arbitrary per-identity profile payload.
type Document map[string]any

// Repository persists profile documents. Merge and FillMissing differ
// only in precedence: Merge overwrites the listed fields, FillMissing
// keeps whatever the destination already has.
type Repository interface {
	Get(ctx context.Context, identityID int64) (Document, error)
	Merge(ctx context.Context, identityID int64, fields Document) error
	FillMissing(ctx context.Context, identityID int64, fields Document) error
	Delete(ctx context.Context, identityID int64) error
}
