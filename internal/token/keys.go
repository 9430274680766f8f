package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/platewise/auth/internal/domain"
)

// ErrNoActiveKey signals that no signing key exists yet.
var ErrNoActiveKey = errors.New("no active signing key")

// KeyRepository stores signing keys.
type KeyRepository interface {
	// ActiveKeys returns every active key, newest first. Racing
	// bootstraps can leave more than one; validation must accept
	// tokens signed by any of them.
	ActiveKeys(ctx context.Context) ([]domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}

// KeyManager ensures there is always an active signing key.
type KeyManager struct {
	repo KeyRepository
}

// NewKeyManager creates a KeyManager.
func NewKeyManager(repo KeyRepository) *KeyManager {
	return &KeyManager{repo: repo}
}

// EnsureSigningKey returns the newest active key or creates one if
// none exists.
func (m *KeyManager) EnsureSigningKey(ctx context.Context) (domain.SigningKey, error) {
	keys, err := m.repo.ActiveKeys(ctx)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("ensure signing key: %w", err)
	}
	if len(keys) > 0 {
		return keys[0], nil
	}

	secret := make([]byte, 64)
	if _, randErr := rand.Read(secret); randErr != nil {
		return domain.SigningKey{}, fmt.Errorf("generate secret: %w", randErr)
	}

	key := domain.SigningKey{
		KID:       uuid.NewString(),
		Secret:    secret,
		Algorithm: string(jose.HS256),
		IsActive:  true,
	}

	created, err := m.repo.CreateKey(ctx, key)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("persist signing key: %w", err)
	}
	return created, nil
}

// ActiveKeys retrieves the existing signing keys without creating any,
// newest first. ErrNoActiveKey when there are none.
func (m *KeyManager) ActiveKeys(ctx context.Context) ([]domain.SigningKey, error) {
	keys, err := m.repo.ActiveKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("active keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNoActiveKey
	}
	return keys, nil
}
