package token

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/platewise/auth/internal/domain"
)

// memoryKeyRepo keeps its keys newest first, like the Postgres repo.
type memoryKeyRepo struct {
	keys []domain.SigningKey
}

func (r *memoryKeyRepo) ActiveKeys(ctx context.Context) ([]domain.SigningKey, error) {
	out := make([]domain.SigningKey, len(r.keys))
	copy(out, r.keys)
	return out, nil
}

func (r *memoryKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	key.ID = int64(len(r.keys) + 1)
	r.keys = append([]domain.SigningKey{key}, r.keys...)
	return key, nil
}

func newTestIssuer(ttl time.Duration) (*Issuer, *memoryKeyRepo) {
	repo := &memoryKeyRepo{}
	return NewIssuer(NewKeyManager(repo), ttl, "platewise-auth"), repo
}

func TestIssueCreatesKeyOnFirstUse(t *testing.T) {
	ctx := context.Background()
	issuer, repo := newTestIssuer(time.Hour)

	require.Empty(t, repo.keys)
	token, err := issuer.Issue(ctx, domain.Identity{ID: 7, Email: "a@x.com", EmailVerified: true})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.Len(t, repo.keys, 1)
	require.Equal(t, "HS256", repo.keys[0].Algorithm)
	require.Len(t, repo.keys[0].Secret, 64)
	require.NotEmpty(t, repo.keys[0].KID)
}

func TestValidateAcceptsTokenFromOlderActiveKey(t *testing.T) {
	ctx := context.Background()
	repo := &memoryKeyRepo{}
	issuer := NewIssuer(NewKeyManager(repo), time.Hour, "platewise-auth")

	oldToken, err := issuer.Issue(ctx, domain.Identity{ID: 7, Email: "a@x.com"})
	require.NoError(t, err)

	// A racing first boot can mint a second active key. New tokens use
	// the newer key; sessions signed by the older one must stay valid.
	secret := make([]byte, 64)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	newer, err := repo.CreateKey(ctx, domain.SigningKey{
		KID:       "newer",
		Secret:    secret,
		Algorithm: "HS256",
		IsActive:  true,
	})
	require.NoError(t, err)

	std, _, err := issuer.Validate(ctx, oldToken)
	require.NoError(t, err)
	require.Equal(t, "7", std.Subject)

	newToken, err := issuer.Issue(ctx, domain.Identity{ID: 8})
	require.NoError(t, err)
	parsed, err := gojwt.ParseSigned(newToken, []gojose.SignatureAlgorithm{gojose.HS256})
	require.NoError(t, err)
	require.Equal(t, newer.KID, parsed.Headers[0].KeyID)
	std, _, err = issuer.Validate(ctx, newToken)
	require.NoError(t, err)
	require.Equal(t, "8", std.Subject)
}

func TestIssueValidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(time.Hour)

	identity := domain.Identity{ID: 42, Email: "a@x.com", EmailVerified: true}
	token, err := issuer.Issue(ctx, identity)
	require.NoError(t, err)

	std, custom, err := issuer.Validate(ctx, token)
	require.NoError(t, err)

	id, err := SubjectID(std)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.Equal(t, "a@x.com", custom.Email)
	require.True(t, custom.EmailVerified)
	require.False(t, custom.IsAnonymous)
}

func TestValidateAnonymousClaims(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(time.Hour)

	token, err := issuer.Issue(ctx, domain.Identity{ID: 9, IsAnonymous: true})
	require.NoError(t, err)

	std, custom, err := issuer.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "9", std.Subject)
	require.True(t, custom.IsAnonymous)
	require.Empty(t, custom.Email)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(time.Hour)

	token, err := issuer.Issue(ctx, domain.Identity{ID: 7})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, _, err = issuer.Validate(ctx, tampered)
	require.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(-time.Minute)

	token, err := issuer.Issue(ctx, domain.Identity{ID: 7})
	require.NoError(t, err)

	_, _, err = issuer.Validate(ctx, token)
	require.Error(t, err)
}

func TestValidateRejectsForeignIssuer(t *testing.T) {
	ctx := context.Background()
	repo := &memoryKeyRepo{}
	keys := NewKeyManager(repo)
	other := NewIssuer(keys, time.Hour, "someone-else")
	ours := NewIssuer(keys, time.Hour, "platewise-auth")

	token, err := other.Issue(ctx, domain.Identity{ID: 7})
	require.NoError(t, err)

	_, _, err = ours.Validate(ctx, token)
	require.Error(t, err)
}

func TestSubjectIDRejectsNonNumericSubject(t *testing.T) {
	issuer, _ := newTestIssuer(time.Hour)
	token, err := issuer.Issue(context.Background(), domain.Identity{ID: 7})
	require.NoError(t, err)

	std, _, err := issuer.Validate(context.Background(), token)
	require.NoError(t, err)

	std.Subject = "not-a-number"
	_, err = SubjectID(std)
	require.Error(t, err)
}
