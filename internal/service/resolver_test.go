package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platewise/auth/internal/domain"
	"github.com/platewise/auth/internal/store"
)

// seedChallenge plants a live challenge so verification exercises the
// resolution path directly.
func seedChallenge(t *testing.T, challenges store.ChallengeStore, email, code string) {
	t.Helper()
	now := time.Now()
	err := challenges.Replace(context.Background(), domain.Challenge{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	})
	require.NoError(t, err)
}

func TestResolveClaimsGuestInPlace(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, profiles, _ := newTestService(t)

	dir.seed(domain.Identity{ID: 42, IsAnonymous: true})
	profiles.seed(42, map[string]any{"units": "imperial"})
	seedChallenge(t, challenges, "a@x.com", "123456")

	result, err := svc.VerifyChallenge(ctx, "a@x.com", "123456", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), result.IdentityID)
	require.Equal(t, "session-42", result.Token)

	identity, ok := dir.get(42)
	require.True(t, ok)
	require.Equal(t, "a@x.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.False(t, identity.IsAnonymous)

	// The profile keeps what the guest accumulated and gains the
	// verified email stamp.
	doc, err := profiles.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "imperial", doc["units"])
	require.Equal(t, "a@x.com", doc["email"])
	require.Equal(t, true, doc["email_verified"])
	require.Equal(t, false, doc["is_anonymous"])
}

func TestResolveGuestGoneFallsBack(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, profiles, _ := newTestService(t)

	seedChallenge(t, challenges, "a@x.com", "123456")

	// Identity 999 was never created (or was purged). Sign-in proceeds
	// as if there were no guest at all.
	result, err := svc.VerifyChallenge(ctx, "a@x.com", "123456", 999)
	require.NoError(t, err)
	require.NotEqual(t, int64(999), result.IdentityID)

	identity, ok := dir.get(result.IdentityID)
	require.True(t, ok)
	require.Equal(t, "a@x.com", identity.Email)

	doc, err := profiles.Get(ctx, result.IdentityID)
	require.NoError(t, err)
	require.Equal(t, "metric", doc["units"])
	require.Equal(t, false, doc["onboarding_complete"])
}

func TestResolveEmailClaimedWinnerWins(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, profiles, _ := newTestService(t)

	dir.seed(domain.Identity{ID: 7, Email: "a@x.com", EmailVerified: true})
	profiles.seed(7, map[string]any{"units": "metric", "height_cm": 180})
	dir.seed(domain.Identity{ID: 42, IsAnonymous: true})
	profiles.seed(42, map[string]any{"units": "imperial", "theme": "dark"})
	seedChallenge(t, challenges, "a@x.com", "123456")

	result, err := svc.VerifyChallenge(ctx, "a@x.com", "123456", 42)
	require.NoError(t, err)
	require.Equal(t, int64(7), result.IdentityID)

	// The winner keeps its own fields, gains only what it was missing,
	// and the guest's document is gone.
	doc, err := profiles.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "metric", doc["units"])
	require.Equal(t, 180, doc["height_cm"])
	require.Equal(t, "dark", doc["theme"])
	require.False(t, profiles.has(42))

	// The guest identity still exists but stays anonymous.
	guest, ok := dir.get(42)
	require.True(t, ok)
	require.True(t, guest.IsAnonymous)
}

func TestResolveFindsExistingIdentity(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, _, _ := newTestService(t)

	dir.seed(domain.Identity{ID: 7, Email: "a@x.com", EmailVerified: true})
	seedChallenge(t, challenges, "a@x.com", "123456")

	result, err := svc.VerifyChallenge(ctx, "a@x.com", "123456", 0)
	require.NoError(t, err)
	require.Equal(t, int64(7), result.IdentityID)
	require.Len(t, dir.identities, 1)
}

func TestResolveCreatesIdentityWithBaselineProfile(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, profiles, _ := newTestService(t)

	seedChallenge(t, challenges, "new@x.com", "123456")

	result, err := svc.VerifyChallenge(ctx, "new@x.com", "123456", 0)
	require.NoError(t, err)

	identity, ok := dir.get(result.IdentityID)
	require.True(t, ok)
	require.Equal(t, "new@x.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.False(t, identity.IsAnonymous)

	doc, err := profiles.Get(ctx, result.IdentityID)
	require.NoError(t, err)
	require.Equal(t, "new@x.com", doc["email"])
	require.Equal(t, "metric", doc["units"])
	require.Equal(t, false, doc["onboarding_complete"])
}

func TestResolveProfileMergeFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	svc, challenges, dir, profiles, _ := newTestService(t)
	profiles.failFill = true

	dir.seed(domain.Identity{ID: 7, Email: "a@x.com", EmailVerified: true})
	dir.seed(domain.Identity{ID: 42, IsAnonymous: true})
	profiles.seed(42, map[string]any{"theme": "dark"})
	seedChallenge(t, challenges, "a@x.com", "123456")

	// Sign-in still succeeds with the winning identity; the guest's
	// document is left in place for a later pass.
	result, err := svc.VerifyChallenge(ctx, "a@x.com", "123456", 42)
	require.NoError(t, err)
	require.Equal(t, int64(7), result.IdentityID)
	require.NotEmpty(t, result.Token)
	require.True(t, profiles.has(42))
}
