package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/platewise/auth/internal/directory"
	"github.com/platewise/auth/internal/domain"
	"github.com/platewise/auth/internal/profile"
)

// resolve maps a verified email (plus optional guest identity) to
// exactly one durable identity and mints a session token for it.
//
// With a guest reference the order is: claim the guest in place; if the
// guest is gone, fall back to the email; if the email belongs to a
// different identity, that identity wins and the guest's profile is
// merged into it. Without a guest reference it is plain find-or-create.
func (s *AuthService) resolve(ctx context.Context, email string, guestIdentityID int64) (domain.Identity, string, error) {
	var (
		identity domain.Identity
		err      error
	)
	if guestIdentityID != 0 {
		identity, err = s.resolveWithGuest(ctx, email, guestIdentityID)
	} else {
		identity, err = s.findOrCreate(ctx, email)
	}
	if err != nil {
		return domain.Identity{}, "", err
	}

	// Best effort: the identity link is authoritative, the profile
	// stamp is not. A failure here leaves the profile behind the
	// identity record until the next write.
	s.stampProfile(ctx, identity.ID, email)

	sessionToken, err := s.directory.IssueSessionToken(ctx, identity)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return identity, sessionToken, nil
}

func (s *AuthService) resolveWithGuest(ctx context.Context, email string, guestIdentityID int64) (domain.Identity, error) {
	identity, err := s.directory.Update(ctx, guestIdentityID, email, true)
	switch {
	case err == nil:
		// The guest identity itself became the durable identity.
		return identity, nil

	case errors.Is(err, directory.ErrIdentityNotFound):
		// The guest is gone; the user is effectively signing back in.
		return s.findOrCreate(ctx, email)

	case errors.Is(err, directory.ErrEmailClaimed):
		// The other identity wins; fold the guest's profile into it.
		winner, ferr := s.directory.FindByEmail(ctx, email)
		if ferr != nil {
			return domain.Identity{}, fmt.Errorf("load winning identity: %w", ferr)
		}
		s.mergeGuestProfile(ctx, guestIdentityID, winner.ID)
		return winner, nil

	default:
		return domain.Identity{}, fmt.Errorf("claim guest identity: %w", err)
	}
}

func (s *AuthService) findOrCreate(ctx context.Context, email string) (domain.Identity, error) {
	identity, err := s.directory.FindByEmail(ctx, email)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, directory.ErrIdentityNotFound) {
		return domain.Identity{}, fmt.Errorf("find identity: %w", err)
	}

	identity, err = s.directory.Create(ctx, email, true)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	if perr := s.profiles.Merge(ctx, identity.ID, baselineProfile(email)); perr != nil {
		s.log().Warn("could not seed baseline profile",
			zap.Int64("identity_id", identity.ID), zap.Error(perr))
	}
	return identity, nil
}

// mergeGuestProfile copies fields the winner's profile is missing from
// the guest's profile, then discards the guest's document. Failures are
// logged and swallowed: the caller still gets a working session, and an
// unmerged profile is preferable to a failed sign-in.
func (s *AuthService) mergeGuestProfile(ctx context.Context, guestIdentityID, winnerID int64) {
	src, err := s.profiles.Get(ctx, guestIdentityID)
	if errors.Is(err, profile.ErrNotFound) {
		return
	}
	if err != nil {
		s.log().Warn("could not load guest profile for merge",
			zap.Int64("guest_identity_id", guestIdentityID), zap.Error(err))
		return
	}

	if len(src) > 0 {
		if err := s.profiles.FillMissing(ctx, winnerID, src); err != nil {
			s.log().Warn("could not merge guest profile",
				zap.Int64("guest_identity_id", guestIdentityID),
				zap.Int64("identity_id", winnerID), zap.Error(err))
			return
		}
	}

	if err := s.profiles.Delete(ctx, guestIdentityID); err != nil {
		s.log().Warn("could not delete merged guest profile",
			zap.Int64("guest_identity_id", guestIdentityID), zap.Error(err))
	}
}

func (s *AuthService) stampProfile(ctx context.Context, identityID int64, email string) {
	fields := profile.Document{
		"email":          email,
		"email_verified": true,
		"is_anonymous":   false,
	}
	if err := s.profiles.Merge(ctx, identityID, fields); err != nil {
		s.log().Warn("could not stamp profile with verified email",
			zap.Int64("identity_id", identityID), zap.Error(err))
	}
}

func baselineProfile(email string) profile.Document {
	return profile.Document{
		"email":               email,
		"email_verified":      true,
		"is_anonymous":        false,
		"units":               "metric",
		"onboarding_complete": false,
	}
}
