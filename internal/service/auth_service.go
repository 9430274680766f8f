package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platewise/auth/internal/config"
	"github.com/platewise/auth/internal/directory"
	"github.com/platewise/auth/internal/domain"
	"github.com/platewise/auth/internal/mailer"
	"github.com/platewise/auth/internal/profile"
	"github.com/platewise/auth/internal/store"
)

// CodeLength is the fixed number of digits in an issued code.
const CodeLength = 6

// codeMin/codeSpan bound the uniform draw: codes are 100000-999999, so
// every code is exactly six digits with no leading zero.
const (
	codeMin  = 100000
	codeSpan = 900000
)

// VerifyResult is returned after a successful code verification.
type VerifyResult struct {
	Token      string `json:"token"`
	IdentityID int64  `json:"identity_id"`
	Email      string `json:"email"`
}

// GuestResult is returned after starting a guest session.
type GuestResult struct {
	Token      string `json:"token"`
	IdentityID int64  `json:"identity_id"`
}

// AuthService encapsulates challenge issuance, verification, and
// identity resolution.
type AuthService struct {
	challenges store.ChallengeStore
	directory  directory.Directory
	profiles   profile.Repository
	mail       mailer.Mailer
	cfg        config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(challenges store.ChallengeStore, dir directory.Directory, profiles profile.Repository, mail mailer.Mailer, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		challenges: challenges,
		directory:  dir,
		profiles:   profiles,
		mail:       mail,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("github.com/platewise/auth/internal/service"),
	}
}

// IssueChallenge generates and delivers a one-time code for the email,
// superseding any previous challenge. The response never carries the
// code.
func (s *AuthService) IssueChallenge(ctx context.Context, email string, guestIdentityID int64) error {
	ctx, span := s.startSpan(ctx, "AuthService.IssueChallenge")
	defer span.End()
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return errInvalidArgument("A valid email address is required.")
	}

	existing, err := s.challenges.Get(ctx, normalized)
	switch {
	case err == nil:
		// Rate limiting considers the previous challenge regardless of
		// its verified state. The check-then-write race with a
		// concurrent issuance is benign: Replace is delete-then-insert,
		// so exactly one challenge survives.
		if elapsed := time.Since(existing.CreatedAt); elapsed < s.cfg.OTPResendWindow {
			return errRateLimited(s.cfg.OTPResendWindow - elapsed)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		span.RecordError(err)
		return errInternal("Could not check outstanding codes.")
	}

	code, err := generateCode()
	if err != nil {
		span.RecordError(err)
		return errInternal("Could not generate a code.")
	}

	now := time.Now()
	ch := domain.Challenge{
		Email:           normalized,
		Code:            code,
		GuestIdentityID: guestIdentityID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.OTPCodeTTL),
		Verified:        false,
		Attempts:        0,
	}

	// Persist before delivery: a delivery failure must never lose the code.
	if err := s.challenges.Replace(ctx, ch); err != nil {
		span.RecordError(err)
		return errInternal("Could not persist the code.")
	}

	subject, body := mailer.OTPMessage(code, s.cfg.OTPCodeTTL)
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	if err := s.mail.Send(sendCtx, normalized, subject, body); err != nil {
		span.RecordError(err)
		s.log().Error("code delivery failed, challenge remains valid",
			zap.String("email", normalized), zap.Error(err))
		return errInternal("Could not deliver the code. Try verifying anyway or request a new one.")
	}

	s.audit("otp.challenge.issued", "email", normalized, "guest_identity_id", guestIdentityID)
	return nil
}

// VerifyChallenge checks a submitted code and, on success, resolves the
// email to a durable identity and returns a session token.
func (s *AuthService) VerifyChallenge(ctx context.Context, email, code string, guestIdentityID int64) (*VerifyResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyChallenge")
	defer span.End()
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, errInvalidArgument("A valid email address is required.")
	}
	submitted := strings.TrimSpace(code)
	if !validCode(submitted) {
		return nil, errInvalidArgument(fmt.Sprintf("The code must be %d digits.", CodeLength))
	}

	ch, err := s.challenges.Get(ctx, normalized)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, errNotFound()
	case err != nil:
		span.RecordError(err)
		return nil, errInternal("Could not load the code.")
	}
	// A verified challenge is one whose resolver run failed after the
	// code matched; it is no longer redeemable, only a fresh code is.
	if ch.Verified {
		return nil, errNotFound()
	}

	if ch.Expired(time.Now()) {
		_ = s.challenges.Delete(ctx, normalized)
		return nil, errExpired()
	}

	// Every submission counts, including the one that might succeed.
	// The increment is atomic at the store, so the cap holds under
	// concurrent verify calls: five submissions total are allowed, the
	// sixth is rejected.
	attempts, err := s.challenges.IncrementAttempts(ctx, normalized)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, errNotFound()
	case err != nil:
		span.RecordError(err)
		return nil, errInternal("Could not record the attempt.")
	}
	if attempts > s.cfg.OTPMaxAttempts {
		_ = s.challenges.Delete(ctx, normalized)
		return nil, errAttemptsExhausted()
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(ch.Code)) != 1 {
		return nil, errWrongCode(s.cfg.OTPMaxAttempts - attempts)
	}

	switch err := s.challenges.MarkVerified(ctx, normalized); {
	case errors.Is(err, store.ErrNotFound):
		// A concurrent verifier exhausted or consumed the challenge
		// between the compare and here; it is gone, not ours to win.
		return nil, errNotFound()
	case err != nil:
		span.RecordError(err)
		return nil, errInternal("Could not consume the code.")
	}

	// The guest reference from the request is carried through as-is;
	// it is not cross-checked against the one stored at issuance.
	identity, sessionToken, err := s.resolve(ctx, normalized, guestIdentityID)
	if err != nil {
		// The challenge stays verified=true and is no longer
		// redeemable; the caller must request a new code to retry.
		span.RecordError(err)
		s.log().Error("identity resolution failed after code match",
			zap.String("email", normalized), zap.Error(err))
		return nil, errInternal("Sign-in could not be completed. Request a new code.")
	}

	if err := s.challenges.Delete(ctx, normalized); err != nil {
		// The challenge is verified and invisible to future lookups;
		// retention TTL will collect it.
		s.log().Warn("could not delete consumed challenge", zap.String("email", normalized), zap.Error(err))
	}

	s.audit("otp.challenge.verified", "email", normalized, "identity_id", identity.ID)
	return &VerifyResult{Token: sessionToken, IdentityID: identity.ID, Email: normalized}, nil
}

// StartGuest creates an anonymous identity with an empty profile and
// returns a session token for it.
func (s *AuthService) StartGuest(ctx context.Context) (*GuestResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.StartGuest")
	defer span.End()
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	identity, err := s.directory.CreateAnonymous(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errInternal("Could not create a guest identity.")
	}

	if err := s.profiles.Merge(ctx, identity.ID, profile.Document{"is_anonymous": true}); err != nil {
		s.log().Warn("could not seed guest profile", zap.Int64("identity_id", identity.ID), zap.Error(err))
	}

	sessionToken, err := s.directory.IssueSessionToken(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return nil, errInternal("Could not issue a session token.")
	}

	s.audit("guest.session.started", "identity_id", identity.ID)
	return &GuestResult{Token: sessionToken, IdentityID: identity.ID}, nil
}

// Identity loads the identity bound to a validated session token.
func (s *AuthService) Identity(ctx context.Context, id int64) (domain.Identity, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	identity, err := s.directory.Get(ctx, id)
	if errors.Is(err, directory.ErrIdentityNotFound) {
		return domain.Identity{}, errNotFound()
	}
	if err != nil {
		return domain.Identity{}, errInternal("Could not load the identity.")
	}
	return identity, nil
}

// boundCtx puts a deadline on the backend calls (Postgres, Redis,
// delivery) made by one operation.
func (s *AuthService) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", fmt.Errorf("empty email")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("malformed email")
	}
	return normalized, nil
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("draw code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}
