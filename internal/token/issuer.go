package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/platewise/auth/internal/domain"
)

// Issuer signs and validates session tokens.
type Issuer struct {
	keys   *KeyManager
	ttl    time.Duration
	issuer string
}

// NewIssuer constructs a session token issuer.
func NewIssuer(keys *KeyManager, ttl time.Duration, issuer string) *Issuer {
	return &Issuer{keys: keys, ttl: ttl, issuer: issuer}
}

// SessionClaims represent the custom JWT payload for session tokens.
type SessionClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	IsAnonymous   bool   `json:"is_anonymous"`
}

// Issue produces a signed session token for the identity.
func (i *Issuer) Issue(ctx context.Context, identity domain.Identity) (string, error) {
	key, err := i.keys.EnsureSigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(identity.ID, 10),
		Issuer:    i.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(i.ttl)),
		NotBefore: gojwt.NewNumericDate(now),
	}
	custom := SessionClaims{
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		IsAnonymous:   identity.IsAnonymous,
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Validate ensures the token is valid and returns its claims. Tokens
// signed by any active key are accepted, so a key minted by a racing
// bootstrap does not strand sessions signed by an older one.
func (i *Issuer) Validate(ctx context.Context, token string) (*gojwt.Claims, *SessionClaims, error) {
	keys, err := i.keys.ActiveKeys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load keys: %w", err)
	}

	parsed, err := gojwt.ParseSigned(token, allowedAlgorithms(keys))
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}
	var kid string
	if len(parsed.Headers) > 0 {
		kid = parsed.Headers[0].KeyID
	}

	verifyErr := errors.New("no active key matches the token")
	for _, key := range keys {
		if kid != "" && key.KID != kid {
			continue
		}
		var std gojwt.Claims
		var custom SessionClaims
		if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
			verifyErr = err
			continue
		}
		if err := std.Validate(gojwt.Expected{Issuer: i.issuer, Time: time.Now()}); err != nil {
			return nil, nil, fmt.Errorf("validate claims: %w", err)
		}
		return &std, &custom, nil
	}
	return nil, nil, fmt.Errorf("verify token: %w", verifyErr)
}

func allowedAlgorithms(keys []domain.SigningKey) []gojose.SignatureAlgorithm {
	seen := make(map[string]bool, len(keys))
	algs := make([]gojose.SignatureAlgorithm, 0, len(keys))
	for _, key := range keys {
		if seen[key.Algorithm] {
			continue
		}
		seen[key.Algorithm] = true
		algs = append(algs, gojose.SignatureAlgorithm(key.Algorithm))
	}
	return algs
}

// SubjectID parses the numeric identity id out of validated claims.
func SubjectID(std *gojwt.Claims) (int64, error) {
	id, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse subject: %w", err)
	}
	return id, nil
}
