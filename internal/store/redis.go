package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platewise/auth/internal/domain"
)

const keyPrefix = "otp:challenge:"

// retention is a garbage-collection horizon well past any code TTL or
// resend window. Expiry is always enforced in code against the stored
// expires_at, never by Redis eviction, so an evicted challenge can only
// ever turn an "expired" answer into "not found".
const retention = 24 * time.Hour

// RedisChallengeStore implements ChallengeStore on a Redis hash per
// email.
type RedisChallengeStore struct {
	client redis.UniversalClient
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

// NewRedisChallengeStore constructs a Redis-backed challenge store.
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

// incrAttempts bumps the counter only when the challenge still exists;
// a bare HINCRBY would resurrect a deleted key.
var incrAttempts = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// markVerified needs the same existence guard: a bare HSET after a
// concurrent delete would recreate the key as a partial hash with no
// TTL, permanently wedging the email.
var markVerified = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "verified", "1")
return 1
`)

func (s *RedisChallengeStore) Get(ctx context.Context, email string) (domain.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+email).Result()
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	if len(fields) == 0 {
		return domain.Challenge{}, ErrNotFound
	}
	return decodeChallenge(email, fields)
}

func (s *RedisChallengeStore) Replace(ctx context.Context, ch domain.Challenge) error {
	key := keyPrefix + ch.Email
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code", ch.Code,
		"guest_identity_id", strconv.FormatInt(ch.GuestIdentityID, 10),
		"created_at", strconv.FormatInt(ch.CreatedAt.Unix(), 10),
		"expires_at", strconv.FormatInt(ch.ExpiresAt.Unix(), 10),
		"verified", boolField(ch.Verified),
		"attempts", strconv.Itoa(ch.Attempts),
	)
	pipe.Expire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	n, err := incrAttempts.Run(ctx, s.client, []string{keyPrefix + email}).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

func (s *RedisChallengeStore) MarkVerified(ctx context.Context, email string) error {
	n, err := markVerified.Run(ctx, s.client, []string{keyPrefix + email}).Int64()
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, keyPrefix+email).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func decodeChallenge(email string, fields map[string]string) (domain.Challenge, error) {
	guestID, err := strconv.ParseInt(fields["guest_identity_id"], 10, 64)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("decode guest identity: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("decode created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("decode expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("decode attempts: %w", err)
	}
	return domain.Challenge{
		Email:           email,
		Code:            fields["code"],
		GuestIdentityID: guestID,
		CreatedAt:       time.Unix(createdAt, 0),
		ExpiresAt:       time.Unix(expiresAt, 0),
		Verified:        fields["verified"] == "1",
		Attempts:        attempts,
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
