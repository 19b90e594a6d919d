package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRefreshNotFound = errors.New("refresh record not found")
	ErrRefreshBackend  = errors.New("refresh backend unavailable")
)

// RefreshRecord is the server-side half of a refresh token. A refresh
// token is only honored while its record exists; deleting the record
// revokes the token regardless of its signature validity.
type RefreshRecord struct {
	PrincipalID string    `json:"principalId"`
	TenantID    string    `json:"tenantId,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserAgent   string    `json:"userAgent,omitempty"`
	IP          string    `json:"ip,omitempty"`
}

// RefreshStore keys records by a digest of the raw token, so Redis never
// holds a usable token. A per-principal set tracks live digests for
// whole-account revocation.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(redisClient redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "rft"
	}
	return &RefreshStore{redis: redisClient, prefix: prefix}
}

func tokenDigest(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

func (s *RefreshStore) recordKey(digest string) string {
	return s.prefix + ":" + digest
}

func (s *RefreshStore) ownerKey(principalID string) string {
	return s.prefix + ":owner:" + principalID
}

// Save persists the record and registers the digest under the owner set.
// The TTL covers both; the set outlives individual records by design of
// SMEMBERS cleanup in RevokeAll and Lookup.
func (s *RefreshStore) Save(ctx context.Context, rawToken string, record RefreshRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	digest := tokenDigest(rawToken)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.recordKey(digest), encoded, ttl)
	pipe.SAdd(ctx, s.ownerKey(record.PrincipalID), digest)
	pipe.Expire(ctx, s.ownerKey(record.PrincipalID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	return nil
}

// Lookup resolves a raw token to its record. Expired or missing records
// report ErrRefreshNotFound.
func (s *RefreshStore) Lookup(ctx context.Context, rawToken string) (*RefreshRecord, error) {
	digest := tokenDigest(rawToken)
	data, err := s.redis.Get(ctx, s.recordKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	var record RefreshRecord
	if err := json.Unmarshal(data, &record); err != nil {
		_, _ = s.redis.Del(ctx, s.recordKey(digest)).Result()
		return nil, ErrRefreshNotFound
	}
	if time.Now().After(record.ExpiresAt) {
		_, _ = s.redis.Del(ctx, s.recordKey(digest)).Result()
		_, _ = s.redis.SRem(ctx, s.ownerKey(record.PrincipalID), digest).Result()
		return nil, ErrRefreshNotFound
	}
	return &record, nil
}

// Delete removes the record for a raw token. Returns true when a record
// was present, which makes rotation race-safe: only one concurrent
// rotation of the same token wins.
func (s *RefreshStore) Delete(ctx context.Context, rawToken string, principalID string) (bool, error) {
	digest := tokenDigest(rawToken)
	n, err := s.redis.Del(ctx, s.recordKey(digest)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	if principalID != "" {
		_, _ = s.redis.SRem(ctx, s.ownerKey(principalID), digest).Result()
	}
	return n > 0, nil
}

// RevokeAll deletes every live refresh record for the principal and
// returns how many were revoked.
func (s *RefreshStore) RevokeAll(ctx context.Context, principalID string) (int, error) {
	digests, err := s.redis.SMembers(ctx, s.ownerKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	revoked := 0
	for _, digest := range digests {
		n, err := s.redis.Del(ctx, s.recordKey(digest)).Result()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
		}
		revoked += int(n)
	}
	if err := s.redis.Del(ctx, s.ownerKey(principalID)).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	return revoked, nil
}
