package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTrustedDeviceBackend = errors.New("trusted device backend unavailable")

// TrustedDevice marks a device fingerprint that completed an MFA challenge
// and asked to be remembered. Only a hash of the fingerprint is stored.
type TrustedDevice struct {
	PrincipalID     string    `json:"principalId"`
	FingerprintHash string    `json:"fingerprintHash"`
	UserAgent       string    `json:"userAgent,omitempty"`
	TrustedAt       time.Time `json:"trustedAt"`
}

type TrustedDeviceStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTrustedDeviceStore(redisClient redis.UniversalClient, prefix string) *TrustedDeviceStore {
	if prefix == "" {
		prefix = "mtd"
	}
	return &TrustedDeviceStore{redis: redisClient, prefix: prefix}
}

func (s *TrustedDeviceStore) key(principalID, fingerprintHash string) string {
	return s.prefix + ":" + principalID + ":" + fingerprintHash
}

func (s *TrustedDeviceStore) Save(ctx context.Context, record TrustedDevice, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := s.key(record.PrincipalID, record.FingerprintHash)
	if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	return nil
}

// Exists reports whether the fingerprint is currently trusted for the
// principal. Expiry is handled by the key TTL.
func (s *TrustedDeviceStore) Exists(ctx context.Context, principalID, fingerprintHash string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(principalID, fingerprintHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	return n > 0, nil
}

// DeleteAll drops every trusted device for the principal. Used when MFA is
// disabled or all sessions are revoked.
func (s *TrustedDeviceStore) DeleteAll(ctx context.Context, principalID string) error {
	var cursor uint64
	pattern := s.prefix + ":" + principalID + ":*"
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
