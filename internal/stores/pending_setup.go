package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPendingSetupNotFound = errors.New("pending mfa setup not found")
	ErrPendingSetupBackend  = errors.New("pending mfa setup backend unavailable")
)

// PendingSetup is an MFA enrollment awaiting its confirmation code. The
// secret blob is already encrypted by the vault. The backup codes stay
// plaintext here: the record is ephemeral and TTL'd, and the completion
// step must hand the codes back before hashing them into durable storage.
type PendingSetup struct {
	PrincipalID string    `json:"principalId"`
	SecretBlob  []byte    `json:"secretBlob"`
	BackupCodes []string  `json:"backupCodes"`
	SetupToken  string    `json:"setupToken"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// PendingSetupStore keys pending enrollments by principal, so a repeated
// setup request overwrites the previous one.
type PendingSetupStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingSetupStore(redisClient redis.UniversalClient, prefix string) *PendingSetupStore {
	if prefix == "" {
		prefix = "mps"
	}
	return &PendingSetupStore{redis: redisClient, prefix: prefix}
}

func (s *PendingSetupStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

func (s *PendingSetupStore) Save(ctx context.Context, record PendingSetup, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.PrincipalID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	return nil
}

func (s *PendingSetupStore) Get(ctx context.Context, principalID string) (*PendingSetup, error) {
	data, err := s.redis.Get(ctx, s.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingSetupNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	var record PendingSetup
	if err := json.Unmarshal(data, &record); err != nil {
		_, _ = s.redis.Del(ctx, s.key(principalID)).Result()
		return nil, ErrPendingSetupNotFound
	}
	if time.Now().After(record.ExpiresAt) {
		_, _ = s.redis.Del(ctx, s.key(principalID)).Result()
		return nil, ErrPendingSetupNotFound
	}
	return &record, nil
}

func (s *PendingSetupStore) Delete(ctx context.Context, principalID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(principalID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	return n > 0, nil
}
