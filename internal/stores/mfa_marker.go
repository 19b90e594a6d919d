package stores

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrMarkerNotFound = errors.New("mfa marker not found")
	ErrMarkerBackend  = errors.New("mfa marker backend unavailable")
)

// Marker is the server-side record behind an MFA-verified session marker.
// The marker value handed to the client is opaque and random; only its key
// maps back to the principal.
type Marker struct {
	PrincipalID string    `json:"principalId"`
	TenantID    string    `json:"tenantId,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
}

type MarkerStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMarkerStore(redisClient redis.UniversalClient, prefix string) *MarkerStore {
	if prefix == "" {
		prefix = "mfv"
	}
	return &MarkerStore{redis: redisClient, prefix: prefix}
}

func (s *MarkerStore) key(marker string) string {
	return s.prefix + ":" + marker
}

// Issue creates a fresh random marker for the principal with its own TTL,
// independent from any token lifetime.
func (s *MarkerStore) Issue(ctx context.Context, principalID, tenantID string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	marker := base64.RawURLEncoding.EncodeToString(raw)
	encoded, err := json.Marshal(Marker{
		PrincipalID: principalID,
		TenantID:    tenantID,
		IssuedAt:    time.Now(),
	})
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(marker), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMarkerBackend, err)
	}
	return marker, nil
}

// Lookup resolves a marker to its record. A marker for a different
// principal than expected is the caller's problem to reject.
func (s *MarkerStore) Lookup(ctx context.Context, marker string) (*Marker, error) {
	data, err := s.redis.Get(ctx, s.key(marker)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMarkerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMarkerBackend, err)
	}
	var record Marker
	if err := json.Unmarshal(data, &record); err != nil {
		_, _ = s.redis.Del(ctx, s.key(marker)).Result()
		return nil, ErrMarkerNotFound
	}
	return &record, nil
}

func (s *MarkerStore) Delete(ctx context.Context, marker string) error {
	if err := s.redis.Del(ctx, s.key(marker)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerBackend, err)
	}
	return nil
}
