// Package token issues and validates the platform's signed credentials.
//
// Access tokens are short-lived and stateless; refresh tokens are long-lived,
// signed with a separate secret, and additionally persisted server-side by
// the engine. Both carry an explicit type tag so one can never be presented
// where the other is expected.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type tags embedded in every token.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalid reports a token that failed signature, claim, or expiry
	// validation.
	ErrInvalid = errors.New("token: invalid token")
	// ErrExpired reports an otherwise valid token past its expiry.
	ErrExpired = errors.New("token: token expired")
	// ErrTypeMismatch reports type confusion: a refresh token presented as
	// an access token or vice versa.
	ErrTypeMismatch = errors.New("token: token type mismatch")
)

// Config carries the signing material and validation bounds.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	PrincipalID string `json:"userId"`
	TenantID    string `json:"tenantId,omitempty"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	TokenType   string `json:"type"`
	jwt.RegisteredClaims
}

// Subject identifies the principal a token is issued for.
type Subject struct {
	PrincipalID string
	TenantID    string
	Role        string
	Email       string
}

// Manager signs and validates tokens. Immutable after NewManager.
type Manager struct {
	config Config
}

// NewManager validates the configuration: both secrets present and distinct,
// access TTL strictly below refresh TTL.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("token: access TTL must be positive and shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway")
	}
	return &Manager{config: cfg}, nil
}

// AccessTTL exposes the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// CreateAccess signs a short-lived access token for sub.
func (m *Manager) CreateAccess(sub Subject, now time.Time) (string, error) {
	return m.create(sub, TypeAccess, m.config.AccessSecret, m.config.AccessTTL, now)
}

// CreateRefresh signs a long-lived refresh token for sub.
func (m *Manager) CreateRefresh(sub Subject, now time.Time) (string, error) {
	return m.create(sub, TypeRefresh, m.config.RefreshSecret, m.config.RefreshTTL, now)
}

// VerifyAccess validates signature, issuer, audience, expiry, and the
// "access" type tag.
func (m *Manager) VerifyAccess(raw string) (*Claims, error) {
	return m.verify(raw, TypeAccess, m.config.AccessSecret)
}

// VerifyRefresh validates signature, issuer, audience, expiry, and the
// "refresh" type tag.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	return m.verify(raw, TypeRefresh, m.config.RefreshSecret)
}

func (m *Manager) create(sub Subject, tokenType string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		PrincipalID: sub.PrincipalID,
		TenantID:    sub.TenantID,
		Role:        sub.Role,
		Email:       sub.Email,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(raw, wantType string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalid
			}
			return secret, nil
		},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrTypeMismatch
	}
	if claims.PrincipalID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
