package authcore

import (
	"errors"
	"time"
)

// Config is the full Engine configuration. Zero values are filled from
// defaultConfig by the Builder; validation runs once at Build time and fails
// fast, never at request time.
type Config struct {
	JWT         JWTConfig
	TOTP        TOTPConfig
	BackupCodes BackupCodeConfig
	Vault       VaultConfig
	Password    PasswordConfig
	MFA         MFAConfig
	Telemetry   TelemetryConfig
	Store       StoreConfig
	Insecure    InsecureConfig

	// ProductionMode tightens validation: test hooks are rejected and the
	// master key guard cannot be waived.
	ProductionMode bool
}

// JWTConfig configures the token issuer. Access and refresh tokens are
// signed with separate secrets so one can never stand in for the other.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// TOTPConfig configures RFC 6238 code generation and verification.
type TOTPConfig struct {
	// Issuer appears in the otpauth:// provisioning URI label.
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
	// SetupTTL bounds the life of a pending enrollment.
	SetupTTL time.Duration
}

// BackupCodeConfig tunes the single-use fallback codes.
type BackupCodeConfig struct {
	Count int
	// Length is the code length in uppercase hex characters.
	Length int
	// BcryptCost is the adaptive hash cost factor for stored codes.
	BcryptCost int
	// LowWatermark triggers RequiresNewBackupCodes when the remaining
	// count drops to or below it.
	LowWatermark int
}

// VaultConfig carries the master key for secret encryption.
type VaultConfig struct {
	MasterKey string
}

// PasswordConfig tunes Argon2id credential hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// MFAConfig governs which roles are challenged and how session-scoped
// verification state expires.
type MFAConfig struct {
	// RequiredRoles must complete an MFA challenge (or enrollment) before
	// receiving full tokens.
	RequiredRoles []Role
	// MarkerTTL is the lifetime of the "mfa verified" session marker. It
	// is independent of the access token's TTL.
	MarkerTTL time.Duration
	// TrustedDeviceTTL bounds how long a trusted fingerprint is honored.
	TrustedDeviceTTL time.Duration
}

// TelemetryConfig tunes the security event log and the brute-force guard.
type TelemetryConfig struct {
	MaxEvents      int
	Retention      time.Duration
	SweepInterval  time.Duration
	WindowDuration time.Duration
	MaxAttempts    int
	LockDuration   time.Duration
	// HighRiskThreshold marks events at or above this score for the
	// high-risk read API.
	HighRiskThreshold int
}

// StoreConfig bounds store access.
type StoreConfig struct {
	// Timeout caps every persistent-store call. On expiry the operation
	// fails closed.
	Timeout time.Duration
	// RedisPrefix namespaces the transient-state keys.
	RedisPrefix string
}

// InsecureConfig gates escape hatches that must never reach production.
type InsecureConfig struct {
	AllowTestHooks bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  12 * time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "beauty-platform-auth",
			Audience:   "beauty-platform",
			Leeway:     30 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:    "Beauty Platform",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
			SetupTTL:  10 * time.Minute,
		},
		BackupCodes: BackupCodeConfig{
			Count:        10,
			Length:       8,
			BcryptCost:   12,
			LowWatermark: 2,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		MFA: MFAConfig{
			RequiredRoles:    []Role{RoleSuperAdmin},
			MarkerTTL:        30 * time.Minute,
			TrustedDeviceTTL: 30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			MaxEvents:         10000,
			Retention:         24 * time.Hour,
			SweepInterval:     5 * time.Minute,
			WindowDuration:    10 * time.Minute,
			MaxAttempts:       5,
			LockDuration:      15 * time.Minute,
			HighRiskThreshold: 70,
		},
		Store: StoreConfig{
			Timeout:     3 * time.Second,
			RedisPrefix: "authcore",
		},
	}
}

const minMasterKeyLength = 32

func (c Config) validate() error {
	if len(c.Vault.MasterKey) < minMasterKeyLength {
		return errors.New("vault master key missing or below minimum length")
	}
	if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
		return errors.New("jwt access and refresh secrets are required")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("jwt access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TOTP.Period <= 0 || c.TOTP.Skew < 0 {
		return errors.New("invalid totp period or skew")
	}
	if c.TOTP.SetupTTL <= 0 {
		return errors.New("setup TTL must be positive")
	}
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Length < 8 {
		return errors.New("invalid backup code count or length")
	}
	if c.BackupCodes.BcryptCost < 10 || c.BackupCodes.BcryptCost > 16 {
		return errors.New("backup code bcrypt cost must be 10..16")
	}
	if len(c.MFA.RequiredRoles) == 0 {
		return errors.New("at least one MFA-required role must be configured")
	}
	if c.MFA.MarkerTTL <= 0 || c.MFA.TrustedDeviceTTL <= 0 {
		return errors.New("mfa marker and trusted device TTLs must be positive")
	}
	if c.Telemetry.MaxAttempts <= 0 || c.Telemetry.WindowDuration <= 0 || c.Telemetry.LockDuration <= 0 {
		return errors.New("invalid brute-force guard configuration")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.ProductionMode && c.Insecure.AllowTestHooks {
		return errors.New("test hooks cannot be enabled in production mode")
	}
	return nil
}

func (c Config) roleRequiresMFA(role Role) bool {
	for _, r := range c.MFA.RequiredRoles {
		if r == role {
			return true
		}
	}
	return false
}
