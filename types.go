package authcore

import (
	"context"
	"time"
)

// Role identifies a principal's platform role.
type Role string

const (
	// RoleSuperAdmin is the top privilege role. It bypasses tenant checks
	// and is the only role subject to mandatory MFA.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleSalonOwner owns a single salon tenant.
	RoleSalonOwner Role = "SALON_OWNER"
	// RoleManager manages staff within a tenant.
	RoleManager Role = "MANAGER"
	// RoleStaffMember is a service-providing staff account.
	RoleStaffMember Role = "STAFF_MEMBER"
	// RoleReceptionist handles bookings within a tenant.
	RoleReceptionist Role = "RECEPTIONIST"
	// RoleAccountant has read access to tenant billing data.
	RoleAccountant Role = "ACCOUNTANT"
	// RoleClient is an external customer using the client portal.
	RoleClient Role = "CLIENT"
)

// PrincipalRecord is the account row returned by [DirectoryProvider].
// Every principal except RoleSuperAdmin belongs to exactly one tenant.
type PrincipalRecord struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	TenantID     string
	TenantSlug   string
	Active       bool
	TenantActive bool
	MFAEnabled   bool
}

// EnrollmentRecord is the durable MFA state for one principal. The secret is
// a vault-encrypted blob; it is never stored or transmitted in plaintext
// after setup completes. Backup codes are stored as bcrypt hashes, each
// usable exactly once.
type EnrollmentRecord struct {
	PrincipalID      string
	SecretBlob       []byte
	Enabled          bool
	Method           string
	BackupCodeHashes []string
	EnrolledAt       time.Time
	LastVerifiedAt   time.Time
}

// AuditEntry is an append-only row written to the platform audit log.
type AuditEntry struct {
	Timestamp   time.Time
	Action      string
	PrincipalID string
	TenantID    string
	Role        Role
	IP          string
	UserAgent   string
	Detail      map[string]string
}

// DirectoryProvider is the boundary to the platform's persistent store.
// Callers implement it over their database; stores/postgres ships a pgx
// implementation.
//
// Mutations of a single principal's enrollment must be one atomic store
// operation. PutEnrollment persists the record and sets the principal's
// MFA flag to record.Enabled in the same transaction; DeleteEnrollment
// clears both together. The enrollment row and the flag never disagree.
// ConsumeBackupCode removes the given stored hash only if it is still
// present and reports whether it did, so two concurrent attempts with the
// same code cannot both succeed.
type DirectoryProvider interface {
	GetPrincipalByEmail(ctx context.Context, email string) (PrincipalRecord, error)
	GetPrincipalByID(ctx context.Context, id string) (PrincipalRecord, error)

	GetEnrollment(ctx context.Context, principalID string) (*EnrollmentRecord, error)
	PutEnrollment(ctx context.Context, record EnrollmentRecord) error
	DeleteEnrollment(ctx context.Context, principalID string) error
	ReplaceBackupCodes(ctx context.Context, principalID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, principalID, hash string) (bool, error)
	TouchLastVerified(ctx context.Context, principalID string, at time.Time) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// TokenPair carries a freshly issued access/refresh credential pair.
// ExpiresIn is the access-token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// PrincipalSnapshot is the caller-facing view of an authenticated principal.
type PrincipalSnapshot struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Role       Role
	TenantID   string
	TenantSlug string
}

// LoginResult is the discriminated outcome of [Engine.Login].
//
//// Exactly one of the following holds: ChallengeRequired is true and no tokens
// are present; MFASetupRequired is true and Tokens is a restricted pair that
// should only reach the enrollment endpoints; or Tokens is a full pair.
type LoginResult struct {
	ChallengeRequired bool
	MFASetupRequired  bool
	PrincipalID       string
	Email             string
	Tokens            *TokenPair
	Principal         *PrincipalSnapshot
}

// MFASetup is returned by [Engine.InitiateMFASetup]. The secret and backup
// codes are shown to the principal exactly once; the provisioning URI is
// rendered as a QR code by the caller.
type MFASetup struct {
	SecretBase32    string
	ProvisioningURI string
	BackupCodes     []string
	SetupToken      string
	ExpiresAt       time.Time
}

// VerifyResult is the outcome of a successful [Engine.VerifyMFA].
type VerifyResult struct {
	Tokens *TokenPair
	// MFAMarker is the opaque session marker proving the challenge was
	// passed. It has its own TTL, independent of the access token's.
	MFAMarker string
	// UsedBackupCode reports that a single-use backup code, not a TOTP
	// code, satisfied the challenge.
	UsedBackupCode bool
	// RequiresNewBackupCodes is set when two or fewer codes remain.
	RequiresNewBackupCodes bool
	RemainingBackupCodes   int
	RiskScore              int
	Principal              *PrincipalSnapshot
}

// RefreshResult is the outcome of a successful [Engine.Refresh]: the
// rotated token pair plus a current snapshot of the principal, so the
// caller can refresh its cached identity without a second lookup.
type RefreshResult struct {
	Tokens    *TokenPair
	Principal *PrincipalSnapshot
}

// MFAStatusInfo is returned by [Engine.MFAStatus] for the settings surface.
type MFAStatusInfo struct {
	Enabled          bool
	Method           string
	EnrolledAt       time.Time
	LastVerifiedAt   time.Time
	BackupCodesLeft  int
	PendingSetupOpen bool
}

// TestHooks hosts explicit, environment-gated escape hatches for integration
// test rigs. Hooks are honored only when Config.Insecure.AllowTestHooks is
// set, which Config validation rejects in production mode.
type TestHooks struct {
	// StaticChallengeCode, when non-empty, is accepted as a valid challenge
	// code. Replaces the fixed-magic-value bypass the legacy service
	// carried in production verification logic.
	StaticChallengeCode string
}
