package authcore

import "errors"

var (
	// ErrEngineNotReady reports that the Engine was used before Build wired
	// all of its collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrValidation reports malformed caller input (empty email, oversized
	// code, and so on).
	ErrValidation = errors.New("invalid request")

	// ErrInvalidCredentials is the single generic error for every credential
	// mismatch. It never reveals which field failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountInactive reports a disabled or deleted principal.
	ErrAccountInactive = errors.New("account is not active")

	// ErrTenantInactive reports a suspended or deleted salon.
	ErrTenantInactive = errors.New("salon account is not active")

	// ErrTenantMismatch reports a login against the wrong salon slug.
	ErrTenantMismatch = errors.New("invalid salon access")

	// ErrSetupNotFound reports a missing or expired pending MFA setup.
	ErrSetupNotFound = errors.New("no pending mfa setup")

	// ErrSetupTokenMismatch reports a setup token that does not match the
	// pending enrollment.
	ErrSetupTokenMismatch = errors.New("invalid setup token")

	// ErrAlreadyEnrolled reports a setup attempt for a principal whose MFA
	// is already enabled. Existing enrollments must be disabled first.
	ErrAlreadyEnrolled = errors.New("mfa already enabled")

	// ErrMFANotEnrolled reports an MFA operation against a principal with no
	// enabled enrollment.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")

	// ErrCodeInvalid reports a TOTP or backup code that failed verification.
	// The message is identical for both paths.
	ErrCodeInvalid = errors.New("invalid mfa code")

	// ErrLocked reports that the caller's IP is locked out by the
	// brute-force guard. The code is not evaluated in that state.
	ErrLocked = errors.New("too many failed attempts")

	// ErrCrypto reports a vault failure. It is always fatal to the
	// operation and logged at high severity before surfacing.
	ErrCrypto = errors.New("crypto operation failed")

	// ErrUnavailable reports a persistent-store timeout or outage. The
	// operation fails closed.
	ErrUnavailable = errors.New("authentication backend unavailable")

	// ErrTokenInvalid reports a token that failed signature, claim, or
	// expiry validation.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrRefreshInvalid reports a refresh token whose persisted record is
	// missing, expired, or revoked.
	ErrRefreshInvalid = errors.New("refresh token expired or not found")

	// ErrPrincipalNotFound reports a lookup miss by principal id.
	ErrPrincipalNotFound = errors.New("principal not found")
)
