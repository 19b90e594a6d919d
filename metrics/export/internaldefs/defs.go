// Package internaldefs holds the exporter-facing metric definitions shared
// by the Prometheus and OpenTelemetry bridges. Not for application use.
package internaldefs

import (
	authcore "github.com/beautystack/authcore"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter. Order is the exposition
// order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginLockedOut, Name: "authcore_login_locked_out_total", Help: "Logins rejected by the brute-force guard."},
	{ID: authcore.MetricChallengeIssued, Name: "authcore_mfa_challenge_issued_total", Help: "Logins deferred pending an MFA challenge."},
	{ID: authcore.MetricMFASetupRequired, Name: "authcore_mfa_setup_required_total", Help: "Logins flagged for mandatory MFA enrollment."},
	{ID: authcore.MetricMFASetupInitiated, Name: "authcore_mfa_setup_initiated_total", Help: "MFA enrollments started."},
	{ID: authcore.MetricMFASetupCompleted, Name: "authcore_mfa_setup_completed_total", Help: "MFA enrollments confirmed."},
	{ID: authcore.MetricMFAVerifySuccess, Name: "authcore_mfa_verify_success_total", Help: "Settled MFA challenges."},
	{ID: authcore.MetricMFAVerifyFailure, Name: "authcore_mfa_verify_failure_total", Help: "Failed MFA challenge attempts."},
	{ID: authcore.MetricMFALockout, Name: "authcore_mfa_lockout_total", Help: "MFA attempts rejected by the brute-force guard."},
	{ID: authcore.MetricMFADisabled, Name: "authcore_mfa_disabled_total", Help: "MFA enrollments disabled."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Challenges settled with a backup code."},
	{ID: authcore.MetricBackupCodeRegenerated, Name: "authcore_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: authcore.MetricTrustedDeviceRegistered, Name: "authcore_trusted_device_registered_total", Help: "Device fingerprints marked trusted."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricRevokeAll, Name: "authcore_revoke_all_total", Help: "Whole-account session revocations."},
}
