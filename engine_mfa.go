package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beautystack/authcore/internal/stores"
	"github.com/beautystack/authcore/telemetry"
)

// InitiateMFASetup starts TOTP enrollment for a principal. It returns the
// shared secret, the otpauth:// provisioning URI, the plaintext backup
// codes, and a setup token binding the confirmation step to this attempt.
//
// The secret and backup codes cross the boundary exactly once, here. The
// pending enrollment lives in the transient store under the setup TTL; a
// repeated call replaces it. Durable state is untouched until
// [Engine.CompleteMFASetup] confirms code possession.
func (e *Engine) InitiateMFASetup(ctx context.Context, principalID string) (*MFASetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrValidation
	}

	sctx, cancel := e.storeCtx(ctx)
	principal, err := e.directory.GetPrincipalByID(sctx, principalID)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err, ErrPrincipalNotFound)
	}
	if !principal.Active {
		return nil, ErrAccountInactive
	}

	sctx, cancel = e.storeCtx(ctx)
	enrollment, err := e.directory.GetEnrollment(sctx, principalID)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if enrollment != nil && enrollment.Enabled {
		return nil, ErrAlreadyEnrolled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	blob, err := e.secrets.Encrypt(string(secret))
	if err != nil {
		e.log.Error("mfa secret encryption failed", zap.Error(err))
		return nil, ErrCrypto
	}

	codes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	setup := stores.PendingSetup{
		PrincipalID: principalID,
		SecretBlob:  blob,
		BackupCodes: codes,
		SetupToken:  uuid.NewString(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.TOTP.SetupTTL),
	}
	sctx, cancel = e.storeCtx(ctx)
	err = e.pendingStore.Save(sctx, setup, e.config.TOTP.SetupTTL)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricMFASetupInitiated)
	e.recordEvent(ctx, telemetry.CategoryMFASetupInitiated, principalID, principal.TenantID, nil)

	return &MFASetup{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, principal.Email),
		BackupCodes:     codes,
		SetupToken:      setup.SetupToken,
		ExpiresAt:       setup.ExpiresAt,
	}, nil
}

// CompleteMFASetup confirms enrollment by proving possession of the shared
// secret. The pending record survives a wrong code, so the principal can
// retry until the setup TTL expires. On success the encrypted secret and
// the freshly hashed backup codes move to durable storage in one write,
// the pending record is dropped, and the plaintext backup codes are
// returned for the principal to put away.
func (e *Engine) CompleteMFASetup(ctx context.Context, principalID, setupToken, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" || setupToken == "" || code == "" {
		return nil, ErrValidation
	}

	sctx, cancel := e.storeCtx(ctx)
	pending, err := e.pendingStore.Get(sctx, principalID)
	cancel()
	if err != nil {
		if errors.Is(err, stores.ErrPendingSetupNotFound) {
			return nil, ErrSetupNotFound
		}
		return nil, mapStoreErr(err)
	}
	if subtle.ConstantTimeCompare([]byte(pending.SetupToken), []byte(setupToken)) != 1 {
		return nil, ErrSetupTokenMismatch
	}

	secret, err := e.secrets.Decrypt(pending.SecretBlob)
	if err != nil {
		e.log.Error("pending mfa secret decryption failed", zap.String("principal_id", principalID), zap.Error(err))
		return nil, ErrCrypto
	}

	now := time.Now()
	ok, err := e.totp.VerifyCode([]byte(secret), code, now)
	if err != nil {
		return nil, ErrCrypto
	}
	if !ok && !e.staticCodeMatches(code) {
		e.recordEvent(ctx, telemetry.CategoryMFAVerifyFailure, principalID, "", map[string]string{
			"phase": "setup_confirmation",
		})
		return nil, ErrCodeInvalid
	}

	hashes, err := e.hashBackupCodes(pending.BackupCodes)
	if err != nil {
		return nil, err
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.directory.PutEnrollment(sctx, EnrollmentRecord{
		PrincipalID:      principalID,
		SecretBlob:       pending.SecretBlob,
		Enabled:          true,
		Method:           "totp",
		BackupCodeHashes: hashes,
		EnrolledAt:       now,
		LastVerifiedAt:   now,
	})
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	_, _ = e.pendingStore.Delete(sctx, principalID)
	cancel()

	e.metricInc(MetricMFASetupCompleted)
	e.recordEvent(ctx, telemetry.CategoryMFASetupCompleted, principalID, "", nil)
	return pending.BackupCodes, nil
}

// VerifyMFA settles an MFA challenge with a TOTP code or a single-use
// backup code and, on success, issues the full token pair plus the
// MFA-verified session marker.
//
// The brute-force guard is consulted before the code is even parsed; a
// locked IP gets ErrLocked without any verification work. TOTP and backup
// code failures are indistinguishable to the caller.
func (e *Engine) VerifyMFA(ctx context.Context, principalID, code string, trustDevice bool, deviceFingerprint string) (*VerifyResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" || code == "" {
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)
	now := time.Now()
	if e.events.Guard().IsLocked(ip, now) {
		e.metricInc(MetricMFALockout)
		e.recordEvent(ctx, telemetry.CategoryMFAVerifyFailure, principalID, "", map[string]string{
			"reason": "ip_locked",
		})
		return nil, ErrLocked
	}

	sctx, cancel := e.storeCtx(ctx)
	principal, err := e.directory.GetPrincipalByID(sctx, principalID)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err, ErrPrincipalNotFound)
	}
	if !principal.Active {
		return nil, ErrAccountInactive
	}

	enrollment, err := e.loadEnabledEnrollment(ctx, principalID)
	if err != nil {
		return nil, err
	}

	ok, usedBackup, err := e.checkChallengeCode(ctx, enrollment, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.failChallenge(ctx, principal, now)
		return nil, ErrCodeInvalid
	}

	e.events.Guard().RecordSuccess(ip, now)

	sctx, cancel = e.storeCtx(ctx)
	if err := e.directory.TouchLastVerified(sctx, principalID, now); err != nil {
		e.log.Warn("touch last verified failed", zap.String("principal_id", principalID), zap.Error(err))
	}
	cancel()

	pair, err := e.issuePair(ctx, principal, now)
	if err != nil {
		return nil, err
	}

	sctx, cancel = e.storeCtx(ctx)
	marker, err := e.markerStore.Issue(sctx, principal.ID, principal.TenantID, e.config.MFA.MarkerTTL)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if trustDevice && deviceFingerprint != "" {
		sctx, cancel = e.storeCtx(ctx)
		err = e.deviceStore.Save(sctx, stores.TrustedDevice{
			PrincipalID:     principal.ID,
			FingerprintHash: fingerprintHash(deviceFingerprint),
			UserAgent:       userAgentFromContext(ctx),
			TrustedAt:       now,
		}, e.config.MFA.TrustedDeviceTTL)
		cancel()
		if err != nil {
			e.log.Warn("trusted device registration failed", zap.String("principal_id", principal.ID), zap.Error(err))
		} else {
			e.metricInc(MetricTrustedDeviceRegistered)
		}
	}

	remaining := len(enrollment.BackupCodeHashes)
	if usedBackup {
		remaining--
	}

	category := telemetry.CategoryMFAVerifySuccess
	details := map[string]string(nil)
	if usedBackup {
		category = telemetry.CategoryBackupCodeUsed
		details = map[string]string{"remaining": strconv.Itoa(remaining)}
		e.metricInc(MetricBackupCodeUsed)
	}
	e.metricInc(MetricMFAVerifySuccess)
	ev := e.recordEvent(ctx, category, principal.ID, principal.TenantID, details)

	return &VerifyResult{
		Tokens:                 pair,
		MFAMarker:              marker,
		UsedBackupCode:         usedBackup,
		RequiresNewBackupCodes: remaining <= e.config.BackupCodes.LowWatermark,
		RemainingBackupCodes:   remaining,
		RiskScore:              ev.RiskScore,
		Principal:              snapshotOf(principal),
	}, nil
}

// DisableMFA turns enrollment off after proving possession with a current
// TOTP or backup code. Trusted devices for the principal are dropped with
// the enrollment.
func (e *Engine) DisableMFA(ctx context.Context, principalID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if principalID == "" || code == "" {
		return ErrValidation
	}

	enrollment, err := e.loadEnabledEnrollment(ctx, principalID)
	if err != nil {
		return err
	}
	now := time.Now()
	ok, _, err := e.checkChallengeCode(ctx, enrollment, code, now)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricMFAVerifyFailure)
		e.recordEvent(ctx, telemetry.CategoryMFAVerifyFailure, principalID, "", map[string]string{
			"phase": "disable",
		})
		return ErrCodeInvalid
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.directory.DeleteEnrollment(sctx, principalID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	if err := e.deviceStore.DeleteAll(sctx, principalID); err != nil {
		e.log.Warn("trusted device cleanup failed", zap.String("principal_id", principalID), zap.Error(err))
	}
	cancel()

	e.metricInc(MetricMFADisabled)
	e.recordEvent(ctx, telemetry.CategoryMFADisabled, principalID, "", nil)
	return nil
}

// RegenerateBackupCodes replaces the full backup code set after proving
// possession with a current code. The previous codes stop working
// immediately; the new plaintext codes are returned exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principalID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" || code == "" {
		return nil, ErrValidation
	}

	enrollment, err := e.loadEnabledEnrollment(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ok, _, err := e.checkChallengeCode(ctx, enrollment, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAVerifyFailure)
		e.recordEvent(ctx, telemetry.CategoryMFAVerifyFailure, principalID, "", map[string]string{
			"phase": "backup_code_regeneration",
		})
		return nil, ErrCodeInvalid
	}

	codes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes, err := e.hashBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	sctx, cancel := e.storeCtx(ctx)
	err = e.directory.ReplaceBackupCodes(sctx, principalID, hashes)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.recordEvent(ctx, telemetry.CategoryBackupCodesRenewed, principalID, "", nil)
	return codes, nil
}

// MFAStatus reports the enrollment state for the settings surface. It never
// exposes secrets or code material.
func (e *Engine) MFAStatus(ctx context.Context, principalID string) (*MFAStatusInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrValidation
	}

	sctx, cancel := e.storeCtx(ctx)
	enrollment, err := e.directory.GetEnrollment(sctx, principalID)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	pending, err := e.pendingStore.Get(sctx, principalID)
	cancel()
	if err != nil && !errors.Is(err, stores.ErrPendingSetupNotFound) {
		return nil, mapStoreErr(err)
	}

	info := &MFAStatusInfo{PendingSetupOpen: pending != nil}
	if enrollment != nil {
		info.Enabled = enrollment.Enabled
		info.Method = enrollment.Method
		info.EnrolledAt = enrollment.EnrolledAt
		info.LastVerifiedAt = enrollment.LastVerifiedAt
		info.BackupCodesLeft = len(enrollment.BackupCodeHashes)
	}
	return info, nil
}

// IsTrustedDevice reports whether the fingerprint completed an MFA
// challenge on this account within the trusted-device window.
func (e *Engine) IsTrustedDevice(ctx context.Context, principalID, deviceFingerprint string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if principalID == "" || deviceFingerprint == "" {
		return false, nil
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	ok, err := e.deviceStore.Exists(sctx, principalID, fingerprintHash(deviceFingerprint))
	if err != nil {
		return false, mapStoreErr(err)
	}
	return ok, nil
}

func (e *Engine) loadEnabledEnrollment(ctx context.Context, principalID string) (*EnrollmentRecord, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	enrollment, err := e.directory.GetEnrollment(sctx, principalID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if enrollment == nil || !enrollment.Enabled {
		return nil, ErrMFANotEnrolled
	}
	return enrollment, nil
}

// checkChallengeCode settles a code against the enrollment: TOTP first,
// then the backup code set. A matched backup code is consumed atomically in
// the directory; losing that race counts as a mismatch.
func (e *Engine) checkChallengeCode(ctx context.Context, enrollment *EnrollmentRecord, code string, now time.Time) (ok, usedBackup bool, err error) {
	if e.staticCodeMatches(code) {
		return true, false, nil
	}

	secret, err := e.secrets.Decrypt(enrollment.SecretBlob)
	if err != nil {
		e.log.Error("mfa secret decryption failed", zap.String("principal_id", enrollment.PrincipalID), zap.Error(err))
		return false, false, ErrCrypto
	}

	ok, err = e.totp.VerifyCode([]byte(secret), code, now)
	if err != nil {
		return false, false, ErrCrypto
	}
	if ok {
		return true, false, nil
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != e.config.BackupCodes.Length {
		return false, false, nil
	}
	for _, hash := range enrollment.BackupCodeHashes {
		if !e.secrets.VerifyBackupCode(normalized, hash) {
			continue
		}
		sctx, cancel := e.storeCtx(ctx)
		consumed, cErr := e.directory.ConsumeBackupCode(sctx, enrollment.PrincipalID, hash)
		cancel()
		if cErr != nil {
			return false, false, mapStoreErr(cErr)
		}
		return consumed, consumed, nil
	}
	return false, false, nil
}

func (e *Engine) failChallenge(ctx context.Context, principal PrincipalRecord, now time.Time) {
	e.metricInc(MetricMFAVerifyFailure)
	e.recordEvent(ctx, telemetry.CategoryMFAVerifyFailure, principal.ID, principal.TenantID, nil)
	if e.events.Guard().RecordFailure(clientIPFromContext(ctx), now) {
		e.metricInc(MetricMFALockout)
		e.recordEvent(ctx, telemetry.CategoryBruteForceLock, principal.ID, principal.TenantID, nil)
	}
}

// staticCodeMatches honors the environment-gated test hook. Never true in
// production mode, where config validation rejects AllowTestHooks.
func (e *Engine) staticCodeMatches(code string) bool {
	return e.config.Insecure.AllowTestHooks &&
		e.hooks.StaticChallengeCode != "" &&
		subtle.ConstantTimeCompare([]byte(e.hooks.StaticChallengeCode), []byte(code)) == 1
}

// generateBackupCodes returns fresh plaintext codes. Codes are uppercase
// hex so they survive being read over the phone.
func (e *Engine) generateBackupCodes() ([]string, error) {
	count := e.config.BackupCodes.Count
	length := e.config.BackupCodes.Length
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, (length+1)/2)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(raw))[:length])
	}
	return codes, nil
}

func (e *Engine) hashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := e.secrets.HashBackupCode(code)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func fingerprintHash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}
