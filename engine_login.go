package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beautystack/authcore/telemetry"
)

// Login verifies an email/password pair and returns the next step of the
// flow. The outcome is one of three shapes:
//
//   - ChallengeRequired: the principal is enrolled in MFA. No tokens are
//     issued; the caller must follow up with [Engine.VerifyMFA].
//   - MFASetupRequired: the principal's role mandates MFA but no enrollment
//     exists. The returned tokens should only be accepted by the enrollment
//     endpoints; the middleware enforces that for gated routes.
//   - Neither flag: the returned pair is a full session.
//
// Every credential mismatch, unknown email included, surfaces as
// ErrInvalidCredentials. Account and tenant state checks run only after the
// password verified, so their errors never leak account existence to
// guessing attackers.
func (e *Engine) Login(ctx context.Context, email, password, tenantSlug string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)
	now := time.Now()
	if e.events.Guard().IsLocked(ip, now) {
		e.metricInc(MetricLoginLockedOut)
		e.recordEvent(ctx, telemetry.CategoryLoginFailure, "", "", map[string]string{
			"reason": "ip_locked",
		})
		return nil, ErrLocked
	}

	sctx, cancel := e.storeCtx(ctx)
	principal, lookupErr := e.directory.GetPrincipalByEmail(sctx, email)
	cancel()
	if lookupErr != nil && !errors.Is(lookupErr, ErrPrincipalNotFound) {
		return nil, mapStoreErr(lookupErr)
	}

	hash := principal.PasswordHash
	if lookupErr != nil || hash == "" {
		hash = e.dummyHash
	}
	ok, err := e.passwords.Verify(password, hash)
	if err != nil {
		e.log.Error("password verify failed", zap.Error(err))
		ok = false
	}
	if lookupErr != nil || !ok {
		e.failLogin(ctx, principal.ID, principal.TenantID, "bad_credentials", now)
		return nil, ErrInvalidCredentials
	}

	if !principal.Active {
		e.failLogin(ctx, principal.ID, principal.TenantID, "account_inactive", now)
		return nil, ErrAccountInactive
	}
	if principal.Role != RoleSuperAdmin && !principal.TenantActive {
		e.failLogin(ctx, principal.ID, principal.TenantID, "tenant_inactive", now)
		return nil, ErrTenantInactive
	}
	if tenantSlug != "" && principal.Role != RoleSuperAdmin && principal.TenantSlug != tenantSlug {
		e.failLogin(ctx, principal.ID, principal.TenantID, "tenant_mismatch", now)
		return nil, ErrTenantMismatch
	}

	e.events.Guard().RecordSuccess(ip, now)

	if principal.MFAEnabled {
		e.metricInc(MetricChallengeIssued)
		e.recordEvent(ctx, telemetry.CategoryMFAChallenge, principal.ID, principal.TenantID, nil)
		return &LoginResult{
			ChallengeRequired: true,
			PrincipalID:       principal.ID,
			Email:             principal.Email,
		}, nil
	}

	if e.config.roleRequiresMFA(principal.Role) {
		pair, err := e.issuePair(ctx, principal, now)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFASetupRequired)
		e.recordEvent(ctx, telemetry.CategoryLoginSuccess, principal.ID, principal.TenantID, map[string]string{
			"mfaSetupRequired": "true",
		})
		return &LoginResult{
			MFASetupRequired: true,
			PrincipalID:      principal.ID,
			Email:            principal.Email,
			Tokens:           pair,
			Principal:        snapshotOf(principal),
		}, nil
	}

	pair, err := e.issuePair(ctx, principal, now)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.recordEvent(ctx, telemetry.CategoryLoginSuccess, principal.ID, principal.TenantID, nil)
	return &LoginResult{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Tokens:      pair,
		Principal:   snapshotOf(principal),
	}, nil
}

// failLogin records the failure, advances the brute-force guard, and emits
// the lock event when this attempt tripped it.
func (e *Engine) failLogin(ctx context.Context, principalID, tenantID, reason string, now time.Time) {
	e.metricInc(MetricLoginFailure)
	e.recordEvent(ctx, telemetry.CategoryLoginFailure, principalID, tenantID, map[string]string{
		"reason": reason,
	})
	if e.events.Guard().RecordFailure(clientIPFromContext(ctx), now) {
		e.metricInc(MetricLoginLockedOut)
		e.recordEvent(ctx, telemetry.CategoryBruteForceLock, principalID, tenantID, nil)
	}
}
