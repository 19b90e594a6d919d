package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/beautystack/authcore/internal/stores"
	"github.com/beautystack/authcore/telemetry"
)

// Refresh rotates a refresh token into a fresh access/refresh pair plus a
// current principal snapshot.
//
// A refresh token is honored only when both halves are valid: the signature
// checks out under the refresh secret AND its persisted record still exists.
// Rotation deletes the old record before issuing the new pair, so a token
// can be rotated exactly once; replaying it afterwards fails like any other
// revoked token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrValidation
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.failRefresh(ctx, "", "signature_invalid")
		return nil, ErrRefreshInvalid
	}

	sctx, cancel := e.storeCtx(ctx)
	record, err := e.refreshStore.Lookup(sctx, refreshToken)
	cancel()
	if err != nil {
		if errors.Is(err, stores.ErrRefreshNotFound) {
			e.failRefresh(ctx, claims.PrincipalID, "record_missing")
			return nil, ErrRefreshInvalid
		}
		return nil, mapStoreErr(err)
	}
	if record.PrincipalID != claims.PrincipalID {
		e.log.Error("refresh record principal mismatch",
			zap.String("claims_principal", claims.PrincipalID),
			zap.String("record_principal", record.PrincipalID))
		e.failRefresh(ctx, claims.PrincipalID, "principal_mismatch")
		return nil, ErrRefreshInvalid
	}

	sctx, cancel = e.storeCtx(ctx)
	principal, err := e.directory.GetPrincipalByID(sctx, claims.PrincipalID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.failRefresh(ctx, claims.PrincipalID, "principal_gone")
			return nil, ErrRefreshInvalid
		}
		return nil, mapStoreErr(err)
	}
	if !principal.Active {
		e.failRefresh(ctx, principal.ID, "account_inactive")
		return nil, ErrAccountInactive
	}
	if principal.Role != RoleSuperAdmin && !principal.TenantActive {
		e.failRefresh(ctx, principal.ID, "tenant_inactive")
		return nil, ErrTenantInactive
	}

	// Only one concurrent rotation of the same token may pass this point.
	sctx, cancel = e.storeCtx(ctx)
	won, err := e.refreshStore.Delete(sctx, refreshToken, record.PrincipalID)
	cancel()
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !won {
		e.failRefresh(ctx, principal.ID, "rotation_race")
		return nil, ErrRefreshInvalid
	}

	pair, err := e.issuePair(ctx, principal, time.Now())
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.recordEvent(ctx, telemetry.CategoryTokenRefresh, principal.ID, principal.TenantID, nil)
	return &RefreshResult{Tokens: pair, Principal: snapshotOf(principal)}, nil
}

// Logout revokes one refresh token and, when given, the MFA session marker.
// It is idempotent: revoking an already-dead token succeeds quietly.
func (e *Engine) Logout(ctx context.Context, refreshToken, mfaMarker string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	principalID := ""
	if refreshToken != "" {
		if claims, err := e.tokens.VerifyRefresh(refreshToken); err == nil {
			principalID = claims.PrincipalID
		}
		sctx, cancel := e.storeCtx(ctx)
		_, err := e.refreshStore.Delete(sctx, refreshToken, principalID)
		cancel()
		if err != nil {
			return mapStoreErr(err)
		}
	}
	if mfaMarker != "" {
		sctx, cancel := e.storeCtx(ctx)
		err := e.markerStore.Delete(sctx, mfaMarker)
		cancel()
		if err != nil {
			return mapStoreErr(err)
		}
	}

	e.metricInc(MetricLogout)
	e.recordEvent(ctx, telemetry.CategoryLogout, principalID, "", nil)
	return nil
}

// RevokeAll kills every live refresh token for a principal and returns how
// many were revoked. Outstanding access tokens keep working until expiry;
// pair RevokeAll with a short access TTL when that matters.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if principalID == "" {
		return 0, ErrValidation
	}

	sctx, cancel := e.storeCtx(ctx)
	revoked, err := e.refreshStore.RevokeAll(sctx, principalID)
	cancel()
	if err != nil {
		return revoked, mapStoreErr(err)
	}

	e.metricInc(MetricRevokeAll)
	e.recordEvent(ctx, telemetry.CategorySessionsRevoked, principalID, "", map[string]string{
		"revoked": strconv.Itoa(revoked),
	})
	return revoked, nil
}

// VerifyAccess validates an access token and returns its claims. The
// middleware package builds its request gate on this.
func (e *Engine) VerifyAccess(token string) (*AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.VerifyAccess(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &AccessClaims{
		PrincipalID: claims.PrincipalID,
		TenantID:    claims.TenantID,
		Role:        Role(claims.Role),
		Email:       claims.Email,
	}, nil
}

// CheckMFAMarker resolves an MFA session marker for a principal. A marker
// issued to someone else never verifies.
func (e *Engine) CheckMFAMarker(ctx context.Context, principalID, marker string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if principalID == "" || marker == "" {
		return false, nil
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	record, err := e.markerStore.Lookup(sctx, marker)
	if err != nil {
		if errors.Is(err, stores.ErrMarkerNotFound) {
			return false, nil
		}
		return false, mapStoreErr(err)
	}
	return record.PrincipalID == principalID, nil
}

// AccessClaims is the validated payload of an access token.
type AccessClaims struct {
	PrincipalID string
	TenantID    string
	Role        Role
	Email       string
}

func (e *Engine) failRefresh(ctx context.Context, principalID, reason string) {
	e.metricInc(MetricRefreshFailure)
	e.recordEvent(ctx, telemetry.CategoryTokenRefreshFailed, principalID, "", map[string]string{
		"reason": reason,
	})
}
