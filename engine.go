package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/beautystack/authcore/internal/stores"
	"github.com/beautystack/authcore/password"
	"github.com/beautystack/authcore/telemetry"
	"github.com/beautystack/authcore/token"
	"github.com/beautystack/authcore/vault"
)

// Engine is the authentication core. It is built once via [Builder],
// immutable afterwards, and safe for concurrent use.
//
// The Engine owns credential verification, MFA enrollment and challenge,
// token issuance and rotation, and security telemetry. It does not own
// HTTP: callers attach request attributes with [WithRequestMeta] and the
// middleware package adapts the Engine to net/http.
type Engine struct {
	config    Config
	directory DirectoryProvider
	secrets   *vault.Vault
	passwords *password.Hasher
	totp      *totpManager
	tokens    *token.Manager

	refreshStore *stores.RefreshStore
	pendingStore *stores.PendingSetupStore
	deviceStore  *stores.TrustedDeviceStore
	markerStore  *stores.MarkerStore

	events  *telemetry.Logger
	metrics *Metrics
	hooks   TestHooks
	log     *zap.Logger

	// dummyHash is verified against when the email is unknown, so lookup
	// misses cost the same as password mismatches.
	dummyHash string
}

// Close stops the telemetry sweeper. The Engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// Telemetry exposes the security event log for dashboards and admin APIs.
func (e *Engine) Telemetry() *telemetry.Logger {
	if e == nil {
		return nil
	}
	return e.events
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx caps a persistent-store call at the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// mapStoreErr collapses backend failures to ErrUnavailable so callers fail
// closed without learning backend details. Not-found style errors pass
// through untouched.
func mapStoreErr(err error, passthrough ...error) error {
	if err == nil {
		return nil
	}
	for _, p := range passthrough {
		if errors.Is(err, p) {
			return err
		}
	}
	return ErrUnavailable
}

func snapshotOf(p PrincipalRecord) *PrincipalSnapshot {
	return &PrincipalSnapshot{
		ID:         p.ID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Role:       p.Role,
		TenantID:   p.TenantID,
		TenantSlug: p.TenantSlug,
	}
}

// issuePair signs a full access/refresh pair and persists the refresh
// record. Both halves of a refresh token must later be valid: the
// signature and the persisted record.
func (e *Engine) issuePair(ctx context.Context, p PrincipalRecord, now time.Time) (*TokenPair, error) {
	sub := token.Subject{
		PrincipalID: p.ID,
		TenantID:    p.TenantID,
		Role:        string(p.Role),
		Email:       p.Email,
	}
	access, err := e.tokens.CreateAccess(sub, now)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.CreateRefresh(sub, now)
	if err != nil {
		return nil, err
	}

	record := stores.RefreshRecord{
		PrincipalID: p.ID,
		TenantID:    p.TenantID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(e.tokens.RefreshTTL()),
		UserAgent:   userAgentFromContext(ctx),
		IP:          clientIPFromContext(ctx),
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.refreshStore.Save(sctx, refresh, record, e.tokens.RefreshTTL()); err != nil {
		return nil, mapStoreErr(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}, nil
}

// recordEvent writes one security event with the request attributes from
// ctx and mirrors it into the directory's audit log via the telemetry sink.
func (e *Engine) recordEvent(ctx context.Context, category telemetry.Category, principalID, tenantID string, details map[string]string) telemetry.Event {
	return e.events.Record(ctx, category, principalID, tenantID, requestMetaFromContext(ctx), details)
}

// directorySink adapts the directory's append-only audit log to the
// telemetry sink interface.
type directorySink struct {
	directory DirectoryProvider
	timeout   time.Duration
}

func (s directorySink) Record(ctx context.Context, ev telemetry.Event) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.directory.AppendAudit(sctx, AuditEntry{
		Timestamp:   ev.At,
		Action:      string(ev.Category),
		PrincipalID: ev.PrincipalID,
		TenantID:    ev.TenantID,
		IP:          ev.IP,
		UserAgent:   ev.UserAgent,
		Detail:      ev.Details,
	})
}
