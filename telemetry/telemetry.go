// Package telemetry records security events for the authentication
// subsystem: structured audit entries with risk scoring, a bounded
// in-memory event buffer with periodic retention sweeps, and a
// brute-force guard that locks client IPs after repeated failures.
package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Category classifies a security event.
type Category string

const (
	CategoryLoginSuccess       Category = "login_success"
	CategoryLoginFailure       Category = "login_failure"
	CategoryMFAChallenge       Category = "mfa_challenge"
	CategoryMFAVerifySuccess   Category = "mfa_verify_success"
	CategoryMFAVerifyFailure   Category = "mfa_verify_failure"
	CategoryMFASetupInitiated  Category = "mfa_setup_initiated"
	CategoryMFASetupCompleted  Category = "mfa_setup_completed"
	CategoryMFADisabled        Category = "mfa_disabled"
	CategoryBackupCodeUsed     Category = "backup_code_used"
	CategoryBackupCodesRenewed Category = "backup_codes_renewed"
	CategoryBruteForceLock     Category = "brute_force_lock"
	CategoryTokenRefresh       Category = "token_refresh"
	CategoryTokenRefreshFailed Category = "token_refresh_failed"
	CategoryLogout             Category = "logout"
	CategorySessionsRevoked    Category = "sessions_revoked"
	CategoryAccessDenied       Category = "access_denied"
)

// Severity ranks an event for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// categorySeverity is the static mapping applied when an event is recorded.
var categorySeverity = map[Category]Severity{
	CategoryLoginSuccess:       SeverityInfo,
	CategoryLoginFailure:       SeverityWarning,
	CategoryMFAChallenge:       SeverityInfo,
	CategoryMFAVerifySuccess:   SeverityInfo,
	CategoryMFAVerifyFailure:   SeverityWarning,
	CategoryMFASetupInitiated:  SeverityInfo,
	CategoryMFASetupCompleted:  SeverityInfo,
	CategoryMFADisabled:        SeverityWarning,
	CategoryBackupCodeUsed:     SeverityWarning,
	CategoryBackupCodesRenewed: SeverityInfo,
	CategoryBruteForceLock:     SeverityCritical,
	CategoryTokenRefresh:       SeverityInfo,
	CategoryTokenRefreshFailed: SeverityWarning,
	CategoryLogout:             SeverityInfo,
	CategorySessionsRevoked:    SeverityWarning,
	CategoryAccessDenied:       SeverityWarning,
}

// RequestMeta carries the request attributes used for risk scoring and
// audit context. The HTTP layer populates it; the engine reads it from
// the request context.
type RequestMeta struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
	Headers   map[string]string
}

// Event is a recorded security event. Details are redacted before storage.
type Event struct {
	ID            string
	CorrelationID string
	Category      Category
	Severity      Severity
	PrincipalID   string
	TenantID      string
	IP            string
	UserAgent     string
	Endpoint      string
	RiskScore     int
	Details       map[string]string
	At            time.Time
}

// Config bounds the in-memory store and the brute-force guard.
type Config struct {
	MaxEvents     int
	Retention     time.Duration
	SweepInterval time.Duration

	// Brute-force guard parameters.
	FailureWindow time.Duration
	MaxFailures   int
	LockDuration  time.Duration

	// Events at or above this risk score are logged at warn level
	// regardless of category severity.
	HighRiskThreshold int
}

// Stats summarizes the retained events.
type Stats struct {
	Total      int
	ByCategory map[Category]int
	BySeverity map[Severity]int
	HighRisk   int
	LockedIPs  int
}

// Sink receives every recorded event after redaction. The engine wires
// the directory's audit table behind this.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Logger retains recent security events in a bounded ring and emits each
// one to zap and to an optional durable sink.
type Logger struct {
	config Config
	log    *zap.Logger
	sink   Sink
	guard  *Guard

	mu     sync.RWMutex
	events []Event
	head   int
	filled bool

	done chan struct{}
	once sync.Once
}

// NewLogger starts a Logger and its retention sweep goroutine. Close must
// be called to stop the sweeper.
func NewLogger(cfg Config, log *zap.Logger, sink Sink) *Logger {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{
		config: cfg,
		log:    log,
		sink:   sink,
		guard:  newGuard(cfg.FailureWindow, cfg.MaxFailures, cfg.LockDuration),
		events: make([]Event, cfg.MaxEvents),
		done:   make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Close stops the retention sweeper. Safe to call more than once.
func (l *Logger) Close() {
	l.once.Do(func() { close(l.done) })
}

// Guard exposes the brute-force guard backed by this logger.
func (l *Logger) Guard() *Guard { return l.guard }

// Record scores, redacts, stores, and logs an event. The returned event
// carries the assigned ID and risk score.
func (l *Logger) Record(ctx context.Context, category Category, principalID, tenantID string, meta RequestMeta, details map[string]string) Event {
	now := time.Now()
	ev := Event{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		Category:      category,
		Severity:      severityFor(category),
		PrincipalID:   principalID,
		TenantID:      tenantID,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Endpoint:      meta.Endpoint,
		RiskScore:     l.score(category, meta),
		Details:       redact(details),
		At:            now,
	}

	l.mu.Lock()
	l.events[l.head] = ev
	l.head++
	if l.head == len(l.events) {
		l.head = 0
		l.filled = true
	}
	l.mu.Unlock()

	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("category", string(ev.Category)),
		zap.String("severity", string(ev.Severity)),
		zap.String("principal_id", ev.PrincipalID),
		zap.String("tenant_id", ev.TenantID),
		zap.String("ip", ev.IP),
		zap.Int("risk_score", ev.RiskScore),
	}
	switch {
	case ev.Severity == SeverityCritical:
		l.log.Error("security event", fields...)
	case ev.Severity == SeverityWarning || ev.RiskScore >= l.config.HighRiskThreshold:
		l.log.Warn("security event", fields...)
	default:
		l.log.Info("security event", fields...)
	}

	if l.sink != nil {
		if err := l.sink.Record(ctx, ev); err != nil {
			l.log.Warn("security event sink failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	return ev
}

// Score computes the risk score an event with the given category and
// request attributes would receive, without recording anything.
func (l *Logger) Score(category Category, meta RequestMeta) int {
	return l.score(category, meta)
}

// RecentEvents returns up to limit most recent events, newest first.
func (l *Logger) RecentEvents(limit int) []Event {
	return l.filter(limit, func(Event) bool { return true })
}

// EventsByCategory returns up to limit most recent events of one category.
func (l *Logger) EventsByCategory(category Category, limit int) []Event {
	return l.filter(limit, func(ev Event) bool { return ev.Category == category })
}

// EventsByPrincipal returns up to limit most recent events for a principal.
func (l *Logger) EventsByPrincipal(principalID string, limit int) []Event {
	return l.filter(limit, func(ev Event) bool { return ev.PrincipalID == principalID })
}

// HighRiskEvents returns up to limit most recent events at or above the
// configured high-risk threshold.
func (l *Logger) HighRiskEvents(limit int) []Event {
	return l.filter(limit, func(ev Event) bool { return ev.RiskScore >= l.config.HighRiskThreshold })
}

// Stats summarizes the retained events and current IP locks.
func (l *Logger) Stats() Stats {
	s := Stats{
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		LockedIPs:  len(l.guard.LockedIPs()),
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.walk(func(ev Event) bool {
		s.Total++
		s.ByCategory[ev.Category]++
		s.BySeverity[ev.Severity]++
		if ev.RiskScore >= l.config.HighRiskThreshold {
			s.HighRisk++
		}
		return true
	})
	return s
}

func (l *Logger) filter(limit int, keep func(Event) bool) []Event {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Event, 0, limit)
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.walk(func(ev Event) bool {
		if keep(ev) {
			out = append(out, ev)
		}
		return len(out) < limit
	})
	return out
}

// walk visits retained events newest first while fn returns true.
// Caller holds l.mu.
func (l *Logger) walk(fn func(Event) bool) {
	n := l.head
	if l.filled {
		n = len(l.events)
	}
	for i := 0; i < n; i++ {
		idx := l.head - 1 - i
		if idx < 0 {
			idx += len(l.events)
		}
		if l.events[idx].ID == "" {
			continue
		}
		if !fn(l.events[idx]) {
			return
		}
	}
}

func (l *Logger) sweepLoop() {
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep(time.Now())
			l.guard.sweep(time.Now())
		}
	}
}

// sweep drops events older than the retention window by zeroing their
// slots. The ring ordering is untouched.
func (l *Logger) sweep(now time.Time) {
	cutoff := now.Add(-l.config.Retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.events {
		if l.events[i].ID != "" && l.events[i].At.Before(cutoff) {
			l.events[i] = Event{}
		}
	}
}

func severityFor(category Category) Severity {
	if s, ok := categorySeverity[category]; ok {
		return s
	}
	return SeverityInfo
}

// sensitiveDetailKeys are never stored verbatim in event details.
var sensitiveDetailKeys = []string{"password", "token", "secret", "code", "authorization", "cookie"}

func redact(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = v
		lower := strings.ToLower(k)
		for _, s := range sensitiveDetailKeys {
			if strings.Contains(lower, s) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
