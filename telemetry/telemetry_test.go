package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T, cfg Config) *Logger {
	t.Helper()
	l := NewLogger(cfg, zap.NewNop(), nil)
	t.Cleanup(l.Close)
	return l
}

func browserMeta(ip string) RequestMeta {
	return RequestMeta{
		IP:        ip,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		Endpoint:  "/api/auth/login",
		Headers: map[string]string{
			"Accept":          "application/json",
			"Accept-Language": "en-US",
			"Accept-Encoding": "gzip",
		},
	}
}

func TestRecordAssignsIDAndSeverity(t *testing.T) {
	l := testLogger(t, Config{})
	ev := l.Record(context.Background(), CategoryLoginFailure, "user-1", "tenant-1", browserMeta("10.0.0.1"), nil)
	require.NotEmpty(t, ev.ID)
	require.NotEmpty(t, ev.CorrelationID)
	assert.Equal(t, SeverityWarning, ev.Severity)
	assert.Equal(t, "user-1", ev.PrincipalID)
}

func TestRecordRedactsSensitiveDetails(t *testing.T) {
	l := testLogger(t, Config{})
	ev := l.Record(context.Background(), CategoryLoginFailure, "user-1", "", browserMeta("10.0.0.1"), map[string]string{
		"password":     "hunter2",
		"backup_code":  "abcdef12",
		"attemptCount": "3",
	})
	assert.Equal(t, "[REDACTED]", ev.Details["password"])
	assert.Equal(t, "[REDACTED]", ev.Details["backup_code"])
	assert.Equal(t, "3", ev.Details["attemptCount"])
}

func TestRiskScoreModifiers(t *testing.T) {
	l := testLogger(t, Config{})

	base := l.Score(CategoryLoginFailure, browserMeta("10.0.0.1"))
	assert.Equal(t, 20, base)

	bot := browserMeta("10.0.0.1")
	bot.UserAgent = "curl/8.4.0"
	assert.Equal(t, 35, l.Score(CategoryLoginFailure, bot))

	bare := browserMeta("10.0.0.1")
	bare.Headers = map[string]string{}
	// three missing headers count as two
	assert.Equal(t, 40, l.Score(CategoryLoginFailure, bare))

	spoofed := browserMeta("10.0.0.1")
	spoofed.Headers["X-Forwarded-For"] = "1.2.3.4, 10.0.0.1"
	spoofed.Headers["X-Real-IP"] = "5.6.7.8"
	assert.Equal(t, 40, l.Score(CategoryLoginFailure, spoofed))
}

func TestRiskScoreClamped(t *testing.T) {
	l := testLogger(t, Config{})
	g := l.Guard()
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("9.9.9.9", now)
	}
	meta := RequestMeta{IP: "9.9.9.9", Headers: map[string]string{
		"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2",
	}}
	score := l.Score(CategoryBruteForceLock, meta)
	assert.Equal(t, 100, score)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	l := testLogger(t, Config{MaxEvents: 8})
	l.Record(context.Background(), CategoryLoginFailure, "a", "", browserMeta("10.0.0.1"), nil)
	l.Record(context.Background(), CategoryLoginSuccess, "b", "", browserMeta("10.0.0.1"), nil)
	got := l.RecentEvents(10)
	require.Len(t, got, 2)
	assert.Equal(t, CategoryLoginSuccess, got[0].Category)
	assert.Equal(t, CategoryLoginFailure, got[1].Category)
}

func TestRingOverwritesOldest(t *testing.T) {
	l := testLogger(t, Config{MaxEvents: 3})
	for i := 0; i < 5; i++ {
		l.Record(context.Background(), CategoryLoginFailure, "u", "", browserMeta("10.0.0.1"), nil)
	}
	assert.Len(t, l.RecentEvents(10), 3)
}

func TestEventsByCategoryAndPrincipal(t *testing.T) {
	l := testLogger(t, Config{})
	l.Record(context.Background(), CategoryLoginFailure, "alice", "", browserMeta("10.0.0.1"), nil)
	l.Record(context.Background(), CategoryLogout, "bob", "", browserMeta("10.0.0.2"), nil)
	l.Record(context.Background(), CategoryLoginFailure, "alice", "", browserMeta("10.0.0.1"), nil)

	assert.Len(t, l.EventsByCategory(CategoryLoginFailure, 10), 2)
	assert.Len(t, l.EventsByPrincipal("bob", 10), 1)
}

func TestHighRiskEventsAndStats(t *testing.T) {
	l := testLogger(t, Config{HighRiskThreshold: 70})
	g := l.Guard()
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("8.8.8.8", now)
	}
	l.Record(context.Background(), CategoryBruteForceLock, "", "", RequestMeta{IP: "8.8.8.8"}, nil)
	l.Record(context.Background(), CategoryLogout, "u", "", browserMeta("10.0.0.1"), nil)

	require.Len(t, l.HighRiskEvents(10), 1)
	s := l.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.HighRisk)
	assert.Equal(t, 1, s.ByCategory[CategoryLogout])
	assert.Equal(t, 1, s.LockedIPs)
}

func TestSweepDropsExpiredEvents(t *testing.T) {
	l := testLogger(t, Config{Retention: time.Hour})
	l.Record(context.Background(), CategoryLogout, "u", "", browserMeta("10.0.0.1"), nil)
	l.sweep(time.Now().Add(2 * time.Hour))
	assert.Empty(t, l.RecentEvents(10))
}

func TestGuardLocksAfterLimit(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 4; i++ {
		assert.False(t, g.RecordFailure("1.2.3.4", now))
	}
	assert.False(t, g.IsLocked("1.2.3.4", now))
	assert.True(t, g.RecordFailure("1.2.3.4", now))
	assert.True(t, g.IsLocked("1.2.3.4", now))
}

func TestGuardLockExpiresLazily(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	assert.True(t, g.IsLocked("1.2.3.4", now.Add(14*time.Minute)))
	assert.False(t, g.IsLocked("1.2.3.4", now.Add(16*time.Minute)))
	// suspicion persists past the lock
	assert.True(t, g.IsSuspicious("1.2.3.4"))
}

func TestGuardWindowSlides(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 4; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	// old failures age out, the fifth attempt does not trip the lock
	assert.False(t, g.RecordFailure("1.2.3.4", now.Add(11*time.Minute)))
	assert.False(t, g.IsLocked("1.2.3.4", now.Add(11*time.Minute)))
}

func TestGuardSuccessClearsWindow(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 4; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	g.RecordSuccess("1.2.3.4", now)
	assert.False(t, g.RecordFailure("1.2.3.4", now))
	assert.False(t, g.IsLocked("1.2.3.4", now))
}

func TestGuardSweepPurgesIdleEntries(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	require.True(t, g.IsSuspicious("1.2.3.4"))

	// Idle for less than twice the window: the entry stays, suspicion and all.
	g.sweep(now.Add(15 * time.Minute))
	assert.True(t, g.IsSuspicious("1.2.3.4"))

	// Past twice the window with no further attempts, the entry ages out
	// entirely. One sweep per day for a year must not accumulate anything.
	for day := 1; day <= 365; day++ {
		g.sweep(now.Add(time.Duration(day) * 24 * time.Hour))
	}
	assert.False(t, g.IsSuspicious("1.2.3.4"))
	assert.Empty(t, g.LockedIPs())
	g.mu.Lock()
	assert.Empty(t, g.entries)
	g.mu.Unlock()
}

func TestGuardSweepSparesActiveLock(t *testing.T) {
	g := newGuard(time.Minute, 5, 24*time.Hour)
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	// The lock outlives twice the window; a sweep must not release it early.
	g.sweep(now.Add(3 * time.Minute))
	assert.True(t, g.IsLocked("1.2.3.4", now.Add(3*time.Minute)))
}

func TestGuardUnlock(t *testing.T) {
	g := newGuard(10*time.Minute, 5, 15*time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.RecordFailure("1.2.3.4", now)
	}
	g.Unlock("1.2.3.4")
	assert.False(t, g.IsLocked("1.2.3.4", now))
	assert.False(t, g.IsSuspicious("1.2.3.4"))
}
