package telemetry

import (
	"sync"
	"time"
)

// Guard tracks authentication failures per client IP over a sliding
// window and locks the IP once the limit is reached. Locks clear lazily
// on read and eagerly during sweeps.
type Guard struct {
	window      time.Duration
	maxFailures int
	lockFor     time.Duration

	mu      sync.Mutex
	entries map[string]*guardEntry
}

type guardEntry struct {
	failures    []time.Time
	lockedTill  time.Time
	suspicious  bool
	lastAttempt time.Time
}

func newGuard(window time.Duration, maxFailures int, lockFor time.Duration) *Guard {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if lockFor <= 0 {
		lockFor = 15 * time.Minute
	}
	return &Guard{
		window:      window,
		maxFailures: maxFailures,
		lockFor:     lockFor,
		entries:     make(map[string]*guardEntry),
	}
}

// RecordFailure registers a failed attempt from ip. It returns true when
// this attempt tripped the lock, so callers can emit the lock event once.
func (g *Guard) RecordFailure(ip string, now time.Time) bool {
	if ip == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ip]
	if e == nil {
		e = &guardEntry{}
		g.entries[ip] = e
	}
	e.lastAttempt = now
	if now.Before(e.lockedTill) {
		return false
	}
	cutoff := now.Add(-g.window)
	kept := e.failures[:0]
	for _, t := range e.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.failures = append(kept, now)
	if len(e.failures) >= g.maxFailures {
		e.lockedTill = now.Add(g.lockFor)
		e.suspicious = true
		e.failures = e.failures[:0]
		return true
	}
	return false
}

// RecordSuccess clears the failure window for ip. An active lock is not
// lifted by a success.
func (g *Guard) RecordSuccess(ip string, now time.Time) {
	if ip == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if e := g.entries[ip]; e != nil {
		e.lastAttempt = now
		if !now.Before(e.lockedTill) {
			e.failures = e.failures[:0]
		}
	}
}

// IsLocked reports whether ip is currently locked. An expired lock is
// cleared on the spot.
func (g *Guard) IsLocked(ip string, now time.Time) bool {
	if ip == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ip]
	if e == nil {
		return false
	}
	if e.lockedTill.IsZero() {
		return false
	}
	if now.Before(e.lockedTill) {
		return true
	}
	e.lockedTill = time.Time{}
	return false
}

// IsSuspicious reports whether ip has ever tripped a lock. The flag
// persists past lock expiry and feeds risk scoring.
func (g *Guard) IsSuspicious(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ip]
	return e != nil && e.suspicious
}

// LockedIPs lists the IPs currently locked.
func (g *Guard) LockedIPs() []string {
	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for ip, e := range g.entries {
		if now.Before(e.lockedTill) {
			out = append(out, ip)
		}
	}
	return out
}

// Unlock clears any lock and failure history for ip. Administrative use.
func (g *Guard) Unlock(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, ip)
}

// sweep purges entries idle for twice the window. The suspicion flag ages
// out with its entry; an active lock always survives the sweep.
func (g *Guard) sweep(now time.Time) {
	cutoff := now.Add(-2 * g.window)
	g.mu.Lock()
	defer g.mu.Unlock()
	for ip, e := range g.entries {
		if now.Before(e.lockedTill) {
			continue
		}
		if e.lastAttempt.Before(cutoff) {
			delete(g.entries, ip)
		}
	}
}
