package telemetry

import "strings"

// Base risk scores per category. Modifiers from request attributes are
// added on top and the result is clamped to [0, 100].
var categoryBaseScore = map[Category]int{
	CategoryLoginSuccess:       5,
	CategoryLoginFailure:       20,
	CategoryMFAChallenge:       5,
	CategoryMFAVerifySuccess:   5,
	CategoryMFAVerifyFailure:   30,
	CategoryMFASetupInitiated:  5,
	CategoryMFASetupCompleted:  5,
	CategoryMFADisabled:        25,
	CategoryBackupCodeUsed:     15,
	CategoryBackupCodesRenewed: 10,
	CategoryBruteForceLock:     90,
	CategoryTokenRefresh:       5,
	CategoryTokenRefreshFailed: 20,
	CategoryLogout:             0,
	CategorySessionsRevoked:    15,
	CategoryAccessDenied:       25,
}

// Headers any browser sends. Each missing one adds 10, capped at two.
var expectedHeaders = []string{"accept", "accept-language", "accept-encoding"}

// User-agent fragments typical of automation tooling.
var automationAgents = []string{"curl", "wget", "python", "httpclient", "go-http-client", "postman", "bot", "scanner"}

func (l *Logger) score(category Category, meta RequestMeta) int {
	score := categoryBaseScore[category]

	if meta.IP != "" && l.guard.IsSuspicious(meta.IP) {
		score += 25
	}

	ua := strings.ToLower(meta.UserAgent)
	if ua == "" {
		score += 15
	} else {
		for _, frag := range automationAgents {
			if strings.Contains(ua, frag) {
				score += 15
				break
			}
		}
	}

	if meta.Headers != nil {
		missing := 0
		for _, h := range expectedHeaders {
			if _, ok := headerLookup(meta.Headers, h); !ok {
				missing++
			}
		}
		if missing > 2 {
			missing = 2
		}
		score += missing * 10

		fwd, hasFwd := headerLookup(meta.Headers, "x-forwarded-for")
		real, hasReal := headerLookup(meta.Headers, "x-real-ip")
		if hasFwd && hasReal && firstForwarded(fwd) != strings.TrimSpace(real) {
			score += 20
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func headerLookup(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func firstForwarded(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
