package middleware

import (
	"net"
	"net/http"

	"github.com/beautystack/authcore/telemetry"
)

// Headers the engine's risk scorer looks at.
var scoredHeaders = []string{
	"Accept",
	"Accept-Language",
	"Accept-Encoding",
	"X-Forwarded-For",
	"X-Real-IP",
}

// RequestMeta captures the request attributes the engine uses for
// telemetry, risk scoring, and brute-force tracking. Unauthenticated
// handlers (login, MFA verify) should attach this themselves via
// [authcore.WithRequestMeta].
func RequestMeta(r *http.Request) telemetry.RequestMeta {
	headers := make(map[string]string, len(scoredHeaders))
	for _, name := range scoredHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	return telemetry.RequestMeta{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
		Headers:   headers,
	}
}

// ClientIP strips the port from RemoteAddr. Proxy headers are deliberately
// not trusted here; terminate them at the edge and rewrite RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
