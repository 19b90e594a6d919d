package authcore

import (
	"context"

	"github.com/beautystack/authcore/telemetry"
)

type requestMetaContextKey struct{}

// WithRequestMeta attaches the request attributes (ip, user agent, endpoint,
// headers) to ctx. The Engine reads them for telemetry, brute-force tracking,
// and device fingerprinting; absence is tolerated everywhere.
func WithRequestMeta(ctx context.Context, meta telemetry.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// WithClientIP attaches only the caller's IP address to ctx. Shorthand for
// callers that have no full request to describe.
func WithClientIP(ctx context.Context, ip string) context.Context {
	meta := requestMetaFromContext(ctx)
	meta.IP = ip
	return WithRequestMeta(ctx, meta)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	meta := requestMetaFromContext(ctx)
	meta.UserAgent = userAgent
	return WithRequestMeta(ctx, meta)
}

func requestMetaFromContext(ctx context.Context) telemetry.RequestMeta {
	if ctx == nil {
		return telemetry.RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaContextKey{}).(telemetry.RequestMeta)
	return meta
}

func clientIPFromContext(ctx context.Context) string {
	return requestMetaFromContext(ctx).IP
}

func userAgentFromContext(ctx context.Context) string {
	return requestMetaFromContext(ctx).UserAgent
}
