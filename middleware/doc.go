// Package middleware adapts the authentication engine to net/http.
//
// The engine itself never touches HTTP. This package owns token
// extraction (cookie first, Authorization header as fallback), the
// stable machine-readable error codes the frontends switch on, and the
// per-request principal context.
package middleware
