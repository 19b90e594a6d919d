// Package authcore is the authentication security subsystem of the salon
// platform: credential verification, TOTP + backup-code multi-factor
// enrollment and challenge, encrypted secret storage, access/refresh token
// issuance, per-request session gating with tenant isolation, and security
// telemetry with brute-force lockout.
//
// The package is the public surface. It exposes [Engine], [Builder], [Config],
// the [DirectoryProvider] boundary to the platform's principal store, result
// types, and sentinel errors. Subsystems live in subpackages: vault (secret
// encryption and backup-code hashing), token (JWT issuance/validation),
// telemetry (security events and the brute-force guard), middleware (the
// per-request session gate), and internal/stores (Redis-backed transient
// state).
//
// # Architecture boundaries
//
// HTTP routing, page rendering, QR image generation, and registration are
// owned by the surrounding platform. The Engine consumes raw credentials,
// codes, and request attributes carried on the context, and returns
// discriminated results; callers translate those into status codes and cookie
// attributes.
//
// Engine methods are safe for concurrent use after [Builder.Build]. Transient
// state (pending enrollments, trusted devices, MFA-verified markers, refresh
// records) lives in Redis behind internal stores; durable principal and
// enrollment state stays behind [DirectoryProvider]. Every store call carries
// a bounded timeout and fails closed.
package authcore
