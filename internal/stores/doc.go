// Package stores provides Redis-backed, short-lived record stores for the
// authentication flows: pending MFA enrollments, trusted devices,
// MFA-verified session markers, and persisted refresh-token records.
//
// Each store keeps a JSON-encoded record under a prefixed key with a TTL.
// Records are single-use where the flow demands it: pending enrollments are
// consumed on completion, refresh records are deleted on rotation.
//
// This package owns persistence only. It does not generate secrets, verify
// codes, or make authentication decisions; those belong to the engine.
package stores
