package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	authcore "github.com/beautystack/authcore"
)

// Cookie names shared with the platform frontends. The staff dashboard and
// the client portal carry their sessions in separate cookies; a gate built
// for one surface never honors the other's cookie.
const (
	CookieStaffAccess  = "bp_access_token"
	CookieClientAccess = "bp_client_access_token"
	CookieMFAVerified  = "bp_mfa_verified"
)

// Stable error codes the frontends switch on. Messages may change; these
// must not.
const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInsufficientRole   = "INSUFFICIENT_PERMISSIONS"
	CodeTenantRequired     = "TENANT_REQUIRED"
	CodeTenantAccessDenied = "TENANT_ACCESS_DENIED"
	CodeMFASessionRequired = "MFA_SESSION_REQUIRED"
	CodeMFASetupRequired   = "MFA_SETUP_REQUIRED"
)

// Surface selects which session cookie a gate trusts.
type Surface int

const (
	// SurfaceStaff is the salon dashboard: owners, managers, staff.
	SurfaceStaff Surface = iota
	// SurfaceClient is the customer-facing booking portal.
	SurfaceClient
)

// Gate builds the HTTP middleware chain over an engine.
type Gate struct {
	engine  *authcore.Engine
	surface Surface
}

// NewGate returns a gate for one frontend surface.
func NewGate(engine *authcore.Engine, surface Surface) *Gate {
	return &Gate{engine: engine, surface: surface}
}

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated claims placed by
// Authenticate or OptionalAuth.
func PrincipalFromContext(ctx context.Context) (*authcore.AccessClaims, bool) {
	claims, ok := ctx.Value(principalContextKey{}).(*authcore.AccessClaims)
	return claims, ok
}

// Authenticate rejects requests without a valid access token. On success
// the claims land in the request context and the request attributes are
// attached for the engine's telemetry.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := g.extractToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
			return
		}
		claims, err := g.engine.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(g.requestContext(r, claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and passes the
// request through either way. Endpoints that personalize for logged-in
// visitors but work anonymously sit behind this.
func (g *Gate) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := g.extractToken(r); ok {
			if claims, err := g.engine.VerifyAccess(token); err == nil {
				r = r.WithContext(g.requestContext(r, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize allows only the listed roles. Must run after Authenticate.
func (g *Gate) Authorize(roles ...authcore.Role) func(http.Handler) http.Handler {
	allowed := make(map[authcore.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeError(w, http.StatusForbidden, CodeInsufficientRole, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenant rejects principals with no tenant binding. Super admins
// pass; they operate across tenants.
func (g *Gate) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
			return
		}
		if claims.Role != authcore.RoleSuperAdmin && claims.TenantID == "" {
			writeError(w, http.StatusForbidden, CodeTenantRequired, "tenant context required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateTenantAccess compares the tenant the request targets against the
// principal's own tenant. extract pulls the target tenant id from the
// request (path segment, header, query); an empty result means the route
// carries no tenant and the check passes.
func (g *Gate) ValidateTenantAccess(extract func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
				return
			}
			target := extract(r)
			if target == "" || claims.Role == authcore.RoleSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}
			if claims.TenantID != target {
				writeError(w, http.StatusForbidden, CodeTenantAccessDenied, "access to this salon is not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMFAVerified gates routes that demand a live MFA session. Only
// roles under mandatory MFA are checked; everyone else passes.
//
// The two failure codes are distinct on purpose: MFA_SETUP_REQUIRED sends
// the frontend to enrollment, MFA_SESSION_REQUIRED to the challenge prompt.
func (g *Gate) RequireMFAVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
			return
		}
		if claims.Role != authcore.RoleSuperAdmin {
			next.ServeHTTP(w, r)
			return
		}

		status, err := g.engine.MFAStatus(r.Context(), claims.PrincipalID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, CodeInvalidToken, "authentication backend unavailable")
			return
		}
		if !status.Enabled {
			writeError(w, http.StatusForbidden, CodeMFASetupRequired, "mfa enrollment required")
			return
		}

		marker := extractMarker(r)
		verified, err := g.engine.CheckMFAMarker(r.Context(), claims.PrincipalID, marker)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, CodeInvalidToken, "authentication backend unavailable")
			return
		}
		if !verified {
			writeError(w, http.StatusForbidden, CodeMFASessionRequired, "mfa verification required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken reads the surface's own cookie first and falls back to a
// bearer token. The other surface's cookie is never consulted.
func (g *Gate) extractToken(r *http.Request) (string, bool) {
	name := CookieStaffAccess
	if g.surface == SurfaceClient {
		name = CookieClientAccess
	}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func extractMarker(r *http.Request) string {
	if c, err := r.Cookie(CookieMFAVerified); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-MFA-Marker")
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}

// requestContext attaches the claims and the request attributes the engine
// reads for telemetry and fingerprinting.
func (g *Gate) requestContext(r *http.Request, claims *authcore.AccessClaims) context.Context {
	ctx := context.WithValue(r.Context(), principalContextKey{}, claims)
	return authcore.WithRequestMeta(ctx, RequestMeta(r))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
