// Command authdemo wires the authentication core into a small HTTP server:
// PostgreSQL directory, Redis transient state, zap logging, and the
// middleware gate, with counters exposed at /metrics.
//
// Configuration comes from the environment (a local .env is honored):
//
//	DATABASE_URL            postgres connection string
//	REDIS_ADDR              host:port (default localhost:6379)
//	JWT_ACCESS_SECRET       access-token signing secret
//	JWT_REFRESH_SECRET      refresh-token signing secret
//	MFA_MASTER_KEY          vault master key, 32+ chars
//	LISTEN_ADDR             bind address (default :8085)
//
// Endpoints:
//
//	POST /api/auth/login        {"email","password","tenantSlug"}
//	POST /api/auth/mfa/verify   {"userId","code","trustDevice","fingerprint"}
//	POST /api/auth/refresh      {"refreshToken"}
//	POST /api/auth/logout       {"refreshToken"}
//	GET  /api/auth/me           gated: valid access token required
//	GET  /metrics               Prometheus text exposition
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	authcore "github.com/beautystack/authcore"
	"github.com/beautystack/authcore/metrics/export/prometheus"
	"github.com/beautystack/authcore/middleware"
	"github.com/beautystack/authcore/stores/postgres"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("authdemo exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	cfg := authcore.Config{
		JWT: authcore.JWTConfig{
			AccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
			RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		},
		Vault:          authcore.VaultConfig{MasterKey: os.Getenv("MFA_MASTER_KEY")},
		ProductionMode: os.Getenv("APP_ENV") == "production",
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(postgres.NewDirectory(pool)).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	gate := middleware.NewGate(engine, middleware.SurfaceStaff)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", loginHandler(engine))
	mux.HandleFunc("POST /api/auth/mfa/verify", verifyHandler(engine))
	mux.HandleFunc("POST /api/auth/refresh", refreshHandler(engine))
	mux.HandleFunc("POST /api/auth/logout", logoutHandler(engine))
	mux.Handle("GET /api/auth/me", gate.Authenticate(http.HandlerFunc(meHandler)))
	mux.Handle("GET /metrics", prometheus.NewExporter(engine).Handler())

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8085"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("authdemo listening", zap.String("addr", addr))
	return server.ListenAndServe()
}

func loginHandler(engine *authcore.Engine) http.HandlerFunc {
	type request struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantSlug string `json:"tenantSlug"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		ctx := authcore.WithRequestMeta(r.Context(), middleware.RequestMeta(r))
		result, err := engine.Login(ctx, req.Email, req.Password, req.TenantSlug)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func verifyHandler(engine *authcore.Engine) http.HandlerFunc {
	type request struct {
		UserID      string `json:"userId"`
		Code        string `json:"code"`
		TrustDevice bool   `json:"trustDevice"`
		Fingerprint string `json:"fingerprint"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		ctx := authcore.WithRequestMeta(r.Context(), middleware.RequestMeta(r))
		result, err := engine.VerifyMFA(ctx, req.UserID, req.Code, req.TrustDevice, req.Fingerprint)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.CookieMFAVerified,
			Value:    result.MFAMarker,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
		writeJSON(w, http.StatusOK, result)
	}
}

func refreshHandler(engine *authcore.Engine) http.HandlerFunc {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		ctx := authcore.WithRequestMeta(r.Context(), middleware.RequestMeta(r))
		res, err := engine.Refresh(ctx, req.RefreshToken)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tokens": res.Tokens,
			"user":   res.Principal,
		})
	}
}

func logoutHandler(engine *authcore.Engine) http.HandlerFunc {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		marker := ""
		if c, err := r.Cookie(middleware.CookieMFAVerified); err == nil {
			marker = c.Value
		}
		ctx := authcore.WithRequestMeta(r.Context(), middleware.RequestMeta(r))
		if err := engine.Logout(ctx, req.RefreshToken, marker); err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, claims)
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, authcore.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, authcore.ErrLocked):
		status = http.StatusTooManyRequests
	case errors.Is(err, authcore.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, authcore.ErrAccountInactive), errors.Is(err, authcore.ErrTenantInactive),
		errors.Is(err, authcore.ErrTenantMismatch):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
