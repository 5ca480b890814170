// Package httpapi wires the chi router and every handler this backend
// exposes: auth, query, finance, paper search/synthesis, quota, and
// provider health. Grounded on this gateway's ordered
// middleware chain, generalized from an LLM-proxy's /v1/* surface to
// this backend's /api/* + /query + /v1/finance/* + /v1/providers/health
// surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/auth"
	"github.com/nocturnal-archive/gateway/internal/config"
	"github.com/nocturnal-archive/gateway/internal/financeadapter"
	"github.com/nocturnal-archive/gateway/internal/keystore"
	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/middleware"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/nocturnal-archive/gateway/internal/papercache"
	"github.com/nocturnal-archive/gateway/internal/pipeline"
	"github.com/nocturnal-archive/gateway/internal/quota"
	"github.com/nocturnal-archive/gateway/internal/redisclient"
)

// version is the build identifier surfaced by GET /api/health. It is
// not wired to a build-info mechanism here; operators can override it
// with the VERSION environment variable at deploy time.
var version = envOr("VERSION", "dev")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// redisOrNil returns a genuinely nil interface when c is nil, avoiding
// the typed-nil-in-interface trap: passing a nil *redisclient.Client
// straight into an interface parameter would make the interface
// non-nil, so RateLimiter would try to use a nil client and panic.
func redisOrNil(c *redisclient.Client) interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
} {
	if c == nil {
		return nil
	}
	return c
}

// Deps bundles every already-constructed component the router needs.
type Deps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	AuthSvc   *auth.Service
	Ledger    *quota.Ledger
	Keys      *keystore.Store
	Finance   *financeadapter.Adapter
	Papers    *paperadapter.Adapter
	PaperByID *papercache.Cache
	Pipeline  *pipeline.Pipeline
	Router    *llmrouter.Router
	Redis     *redisclient.Client // optional; nil means in-memory rate limiting
}

// NewRouter builds the full chi.Router: public routes first, then the
// authenticated /api, /query, /v1/finance group behind the auth +
// rate-limit + timeout chain.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORSMiddleware([]string{"*"}))
	r.Use(middleware.SecurityHeadersMiddleware)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(maxBodySize(d.Config.MaxBodyBytes))

	r.Get("/api/health", healthHandler)

	authH := &authHandler{svc: d.AuthSvc, ceiling: d.Ledger.Ceiling(), logger: d.Logger}
	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)

	authMW := middleware.NewAuthMiddleware(d.Logger, d.AuthSvc)
	rateLimiter := middleware.NewRateLimiter(d.Logger, d.Config.RateLimitEnabled, d.Config.RateLimitRPM, d.Config.RateLimitBurst, redisOrNil(d.Redis))
	timeoutMW := middleware.NewTimeoutMiddleware(d.Logger, d.Config.RequestDeadline)

	r.Group(func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(timeoutMW.Handler)

		queryH := &queryHandler{pipeline: d.Pipeline, logger: d.Logger}
		r.Post("/query", queryH.Handle)

		financeH := &financeHandler{finance: d.Finance, logger: d.Logger}
		r.Get("/v1/finance/calc/{ticker}/{metric}", financeH.Calc)

		searchH := &searchHandler{papers: d.Papers, cache: d.PaperByID, logger: d.Logger}
		r.Post("/api/search", searchH.Search)

		synthH := &synthesizeHandler{cache: d.PaperByID, router: d.Router}
		r.Post("/api/synthesize", synthH.Synthesize)

		quotaH := &quotaHandler{ledger: d.Ledger}
		r.Get("/api/quota", quotaH.Get)

		providersH := &providersHandler{keys: d.Keys}
		r.Get("/v1/providers/health", providersH.Health)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// writeJSON encodes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem renders err as an application/problem+json body per
// this backend's error-shape convention: {type, title, status, detail, hint?}.
func writeProblem(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	kind := "INTERNAL"
	detail := err.Error()
	hint := ""
	if ae, ok := apperr.As(err); ok {
		kind = string(ae.Kind)
		detail = ae.Detail
		hint = ae.Hint
	}
	body := map[string]interface{}{
		"type":   kind,
		"title":  kind,
		"status": status,
		"detail": detail,
	}
	if hint != "" {
		body["hint"] = hint
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
