package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/rs/zerolog"
)

type contextKey string

// UserIDContextKey stores the authenticated user id in request context.
const UserIDContextKey contextKey = "user_id"

// tokenValidator is the subset of the Auth Service the middleware
// depends on.
type tokenValidator interface {
	Validate(raw string) (string, error)
}

// AuthMiddleware verifies the bearer token on every protected request
// and binds the resulting user id into the request context. Grounded
// on the AuthMiddleware shape used elsewhere in this gateway (header extraction, context
// injection), replacing its pass-through-to-backend stub with real
// signed-token verification via the Auth Service.
type AuthMiddleware struct {
	logger zerolog.Logger
	auth   tokenValidator
}

// NewAuthMiddleware constructs an AuthMiddleware over auth.
func NewAuthMiddleware(logger zerolog.Logger, auth tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, auth: auth}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeProblem(w, apperr.New(apperr.Unauthorized, "missing Authorization header"))
			return
		}

		raw := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			raw = authHeader[len("bearer "):]
		}
		if raw == "" {
			writeProblem(w, apperr.New(apperr.Unauthorized, "empty bearer token"))
			return
		}

		userID, err := am.auth.Validate(raw)
		if err != nil {
			writeProblem(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts the authenticated user id from the request context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDContextKey).(string); ok {
		return v
	}
	return ""
}

// writeProblem writes err as a problem-detail JSON body
// {type, title, status, detail, hint?} using its apperr status, or 500
// for an unclassified error. Used by the auth middleware; the rate
// limiter and timeout middleware write their own bodies.
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
	json.NewEncoder(w).Encode(body)
}
