package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/briefcast/briefcast/internal/middleware"
)

// Middleware validates Bearer tokens and records the token subject in the
// request context, where the logging and rate limit middleware pick it up.
// Requests without an Authorization header pass through as anonymous; the
// digest API is readable without credentials, but authenticated clients get
// per-subject rate limit buckets instead of sharing a per-IP bucket.
// A present but invalid token is rejected with 401.
func Middleware(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeAuthError(w, r, "authorization header must use Bearer scheme")
				return
			}

			claims, err := svc.ValidateToken(strings.TrimSpace(tokenString))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token has expired"
				}
				writeAuthError(w, r, msg)
				return
			}

			ctx := middleware.SetSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth is like Middleware but rejects anonymous requests. Used for
// endpoints that must not be publicly readable.
func RequireAuth(svc *JWTService) func(http.Handler) http.Handler {
	authn := Middleware(svc)
	return func(next http.Handler) http.Handler {
		return authn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if middleware.GetSubject(r.Context()) == "" {
				writeAuthError(w, r, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, msg string) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(r.Context(), "auth_failed"))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "auth_failed",
			"message": msg,
		},
	})
}
