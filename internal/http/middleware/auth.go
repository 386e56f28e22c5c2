package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/auth"
)

type contextKey string

const (
	identityKey    contextKey = "identity"
	adminClaimsKey contextKey = "adminClaims"
)

// AuthEventRecorder receives auth audit events. Satisfied by
// auth.EventsRepository; nil disables auditing.
type AuthEventRecorder interface {
	Insert(ctx context.Context, userID, email, eventType, detail string)
}

// Authenticate resolves the optional requester identity from a bearer token.
// Anonymous requests pass through; a present-but-invalid token is rejected so
// a stale front-end session fails loudly instead of silently degrading to
// anonymous.
func Authenticate(secret string, events AuthEventRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") || secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := auth.ParseIdentity(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				if events != nil {
					events.Insert(r.Context(), "", "", auth.EventTokenError, err.Error())
				}
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if events != nil {
				events.Insert(r.Context(), id.UserID, id.Email, auth.EventLogin, r.URL.Path)
			}
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the resolved identity, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// AdminJWT enforces an HMAC-signed JWT on admin endpoints. Unlike
// Authenticate this never lets anonymous requests through.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
