package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/auth"
)

type recordedEvent struct {
	userID, email, eventType string
}

type fakeEvents struct {
	events []recordedEvent
}

func (f *fakeEvents) Insert(_ context.Context, userID, email, eventType, _ string) {
	f.events = append(f.events, recordedEvent{userID, email, eventType})
}

func signedUserToken(t *testing.T, secret, subject, name, email string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		Name:  name,
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticateAnonymousPassesThrough(t *testing.T) {
	mw := Authenticate("secret", nil)
	req := httptest.NewRequest(http.MethodPost, "/ai/chat", nil)
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity for anonymous request")
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	events := &fakeEvents{}
	mw := Authenticate("secret", events)
	req := httptest.NewRequest(http.MethodPost, "/ai/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "secret", "user-42", "Valentina", "valentina@digix.co"))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if id.UserID != "user-42" || id.Name != "Valentina" {
			t.Fatalf("unexpected identity: %+v", id)
		}
	})).ServeHTTP(rec, req)

	if len(events.events) != 1 || events.events[0].eventType != auth.EventLogin {
		t.Fatalf("expected one login event, got %+v", events.events)
	}
}

func TestAuthenticateInvalidTokenRejected(t *testing.T) {
	events := &fakeEvents{}
	mw := Authenticate("secret", events)
	req := httptest.NewRequest(http.MethodPost, "/ai/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "wrong", "user-42", "", ""))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run with an invalid token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if len(events.events) != 1 || events.events[0].eventType != auth.EventTokenError {
		t.Fatalf("expected one token_error event, got %+v", events.events)
	}
}

func TestAdminJWTMissingSecret(t *testing.T) {
	mw := AdminJWT("")
	req := httptest.NewRequest(http.MethodGet, "/admin/auth-events", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	mw := AdminJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/admin/auth-events", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "secret", "admin-user", "", ""))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := AdminClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected admin claims in context")
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
}
