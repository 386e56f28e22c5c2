// Package auth resolves who is talking to the assistant. Requests arrive
// with an HMAC-signed JWT minted by the intranet front-end; anonymous
// requests are allowed and fall back to session headers.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the front-end mints for a logged-in user.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity is the resolved requester.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// DisplayName returns what the assistant should call the user: the claim
// name, else the local part of the email, else a friendly fallback.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Email != "" {
		if at := strings.Index(i.Email, "@"); at > 0 {
			return i.Email[:at]
		}
		return i.Email
	}
	return "parcera"
}

// ParseIdentity validates the token and extracts the identity. Only HMAC
// signatures are accepted.
func ParseIdentity(tokenString, secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, fmt.Errorf("auth: jwt secret not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token")
	}

	return Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}
