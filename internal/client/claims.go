package client

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
)

// Claims is what the client reads from its own token. The signature is not
// checked here; the server does that on every request.
type Claims struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ParseClaims decodes a token without verifying it and checks that the
// claims have the expected shape. SSO tokens may identify the user by sub
// only; that id belongs to GeekBase, so AuthStore.Refresh replaces it.
func ParseClaims(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, ErrMalformedToken
	}

	id, _ := claims["id"].(string)
	if id == "" {
		id, _ = claims.GetSubject()
	}
	if id == "" {
		return Claims{}, ErrMalformedToken
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return Claims{}, ErrMalformedToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrMalformedToken
	}
	return Claims{ID: id, Email: email, ExpiresAt: exp.Time}, nil
}
