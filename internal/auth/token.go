package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims are carried by every NoteGeek access token: {id, email, jti, iat, exp}.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, userID, email string, ttl time.Duration) (string, Claims, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	claims := Claims{}
	if err := parse(secret, token, &claims); err != nil {
		return Claims{}, err
	}
	if claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func parse(secret []byte, token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ExpiresAtTime is the zero time for claims without an expiry.
func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

// SSOClaims are issued by GeekBase. The user id may arrive as "id" or as the
// standard subject.
type SSOClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type SSOIdentity struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

func ParseSSOToken(secret []byte, token string) (SSOIdentity, error) {
	claims := SSOClaims{}
	if err := parse(secret, token, &claims); err != nil {
		return SSOIdentity{}, err
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if id == "" || email == "" {
		return SSOIdentity{}, ErrInvalidToken
	}
	return SSOIdentity{ID: id, Email: email, ExpiresAt: claims.ExpiresAt.Time}, nil
}
