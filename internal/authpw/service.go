// Package authpw provides email/password registration and login.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"notegeek/internal/store"
)

const MinPasswordLength = 6

var (
	ErrMissingCredentials = errors.New("Email and password are required")
	ErrInvalidEmail       = errors.New("Please provide a valid email address")
	ErrPasswordTooShort   = fmt.Errorf("Password must be at least %d characters", MinPasswordLength)
	ErrUserExists         = errors.New("User already exists")
	ErrInvalidCredentials = errors.New("Invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service provides email/password authentication
type Service struct {
	store  UserStore
	logger zerolog.Logger
	cost   int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// NewService creates a new auth service
func NewService(store UserStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
}

// Credentials are the email and password of a register or login request
type Credentials struct {
	Email    string
	Password string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req Credentials) (store.User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}
	if !emailPattern.MatchString(email) {
		return store.User{}, ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return store.User{}, ErrPasswordTooShort
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.User{Email: email, PasswordHash: string(hash)})
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrUserExists
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login authenticates a user. Unknown emails and wrong passwords are
// indistinguishable to the caller; the log line records which one it was.
func (s *Service) Login(ctx context.Context, req Credentials) (store.User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug().Str("email", email).Msg("login failed: user not found")
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	// SSO-only accounts have no password hash and can never match.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Debug().Str("email", email).Msg("login failed: password mismatch")
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
