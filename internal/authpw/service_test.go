package authpw

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"notegeek/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users     map[string]store.User
	lookupErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	if _, ok := m.users[user.Email]; ok {
		return store.User{}, store.ErrDuplicate
	}
	user.ID = "user-" + user.Email
	m.users[user.Email] = user
	return user, nil
}

func newTestService(st UserStore, buf *bytes.Buffer) *Service {
	logger := zerolog.Nop()
	if buf != nil {
		logger = zerolog.New(buf).Level(zerolog.DebugLevel)
	}
	svc := NewService(st, logger)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegister(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st, nil)

	user, err := svc.Register(context.Background(), Credentials{Email: "  Avery@Example.COM ", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "avery@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.PasswordHash == "secret1" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")); err != nil {
		t.Fatalf("stored hash does not match: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name string
		req  Credentials
		want error
	}{
		{name: "missing email", req: Credentials{Password: "secret1"}, want: ErrMissingCredentials},
		{name: "missing password", req: Credentials{Email: "a@example.com"}, want: ErrMissingCredentials},
		{name: "bad email", req: Credentials{Email: "not-an-email", Password: "secret1"}, want: ErrInvalidEmail},
		{name: "five char password", req: Credentials{Email: "a@example.com", Password: "12345"}, want: ErrPasswordTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestService(newMockUserStore(), nil).Register(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if !strings.Contains(ErrPasswordTooShort.Error(), "at least 6 characters") {
		t.Fatalf("unexpected length message %q", ErrPasswordTooShort)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(newMockUserStore(), nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, Credentials{Email: "a@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	_, err := svc.Register(ctx, Credentials{Email: "A@example.com", Password: "secret2"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if err.Error() != "User already exists" {
		t.Fatalf("unexpected message %q", err)
	}
}

func TestRegisterSurfacesStoreFailures(t *testing.T) {
	st := newMockUserStore()
	st.lookupErr = errors.New("connection reset")
	_, err := newTestService(st, nil).Register(context.Background(), Credentials{Email: "a@example.com", Password: "secret1"})
	if err == nil || errors.Is(err, ErrUserExists) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(newMockUserStore(), &logs)
	ctx := context.Background()

	registered, err := svc.Register(ctx, Credentials{Email: "a@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, err := svc.Login(ctx, Credentials{Email: "A@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
	}

	_, err = svc.Login(ctx, Credentials{Email: "a@example.com", Password: "wrong-pass"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	_, err = svc.Login(ctx, Credentials{Email: "nobody@example.com", Password: "secret1"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if !strings.HasPrefix(ErrInvalidCredentials.Error(), "Invalid") {
		t.Fatalf("unexpected message %q", ErrInvalidCredentials)
	}

	if !strings.Contains(logs.String(), "password mismatch") || !strings.Contains(logs.String(), "user not found") {
		t.Fatalf("expected internal log to name the failure cause, got %s", logs.String())
	}

	_, err = svc.Login(ctx, Credentials{Email: "a@example.com"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestLoginRejectsSSOOnlyAccount(t *testing.T) {
	st := newMockUserStore()
	st.users["sso@example.com"] = store.User{ID: "u1", Email: "sso@example.com", SSOID: "gb-1"}
	_, err := newTestService(st, nil).Login(context.Background(), Credentials{Email: "sso@example.com", Password: "anything"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
