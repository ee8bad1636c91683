package client

import (
	"context"
	"net/http"
	"sync"
	"time"
)

type AuthState struct {
	User    *User
	Token   string
	Loading bool
	Err     error
}

func (s AuthState) LoggedIn() bool {
	return s.Token != ""
}

// AuthStore owns the session. Every change to the token is pushed to the
// client, so the other stores see it on their next request.
type AuthStore struct {
	client *Client
	now    func() time.Time

	mu    sync.RWMutex
	state AuthState
}

func NewAuthStore(c *Client) *AuthStore {
	return &AuthStore{client: c, now: time.Now}
}

func (s *AuthStore) Snapshot() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.User != nil {
		u := *state.User
		state.User = &u
	}
	return state
}

func (s *AuthStore) begin() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = nil
	s.mu.Unlock()
}

func (s *AuthStore) finish(resp AuthResponse, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	user := resp.User
	s.state = AuthState{User: &user, Token: resp.Token}
	s.client.SetToken(resp.Token)
	return nil
}

func (s *AuthStore) Register(ctx context.Context, email, password string) error {
	s.begin()
	resp, err := s.client.Register(ctx, email, password)
	return s.finish(resp, err)
}

func (s *AuthStore) Login(ctx context.Context, email, password string) error {
	s.begin()
	resp, err := s.client.Login(ctx, email, password)
	return s.finish(resp, err)
}

func (s *AuthStore) LoginSSO(ctx context.Context, token string) error {
	s.begin()
	resp, err := s.client.ValidateSSO(ctx, token)
	return s.finish(resp, err)
}

// Restore adopts a saved token if its claims are well formed and not yet
// expired. It does not contact the server.
func (s *AuthStore) Restore(token string) error {
	claims, err := ParseClaims(token)
	if err != nil {
		s.clear(err)
		return err
	}
	if claims.Expired(s.now()) {
		s.clear(ErrTokenExpired)
		return ErrTokenExpired
	}
	s.mu.Lock()
	s.state = AuthState{User: &User{ID: claims.ID, Email: claims.Email}, Token: token}
	s.mu.Unlock()
	s.client.SetToken(token)
	return nil
}

// Refresh replaces the user read from the token with the account the server
// knows. A rejected token ends the session; any other failure keeps it.
func (s *AuthStore) Refresh(ctx context.Context) error {
	user, err := s.client.Me(ctx)
	if IsStatus(err, http.StatusUnauthorized) {
		s.clear(err)
		return err
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.Token != "" {
		s.state.User = &user
	}
	s.mu.Unlock()
	return nil
}

// Logout asks the server to revoke the token and clears local state even if
// that request fails.
func (s *AuthStore) Logout(ctx context.Context) error {
	err := s.client.Logout(ctx)
	s.clear(nil)
	return err
}

func (s *AuthStore) clear(cause error) {
	s.mu.Lock()
	s.state = AuthState{Err: cause}
	s.mu.Unlock()
	s.client.SetToken("")
}
