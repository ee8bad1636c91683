package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"notegeek/internal/config"
	"notegeek/internal/export"
	"notegeek/internal/search"
	"notegeek/internal/store"
)

type testEnv struct {
	t       *testing.T
	cfg     config.Config
	store   store.Store
	memory  *store.MemoryStore
	service *Service
	handler http.Handler
}

type envOption func(*envOptions)

type envOptions struct {
	cfg      config.Config
	store    store.Store
	revoker  Revoker
	uploader export.Uploader
}

func withStore(s store.Store) envOption {
	return func(o *envOptions) { o.store = s }
}

func withRevoker(r Revoker) envOption {
	return func(o *envOptions) { o.revoker = r }
}

func withUploader(u export.Uploader) envOption {
	return func(o *envOptions) { o.uploader = u }
}

func withConfig(fn func(*config.Config)) envOption {
	return func(o *envOptions) { fn(&o.cfg) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	memory := store.NewMemoryStore()
	o := envOptions{
		cfg: config.Config{
			Env:        "test",
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			CORSOrigin: "*",
		},
		store: memory,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := zerolog.Nop()
	searchService := search.NewService(nil, search.NewStoreText(memory), memory, logger)
	exportService := export.NewService(o.store, o.uploader)
	service := New(o.cfg, o.store, searchService, exportService, o.revoker, logger)
	return &testEnv{
		t:       t,
		cfg:     o.cfg,
		store:   o.store,
		memory:  memory,
		service: service,
		handler: NewHTTPServer(service, o.cfg.CORSOrigin, logger).Handler(),
	}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// register creates an account and returns its token.
func (e *testEnv) register(email string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "secret1"})
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("register %s: expected 201, got %d body=%s", email, rr.Code, rr.Body.String())
	}
	return decodeObject(e.t, rr)["token"].(string)
}

func (e *testEnv) createNote(token string, body map[string]any) map[string]any {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/notes", token, body)
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("create note: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	return decodeObject(e.t, rr)
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

type pingFailStore struct {
	*store.MemoryStore
	err error
}

func (s pingFailStore) Ping(context.Context) error { return s.err }

// brokenListStore fails every listing.
type brokenListStore struct {
	store.Store
}

func (brokenListStore) ListNotes(context.Context, string, store.NoteFilter) ([]store.Note, error) {
	return nil, errors.New("boom")
}
