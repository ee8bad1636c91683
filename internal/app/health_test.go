package app

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notegeek/internal/store"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if decodeObject(t, rr)["ok"] != true {
		t.Fatalf("expected ok=true, got %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/api/ready", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if decodeObject(t, rr)["status"] != "ready" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	env := newTestEnv(t, withStore(pingFailStore{MemoryStore: store.NewMemoryStore(), err: errors.New("connection refused")}))
	rr := env.do(http.MethodGet, "/api/ready", "", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)

	payload := decodeObject(t, rr)
	if payload["ok"] != false || payload["status"] != "not_ready" {
		t.Fatalf("unexpected body %v", payload)
	}
	database := payload["checks"].(map[string]any)["database"].(map[string]any)
	if database["error"] != "connection refused" {
		t.Fatalf("expected ping error surfaced, got %v", database)
	}
}

func TestPreflightAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodOptions, "/api/notes", "", nil)
	expectStatus(t, rr, http.StatusNoContent)
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected CORS methods on preflight")
	}

	missing := env.do(http.MethodGet, "/api/nope", "", nil)
	expectStatus(t, missing, http.StatusNotFound)

	// Tag rename and delete are not served.
	token := env.register("avery@example.com")
	expectStatus(t, env.do(http.MethodPut, "/api/tags/rename", token, map[string]string{"from": "a", "to": "b"}), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/api/tags/work", token, nil), http.StatusNotFound)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id echoed, got %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestExportStreamsArchive(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	env.createNote(token, map[string]any{"title": "First", "content": "hello"})
	env.createNote(token, map[string]any{"title": "Hidden", "content": "secret", "isLocked": true, "password": "1234"})

	rr := env.do(http.MethodGet, "/api/export", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Content-Type") != "application/gzip" {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), ".tar.gz") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}

	gz, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	reader := tar.NewReader(gz)
	var files int
	var body strings.Builder
	for {
		_, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		files++
		if _, err := io.Copy(&body, reader); err != nil {
			t.Fatalf("read entry: %v", err)
		}
	}
	if files != 2 {
		t.Fatalf("expected 2 files, got %d", files)
	}
	if !strings.Contains(body.String(), "hello") || strings.Contains(body.String(), "secret") {
		t.Fatalf("unexpected archive content: %s", body.String())
	}
}

func TestBackupWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	rr := env.do(http.MethodPost, "/api/backup", token, nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if decodeObject(t, rr)["code"] != "SERVICE_UNAVAILABLE" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

type memoryUploader struct {
	keys []string
}

func (u *memoryUploader) Bucket() string { return "test-bucket" }

func (u *memoryUploader) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	u.keys = append(u.keys, key)
	return nil
}

func TestBackupUploadsArchive(t *testing.T) {
	uploader := &memoryUploader{}
	env := newTestEnv(t, withUploader(uploader))
	token := env.register("avery@example.com")
	env.createNote(token, map[string]any{"content": "hello"})

	rr := env.do(http.MethodPost, "/api/backup", token, nil)
	expectStatus(t, rr, http.StatusCreated)
	payload := decodeObject(t, rr)
	if payload["bucket"] != "test-bucket" || payload["notes"] != float64(1) {
		t.Fatalf("unexpected backup result %v", payload)
	}
	key, _ := payload["key"].(string)
	if len(uploader.keys) != 1 || uploader.keys[0] != key || !strings.HasPrefix(key, "backups/") {
		t.Fatalf("expected upload under backups/, got %v (%q)", uploader.keys, key)
	}
}
