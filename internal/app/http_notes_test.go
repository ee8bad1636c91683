package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"notegeek/internal/config"
	"notegeek/internal/store"
)

func TestCreateNoteDefaults(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")

	note := env.createNote(token, map[string]any{"content": "hello"})
	if note["title"] != "Untitled Note" {
		t.Fatalf("expected default title, got %v", note["title"])
	}
	if note["type"] != "text" {
		t.Fatalf("expected default type text, got %v", note["type"])
	}
	if tags, ok := note["tags"].([]any); !ok || len(tags) != 0 {
		t.Fatalf("expected empty tags array, got %#v", note["tags"])
	}
	if note["isLocked"] != false || note["isEncrypted"] != false {
		t.Fatalf("expected unlocked note, got %v", note)
	}
	for _, key := range []string{"id", "user", "createdAt", "updatedAt"} {
		if v, _ := note[key].(string); v == "" {
			t.Fatalf("expected %s, got %v", key, note)
		}
	}
	if note["content"] != "hello" {
		t.Fatalf("expected content, got %v", note["content"])
	}
}

func TestCreateNoteValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")

	cases := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{name: "empty content", body: map[string]any{"content": ""}, message: "Content is required"},
		{name: "bad type", body: map[string]any{"content": "x", "type": "video"}, message: "type"},
		{name: "duplicate tags", body: map[string]any{"content": "x", "tags": []string{"a", "a"}}, message: "tag"},
		{name: "tag with space", body: map[string]any{"content": "x", "tags": []string{"a b"}}, message: "tag"},
		{name: "short lock password", body: map[string]any{"content": "x", "isLocked": true, "password": "abc"}, message: "at least 4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/api/notes", token, tc.body)
			expectStatus(t, rr, http.StatusBadRequest)
			payload := decodeObject(t, rr)
			message, _ := payload["message"].(string)
			if !strings.Contains(strings.ToLower(message), strings.ToLower(tc.message)) {
				t.Fatalf("expected message containing %q, got %q", tc.message, message)
			}
			if _, ok := payload["details"].([]any); !ok {
				t.Fatalf("expected field details, got %v", payload["details"])
			}
		})
	}
}

func TestLockedNoteIsRedactedAndImmutable(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")

	created := env.createNote(token, map[string]any{
		"title":    "Diary",
		"content":  "secret thoughts",
		"tags":     []string{"private"},
		"isLocked": true,
		"password": "hunter2",
	})
	if _, present := created["content"]; present {
		t.Fatalf("create response must not carry locked content: %v", created)
	}
	id := created["id"].(string)

	stored, err := env.store.GetNote(context.Background(), created["user"].(string), id)
	if err != nil {
		t.Fatalf("load stored note: %v", err)
	}
	if stored.LockHash == "" || stored.LockHash == "hunter2" {
		t.Fatalf("expected hashed lock password, got %q", stored.LockHash)
	}

	rr := env.do(http.MethodGet, "/api/notes/"+id, token, nil)
	expectStatus(t, rr, http.StatusOK)
	view := decodeObject(t, rr)
	if _, present := view["content"]; present {
		t.Fatalf("locked note leaked content: %v", view)
	}
	if !strings.Contains(view["message"].(string), "locked") {
		t.Fatalf("expected lock message, got %v", view["message"])
	}
	if view["title"] != "Diary" || view["isLocked"] != true {
		t.Fatalf("expected metadata, got %v", view)
	}

	update := env.do(http.MethodPut, "/api/notes/"+id, token, map[string]any{"content": "changed"})
	expectStatus(t, update, http.StatusForbidden)
	remove := env.do(http.MethodDelete, "/api/notes/"+id, token, nil)
	expectStatus(t, remove, http.StatusForbidden)

	list := decodeList(t, env.do(http.MethodGet, "/api/notes", token, nil))
	if len(list) != 1 {
		t.Fatalf("expected locked note listed, got %d", len(list))
	}
	if _, present := list[0]["content"]; present {
		t.Fatalf("locked note leaked content in list")
	}
}

func TestEncryptedNoteIsReadableButForbiddenToModify(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	created := env.createNote(token, map[string]any{"content": "cipher", "isEncrypted": true})
	id := created["id"].(string)

	get := env.do(http.MethodGet, "/api/notes/"+id, token, nil)
	expectStatus(t, get, http.StatusOK)
	view := decodeObject(t, get)
	if view["content"] != "cipher" {
		t.Fatalf("expected encrypted content returned, got %v", view)
	}
	if _, present := view["message"]; present {
		t.Fatalf("encrypted note should carry no redaction message: %v", view)
	}

	rr := env.do(http.MethodPut, "/api/notes/"+id, token, map[string]any{"title": "x"})
	expectStatus(t, rr, http.StatusForbidden)
	if !strings.Contains(decodeObject(t, rr)["message"].(string), "encrypted") {
		t.Fatalf("expected encrypted message, got %s", rr.Body.String())
	}
	remove := env.do(http.MethodDelete, "/api/notes/"+id, token, nil)
	expectStatus(t, remove, http.StatusForbidden)
}

func TestNotesAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register("owner@example.com")
	other := env.register("other@example.com")

	created := env.createNote(owner, map[string]any{"content": "mine"})
	id := created["id"].(string)

	expectStatus(t, env.do(http.MethodGet, "/api/notes/"+id, other, nil), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodPut, "/api/notes/"+id, other, map[string]any{"content": "x"}), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/api/notes/"+id, other, nil), http.StatusNotFound)

	if list := decodeList(t, env.do(http.MethodGet, "/api/notes", other, nil)); len(list) != 0 {
		t.Fatalf("expected no notes for other user, got %d", len(list))
	}
	expectStatus(t, env.do(http.MethodGet, "/api/notes/does-not-exist", owner, nil), http.StatusNotFound)
}

func TestUpdateNoteAppliesPresentFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	created := env.createNote(token, map[string]any{"title": "Plan", "content": "v1", "tags": []string{"work"}})
	id := created["id"].(string)

	rr := env.do(http.MethodPut, "/api/notes/"+id, token, map[string]any{"content": "v2", "type": "markdown"})
	expectStatus(t, rr, http.StatusOK)
	updated := decodeObject(t, rr)
	if updated["title"] != "Plan" || updated["content"] != "v2" || updated["type"] != "markdown" {
		t.Fatalf("unexpected update result: %v", updated)
	}
	if tags := updated["tags"].([]any); len(tags) != 1 || tags[0] != "work" {
		t.Fatalf("expected tags untouched, got %v", tags)
	}

	bad := env.do(http.MethodPut, "/api/notes/"+id, token, map[string]any{"content": ""})
	expectStatus(t, bad, http.StatusBadRequest)
	badTags := env.do(http.MethodPut, "/api/notes/"+id, token, map[string]any{"tags": []string{"x", "x"}})
	expectStatus(t, badTags, http.StatusBadRequest)
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	id := env.createNote(token, map[string]any{"content": "bye"})["id"].(string)

	rr := env.do(http.MethodDelete, "/api/notes/"+id, token, nil)
	expectStatus(t, rr, http.StatusOK)
	payload := decodeObject(t, rr)
	if payload["id"] != id || payload["message"] == "" {
		t.Fatalf("unexpected delete response: %v", payload)
	}
	expectStatus(t, env.do(http.MethodGet, "/api/notes/"+id, token, nil), http.StatusNotFound)
}

func TestListNotesFilters(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	env.createNote(token, map[string]any{"title": "a", "content": "x", "tags": []string{"work/project"}})
	env.createNote(token, map[string]any{"title": "b", "content": "x", "tags": []string{"work"}})
	env.createNote(token, map[string]any{"title": "c", "content": "x", "tags": []string{"home"}})
	env.createNote(token, map[string]any{"title": "d", "content": "x", "tags": []string{"a-b"}})

	byTag := decodeList(t, env.do(http.MethodGet, "/api/notes?tag=work", token, nil))
	if len(byTag) != 1 || byTag[0]["title"] != "b" {
		t.Fatalf("expected exact tag match, got %v", byTag)
	}

	byPrefix := decodeList(t, env.do(http.MethodGet, "/api/notes?prefix=work", token, nil))
	if len(byPrefix) != 2 {
		t.Fatalf("expected prefix to match two notes, got %d", len(byPrefix))
	}

	// Prefix is literal, not a pattern.
	if got := decodeList(t, env.do(http.MethodGet, "/api/notes?prefix=a-", token, nil)); len(got) != 1 {
		t.Fatalf("expected literal prefix match, got %d", len(got))
	}
	if got := decodeList(t, env.do(http.MethodGet, "/api/notes?prefix=.", token, nil)); len(got) != 0 {
		t.Fatalf("expected dot prefix to match nothing, got %d", len(got))
	}

	all := decodeList(t, env.do(http.MethodGet, "/api/notes", token, nil))
	if len(all) != 4 {
		t.Fatalf("expected 4 notes, got %d", len(all))
	}
}

func TestTagsAndHierarchy(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	env.createNote(token, map[string]any{"content": "1", "tags": []string{"work/a", "home"}})
	env.createNote(token, map[string]any{"content": "2", "tags": []string{"work/a", "work/b"}})
	env.createNote(token, map[string]any{"content": "3", "tags": []string{"home"}})

	rr := env.do(http.MethodGet, "/api/tags", token, nil)
	expectStatus(t, rr, http.StatusOK)
	var list []string
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("parse tags: %v", err)
	}
	if strings.Join(list, ",") != "home,work/a,work/b" {
		t.Fatalf("unexpected tag list %v", list)
	}

	tree := decodeObject(t, env.do(http.MethodGet, "/api/tags/hierarchy", token, nil))
	work := tree["work"].(map[string]any)
	if work["count"] != float64(3) {
		t.Fatalf("expected work count 3, got %v", work["count"])
	}
	children := work["children"].(map[string]any)
	if children["a"].(map[string]any)["count"] != float64(2) {
		t.Fatalf("expected work/a count 2, got %v", children["a"])
	}
	if tree["home"].(map[string]any)["count"] != float64(2) {
		t.Fatalf("expected home count 2, got %v", tree["home"])
	}
}

func TestTagListIsEmptyArrayForNewUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	rr := env.do(http.MethodGet, "/api/tags", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rr.Body.String())
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	other := env.register("other@example.com")
	env.createNote(token, map[string]any{"title": "Golang tips", "content": "channels"})
	env.createNote(token, map[string]any{"title": "Groceries", "content": "golang gophers plushie"})
	env.createNote(token, map[string]any{"title": "golang diary", "content": "private golang", "isLocked": true, "password": "1234"})
	env.createNote(other, map[string]any{"title": "golang elsewhere", "content": "golang"})

	expectStatus(t, env.do(http.MethodGet, "/api/search?q=", token, nil), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodGet, "/api/search?q=%20%20", token, nil), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodGet, "/api/search?q=go&limit=many", token, nil), http.StatusBadRequest)

	rr := env.do(http.MethodGet, "/api/search?q=golang", token, nil)
	expectStatus(t, rr, http.StatusOK)
	hits := decodeList(t, rr)
	if len(hits) != 3 {
		t.Fatalf("expected 3 owner hits, got %d: %v", len(hits), hits)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1]["score"].(float64) < hits[i]["score"].(float64) {
			t.Fatalf("hits not sorted by score: %v", hits)
		}
	}
	for _, hit := range hits {
		if hit["isLocked"] == true {
			if _, present := hit["content"]; present {
				t.Fatalf("locked hit leaked content")
			}
			if hit["message"] == nil {
				t.Fatalf("locked hit missing message")
			}
		}
	}

	limited := decodeList(t, env.do(http.MethodGet, "/api/search?q=golang&limit=1", token, nil))
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestErrorEnvelopeCarriesStackOutsideProduction(t *testing.T) {
	failing := pingFailStore{MemoryStore: store.NewMemoryStore()}
	env := newTestEnv(t, withStore(brokenListStore{failing}))
	token := env.register("avery@example.com")

	rr := env.do(http.MethodGet, "/api/notes", token, nil)
	expectStatus(t, rr, http.StatusInternalServerError)
	payload := decodeObject(t, rr)
	if payload["code"] != "SERVER_ERROR" || payload["message"] == "" {
		t.Fatalf("unexpected envelope %v", payload)
	}
	if stack, _ := payload["stack"].(string); stack == "" {
		t.Fatalf("expected stack outside production, got %v", payload)
	}
}

func TestErrorEnvelopeHidesStackInProduction(t *testing.T) {
	failing := pingFailStore{MemoryStore: store.NewMemoryStore()}
	env := newTestEnv(t, withStore(brokenListStore{failing}), withConfig(func(cfg *config.Config) { cfg.Env = "production" }))
	token := env.register("avery@example.com")

	rr := env.do(http.MethodGet, "/api/notes", token, nil)
	expectStatus(t, rr, http.StatusInternalServerError)
	payload := decodeObject(t, rr)
	if _, present := payload["stack"]; present {
		t.Fatalf("stack must not be sent in production: %v", payload)
	}
	if _, present := payload["details"]; present {
		t.Fatalf("details must not be sent in production: %v", payload)
	}
}

func TestClientErrorsHaveNoStack(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("avery@example.com")
	payload := decodeObject(t, env.do(http.MethodGet, "/api/notes/missing", token, nil))
	if _, present := payload["stack"]; present {
		t.Fatalf("404 must not carry a stack: %v", payload)
	}
}
