// Package client talks to the NoteGeek API and keeps client-side state for
// the terminal front end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	User
	Token string `json:"token"`
}

type Note struct {
	ID          string    `json:"id"`
	User        string    `json:"user"`
	Title       string    `json:"title"`
	Content     *string   `json:"content,omitempty"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags"`
	IsLocked    bool      `json:"isLocked"`
	IsEncrypted bool      `json:"isEncrypted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Message     string    `json:"message,omitempty"`
	Score       *float64  `json:"score,omitempty"`
}

// Body returns the content, or "" when the server withheld it.
func (n Note) Body() string {
	if n.Content == nil {
		return ""
	}
	return *n.Content
}

type NoteInput struct {
	Title       string   `json:"title,omitempty"`
	Content     string   `json:"content"`
	Type        string   `json:"type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsLocked    bool     `json:"isLocked,omitempty"`
	IsEncrypted bool     `json:"isEncrypted,omitempty"`
	Password    string   `json:"password,omitempty"`
}

// NotePatch carries only the fields to change.
type NotePatch struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Type    *string   `json:"type,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

type NoteFilter struct {
	Tag    string
	Prefix string
}

type TagNode struct {
	Count    int                 `json:"count"`
	Children map[string]*TagNode `json:"children"`
}

type Folder struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
}

type FolderDeleteResult struct {
	Message      string `json:"message"`
	ID           string `json:"id"`
	NotesDeleted *int64 `json:"notesDeleted,omitempty"`
	NotesUpdated *int64 `json:"notesUpdated,omitempty"`
	NotesSkipped int64  `json:"notesSkipped,omitempty"`
}

type Backup struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Notes     int       `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client is a typed wrapper around the REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", credentials{Email: email, Password: password}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", credentials{Email: email, Password: password}, &out)
	return out, err
}

func (c *Client) ValidateSSO(ctx context.Context, token string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/validate-sso", map[string]string{"token": token}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) ListNotes(ctx context.Context, filter NoteFilter) ([]Note, error) {
	query := url.Values{}
	if filter.Tag != "" {
		query.Set("tag", filter.Tag)
	}
	if filter.Prefix != "" {
		query.Set("prefix", filter.Prefix)
	}
	path := "/api/notes"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []Note
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateNote(ctx context.Context, input NoteInput) (Note, error) {
	var out Note
	err := c.do(ctx, http.MethodPost, "/api/notes", input, &out)
	return out, err
}

func (c *Client) GetNote(ctx context.Context, id string) (Note, error) {
	var out Note
	err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) UpdateNote(ctx context.Context, id string, patch NotePatch) (Note, error) {
	var out Note
	err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Tags(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/tags", nil, &out)
	return out, err
}

func (c *Client) TagHierarchy(ctx context.Context) (map[string]*TagNode, error) {
	var out map[string]*TagNode
	err := c.do(ctx, http.MethodGet, "/api/tags/hierarchy", nil, &out)
	return out, err
}

func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	var out []Folder
	err := c.do(ctx, http.MethodGet, "/api/folders", nil, &out)
	return out, err
}

func (c *Client) CreateFolder(ctx context.Context, name string) (Folder, error) {
	var out Folder
	err := c.do(ctx, http.MethodPost, "/api/folders", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) RenameFolder(ctx context.Context, id, name string) (Folder, error) {
	var out Folder
	err := c.do(ctx, http.MethodPut, "/api/folders/"+url.PathEscape(id), map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) DeleteFolder(ctx context.Context, id string, deleteNotes bool) (FolderDeleteResult, error) {
	path := "/api/folders/" + url.PathEscape(id)
	if deleteNotes {
		path += "?deleteNotes=true"
	}
	var out FolderDeleteResult
	err := c.do(ctx, http.MethodDelete, path, nil, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, text string, limit int) ([]Note, error) {
	query := url.Values{"q": {text}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []Note
	err := c.do(ctx, http.MethodGet, "/api/search?"+query.Encode(), nil, &out)
	return out, err
}

// Export downloads the notes archive and writes it to w.
func (c *Client) Export(ctx context.Context, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/export", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.send(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download export: %w", err)
	}
	return n, nil
}

func (c *Client) Backup(ctx context.Context) (Backup, error) {
	var out Backup
	err := c.do(ctx, http.MethodPost, "/api/backup", nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}
