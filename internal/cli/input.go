package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"notegeek/internal/client"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func (r *REPL) password(prompt string) (string, error) {
	r.printf("%s: ", prompt)
	raw, err := readPassword(int(os.Stdin.Fd()))
	r.println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

// Restore loads a saved session if there is one. A missing file is not an
// error; an expired, malformed or rejected token is removed. When the server
// cannot be reached the session is kept as read from the token.
func (r *REPL) Restore(ctx context.Context) error {
	if r.opts.TokenFile == "" {
		return nil
	}
	raw, err := os.ReadFile(r.opts.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return nil
	}
	if err := r.auth.Restore(token); err != nil {
		_ = os.Remove(r.opts.TokenFile)
		return err
	}
	if err := r.auth.Refresh(ctx); client.IsStatus(err, http.StatusUnauthorized) {
		_ = os.Remove(r.opts.TokenFile)
		return err
	}
	return nil
}

func (r *REPL) saveToken() error {
	if r.opts.TokenFile == "" {
		return nil
	}
	token := r.auth.Snapshot().Token
	if token == "" {
		err := os.Remove(r.opts.TokenFile)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.opts.TokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(r.opts.TokenFile, []byte(token+"\n"), 0o600)
}
