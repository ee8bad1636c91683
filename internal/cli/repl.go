// Package cli is the interactive terminal front end for NoteGeek.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"notegeek/internal/client"
)

// ErrExit is returned by Execute when the user asks to leave.
var ErrExit = errors.New("exit requested")

// LineReader is the part of *readline.Instance the loop needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

type Options struct {
	// TokenFile keeps the session between runs. Empty disables persistence.
	TokenFile     string
	AutoSaveDelay time.Duration
}

type REPL struct {
	client  *client.Client
	auth    *client.AuthStore
	notes   *client.NotesStore
	tags    *client.TagsStore
	folders *client.FoldersStore
	saver   *client.AutoSaver
	opts    Options

	outMu sync.Mutex
	out   io.Writer
}

func New(c *client.Client, out io.Writer, opts Options) *REPL {
	r := &REPL{
		client:  c,
		auth:    client.NewAuthStore(c),
		notes:   client.NewNotesStore(c),
		tags:    client.NewTagsStore(c),
		folders: client.NewFoldersStore(c),
		opts:    opts,
		out:     out,
	}
	r.saver = client.NewAutoSaver(opts.AutoSaveDelay, client.NotesSaver(r.notes), func(id string, err error) {
		r.printf("autosave %s failed: %v\n", id, err)
	})
	return r
}

func (r *REPL) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *REPL) println(args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.out, args...)
}

// Prompt shows who is logged in.
func (r *REPL) Prompt() string {
	state := r.auth.Snapshot()
	if !state.LoggedIn() || state.User == nil {
		return "notegeek> "
	}
	return fmt.Sprintf("notegeek (%s)> ", state.User.Email)
}

// Run reads commands until EOF or exit. Command errors are printed and the
// loop continues.
func (r *REPL) Run(ctx context.Context, rl LineReader) error {
	defer r.saver.Stop()
	for {
		rl.SetPrompt(r.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			r.println("Use 'exit' to leave.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return r.saver.Flush(ctx)
		}
		if err != nil {
			return err
		}

		err = r.Execute(ctx, line)
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			r.println("Error:", describe(err))
		}
	}
}

// Execute runs one command line. Pending autosaves are flushed before any
// command other than edit so the next read sees them.
func (r *REPL) Execute(ctx context.Context, line string) error {
	args := ParseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	cmd, rest := args[0], args[1:]

	if cmd != "edit" {
		if err := r.saver.Flush(ctx); err != nil {
			r.println("Error: autosave:", describe(err))
		}
	}

	switch cmd {
	case "help":
		return r.help(rest)
	case "register":
		return r.register(ctx, rest)
	case "login":
		return r.login(ctx, rest)
	case "sso":
		return r.sso(ctx, rest)
	case "logout":
		return r.logout(ctx)
	case "whoami":
		return r.whoami(ctx)
	case "ls":
		return r.list(ctx, rest)
	case "cat":
		return r.show(ctx, rest)
	case "new":
		return r.create(ctx, rest)
	case "edit":
		return r.edit(rest)
	case "rm":
		return r.remove(ctx, rest)
	case "tags":
		return r.listTags(ctx)
	case "tree":
		return r.tree(ctx)
	case "search":
		return r.search(ctx, rest)
	case "folders":
		return r.listFolders(ctx)
	case "mkdir":
		return r.mkdir(ctx, rest)
	case "mvdir":
		return r.mvdir(ctx, rest)
	case "rmdir":
		return r.rmdir(ctx, rest)
	case "export":
		return r.export(ctx, rest)
	case "backup":
		return r.backup(ctx)
	case "exit", "quit":
		r.println("Bye!")
		return ErrExit
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// ParseArgs splits a line on spaces, keeping double-quoted runs together.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes, quoted := false, false

	for _, ch := range input {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case (ch == ' ' || ch == '\t') && !inQuotes:
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
			}
			quoted = false
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}
	return args
}

func describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return apiErr.Error()
	}
	return err.Error()
}
