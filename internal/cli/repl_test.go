package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"notegeek/internal/app"
	"notegeek/internal/auth"
	"notegeek/internal/client"
	"notegeek/internal/config"
	"notegeek/internal/export"
	"notegeek/internal/search"
	"notegeek/internal/store"
)

type scriptReader struct {
	lines   []string
	errs    map[int]error
	prompts []string
	calls   int
}

func (s *scriptReader) SetPrompt(prompt string) { s.prompts = append(s.prompts, prompt) }

func (s *scriptReader) Readline() (string, error) {
	defer func() { s.calls++ }()
	if err, ok := s.errs[s.calls]; ok {
		return "", err
	}
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func stubPassword(t *testing.T, password string) {
	t.Helper()
	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() { readPassword = orig })
}

func newTestREPL(t *testing.T, opts Options) (*REPL, *bytes.Buffer, string) {
	t.Helper()
	cfg := config.Config{Env: "test", JWTSecret: "test-secret", TokenTTL: time.Hour, CORSOrigin: "*"}
	memory := store.NewMemoryStore()
	logger := zerolog.Nop()
	searchService := search.NewService(nil, search.NewStoreText(memory), memory, logger)
	service := app.New(cfg, memory, searchService, export.NewService(memory, nil), nil, logger)
	srv := httptest.NewServer(app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler())
	t.Cleanup(srv.Close)

	if opts.AutoSaveDelay == 0 {
		opts.AutoSaveDelay = time.Hour
	}
	var out bytes.Buffer
	return New(client.New(srv.URL, srv.Client()), &out, opts), &out, srv.URL
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{in: "ls", want: []string{"ls"}},
		{in: "ls  --tag   work", want: []string{"ls", "--tag", "work"}},
		{in: `new "Road trip" "pack snacks" text travel`, want: []string{"new", "Road trip", "pack snacks", "text", "travel"}},
		{in: `edit abc ""`, want: []string{"edit", "abc", ""}},
		{in: "", want: nil},
	}
	for _, tc := range cases {
		got := ParseArgs(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseArgs(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestRunSession(t *testing.T) {
	stubPassword(t, "secret1")
	repl, out, _ := newTestREPL(t, Options{})

	rl := &scriptReader{
		lines: []string{
			"ls",
			"register ada@example.com",
			`new "Trip plan" "pack snacks" text travel/europe,work`,
			"ls --tag work",
			"tags",
			"tree",
			"search snacks",
			"bogus",
			"exit",
			"never reached",
		},
		errs: map[int]error{},
	}
	if err := repl.Run(context.Background(), rl); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Error: " + errNotLoggedIn.Error(),
		"Registered as ada@example.com",
		"Created ",
		"Trip plan",
		"travel/europe",
		"travel (1)",
		"  europe (1)",
		"Error: unknown command: bogus",
		"Bye!",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if len(rl.lines) != 1 {
		t.Fatalf("expected loop to stop at exit, %d lines left", len(rl.lines))
	}
	if last := rl.prompts[len(rl.prompts)-1]; last != "notegeek (ada@example.com)> " {
		t.Fatalf("unexpected prompt %q", last)
	}
}

func TestRunHandlesInterruptAndEOF(t *testing.T) {
	repl, out, _ := newTestREPL(t, Options{})
	rl := &scriptReader{errs: map[int]error{0: readline.ErrInterrupt}}
	if err := repl.Run(context.Background(), rl); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Use 'exit' to leave.") {
		t.Fatalf("expected interrupt hint, got %q", out.String())
	}
	if rl.calls != 2 {
		t.Fatalf("expected two reads, got %d", rl.calls)
	}
}

func TestEditIsSavedBeforeNextCommand(t *testing.T) {
	stubPassword(t, "secret1")
	repl, out, _ := newTestREPL(t, Options{})
	ctx := context.Background()

	mustExec(t, repl, "register edit@example.com")
	mustExec(t, repl, `new Draft "first version"`)
	id := repl.notes.Snapshot().Notes[0].ID

	mustExec(t, repl, "edit "+id+` "second version"`)
	if !repl.saver.Pending(id) {
		t.Fatal("expected edit to be pending")
	}
	out.Reset()
	mustExec(t, repl, "cat "+id)
	if repl.saver.Pending(id) {
		t.Fatal("expected pending edit to be flushed")
	}
	if !strings.Contains(out.String(), "second version") {
		t.Fatalf("expected saved content, got %q", out.String())
	}

	note, err := repl.client.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if note.Body() != "second version" {
		t.Fatalf("server has %q", note.Body())
	}
}

func TestLockedNoteShowsMessage(t *testing.T) {
	stubPassword(t, "secret1")
	repl, out, _ := newTestREPL(t, Options{})
	ctx := context.Background()

	mustExec(t, repl, "register lock@example.com")
	note, err := repl.client.CreateNote(ctx, client.NoteInput{Title: "Vault", Content: "hidden", IsLocked: true, Password: "hunter2"})
	if err != nil {
		t.Fatalf("create locked note: %v", err)
	}

	out.Reset()
	mustExec(t, repl, "cat "+note.ID)
	if strings.Contains(out.String(), "hidden") {
		t.Fatalf("locked content leaked: %q", out.String())
	}
	if !strings.Contains(out.String(), "[") {
		t.Fatalf("expected redaction message, got %q", out.String())
	}

	err = repl.Execute(ctx, "rm "+note.ID)
	if !client.IsStatus(err, 403) {
		t.Fatalf("expected 403 deleting locked note, got %v", err)
	}
}

func TestFolderCommands(t *testing.T) {
	stubPassword(t, "secret1")
	repl, out, _ := newTestREPL(t, Options{})

	mustExec(t, repl, "register folders@example.com")
	mustExec(t, repl, "mkdir Project Notes")
	if !strings.Contains(out.String(), "folder/Project_Notes") {
		t.Fatalf("expected folder tag in output, got %q", out.String())
	}
	mustExec(t, repl, "new Roadmap body text folder/Project_Notes")
	id := repl.folders.Snapshot().Folders[0].ID

	mustExec(t, repl, "mvdir "+id+" Archive")
	mustExec(t, repl, "ls --tag folder/Archive")
	if !strings.Contains(out.String(), "Roadmap") {
		t.Fatalf("expected retagged note listed, got %q", out.String())
	}

	out.Reset()
	mustExec(t, repl, "rmdir "+id+" --notes")
	if !strings.Contains(out.String(), "1 notes deleted") {
		t.Fatalf("unexpected rmdir output %q", out.String())
	}
	out.Reset()
	mustExec(t, repl, "folders")
	if !strings.Contains(out.String(), "No folders.") {
		t.Fatalf("expected no folders, got %q", out.String())
	}

	if err := repl.Execute(context.Background(), "rmdir"); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestTokenPersistence(t *testing.T) {
	stubPassword(t, "secret1")
	tokenFile := filepath.Join(t.TempDir(), "notegeek", "token")
	repl, _, url := newTestREPL(t, Options{TokenFile: tokenFile})

	mustExec(t, repl, "register persist@example.com")
	info, err := os.Stat(tokenFile)
	if err != nil {
		t.Fatalf("token file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected token file mode %v", info.Mode().Perm())
	}

	var out bytes.Buffer
	second := New(client.New(url, nil), &out, Options{TokenFile: tokenFile})
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if second.Prompt() != "notegeek (persist@example.com)> " {
		t.Fatalf("unexpected prompt %q", second.Prompt())
	}
	mustExec(t, second, "whoami")
	if !strings.Contains(out.String(), "persist@example.com") {
		t.Fatalf("whoami output %q", out.String())
	}

	mustExec(t, second, "logout")
	if _, err := os.Stat(tokenFile); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, stat err=%v", err)
	}
}

func TestRestoreDropsMalformedToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("garbage\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	repl, _, _ := newTestREPL(t, Options{TokenFile: tokenFile})
	if err := repl.Restore(context.Background()); err == nil {
		t.Fatal("expected malformed token error")
	}
	if _, err := os.Stat(tokenFile); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, stat err=%v", err)
	}
	if repl.Prompt() != "notegeek> " {
		t.Fatalf("unexpected prompt %q", repl.Prompt())
	}
}

func TestRestoreDropsTokenTheServerRejects(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	token, _, err := auth.IssueToken([]byte("test-secret"), "ghost", "ghost@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokenFile, []byte(token+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	repl, _, _ := newTestREPL(t, Options{TokenFile: tokenFile})
	if err := repl.Restore(context.Background()); !client.IsStatus(err, 401) {
		t.Fatalf("expected 401 restoring unknown account, got %v", err)
	}
	if _, err := os.Stat(tokenFile); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, stat err=%v", err)
	}
	if repl.Prompt() != "notegeek> " {
		t.Fatalf("unexpected prompt %q", repl.Prompt())
	}
}

func TestExportWritesArchive(t *testing.T) {
	stubPassword(t, "secret1")
	repl, out, _ := newTestREPL(t, Options{})

	mustExec(t, repl, "register export@example.com")
	mustExec(t, repl, `new One "first note"`)

	path := filepath.Join(t.TempDir(), "notes.tar.gz")
	mustExec(t, repl, "export "+path)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		t.Fatal("export is not gzip")
	}
	if !strings.Contains(out.String(), "Wrote "+path) {
		t.Fatalf("unexpected output %q", out.String())
	}

	err = repl.Execute(context.Background(), "backup")
	if !client.IsStatus(err, 503) {
		t.Fatalf("expected 503 without storage, got %v", err)
	}
}

func TestHelp(t *testing.T) {
	repl, out, _ := newTestREPL(t, Options{})
	mustExec(t, repl, "help")
	for _, c := range commands {
		if !strings.Contains(out.String(), c.syntax) {
			t.Fatalf("help missing %q", c.syntax)
		}
	}
	out.Reset()
	mustExec(t, repl, "help rmdir")
	if !strings.Contains(out.String(), "--notes") {
		t.Fatalf("unexpected help output %q", out.String())
	}
}

func mustExec(t *testing.T, r *REPL, line string) {
	t.Helper()
	if err := r.Execute(context.Background(), line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
}
