package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"notegeek/internal/client"
)

var errNotLoggedIn = errors.New("not logged in, use login or register first")

const defaultExportFile = "notegeek-export.tar.gz"

func usage(syntax string) error {
	return fmt.Errorf("usage: %s", syntax)
}

func (r *REPL) requireLogin() error {
	if !r.auth.Snapshot().LoggedIn() {
		return errNotLoggedIn
	}
	return nil
}

func (r *REPL) register(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("register <email>")
	}
	password, err := r.password("Password")
	if err != nil {
		return err
	}
	if err := r.auth.Register(ctx, args[0], password); err != nil {
		return err
	}
	if err := r.saveToken(); err != nil {
		r.println("Warning: session not saved:", err)
	}
	r.printf("Registered as %s\n", args[0])
	return nil
}

func (r *REPL) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("login <email>")
	}
	password, err := r.password("Password")
	if err != nil {
		return err
	}
	if err := r.auth.Login(ctx, args[0], password); err != nil {
		return err
	}
	if err := r.saveToken(); err != nil {
		r.println("Warning: session not saved:", err)
	}
	r.printf("Logged in as %s\n", args[0])
	return nil
}

func (r *REPL) sso(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("sso <token>")
	}
	if err := r.auth.LoginSSO(ctx, args[0]); err != nil {
		return err
	}
	if err := r.saveToken(); err != nil {
		r.println("Warning: session not saved:", err)
	}
	r.printf("Logged in as %s\n", r.auth.Snapshot().User.Email)
	return nil
}

func (r *REPL) logout(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	err := r.auth.Logout(ctx)
	if saveErr := r.saveToken(); saveErr != nil {
		r.println("Warning: session file not removed:", saveErr)
	}
	r.println("Logged out")
	if err != nil {
		return fmt.Errorf("server did not confirm logout: %w", err)
	}
	return nil
}

func (r *REPL) whoami(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	user, err := r.client.Me(ctx)
	if err != nil {
		return err
	}
	r.printf("%s (%s)\n", user.Email, user.ID)
	return nil
}

func (r *REPL) list(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	var filter client.NoteFilter
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--tag", "--prefix":
			if i+1 >= len(args) {
				return usage("ls [--tag <tag> | --prefix <prefix>]")
			}
			if args[i] == "--tag" {
				filter.Tag = args[i+1]
			} else {
				filter.Prefix = args[i+1]
			}
			i++
		default:
			return usage("ls [--tag <tag> | --prefix <prefix>]")
		}
	}
	if err := r.notes.Load(ctx, filter); err != nil {
		return err
	}
	items := r.notes.Snapshot().Notes
	if len(items) == 0 {
		r.println("No notes.")
		return nil
	}
	for _, n := range items {
		r.printNoteLine(n)
	}
	return nil
}

func (r *REPL) printNoteLine(n client.Note) {
	marker := " "
	switch {
	case n.IsEncrypted:
		marker = "E"
	case n.IsLocked:
		marker = "L"
	}
	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	r.printf("%s %-24s  %-32s  %s\n", marker, n.ID, title, strings.Join(n.Tags, ","))
}

func (r *REPL) show(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) != 1 {
		return usage("cat <id>")
	}
	if err := r.notes.Open(ctx, args[0]); err != nil {
		return err
	}
	n := r.notes.Snapshot().Current
	r.printf("# %s\n", n.Title)
	r.printf("type: %s  tags: %s  updated: %s\n", n.Type, strings.Join(n.Tags, ", "), n.UpdatedAt.Format("2006-01-02 15:04"))
	if n.Content == nil {
		msg := n.Message
		if msg == "" {
			msg = "Content is not available."
		}
		r.printf("[%s]\n", msg)
		return nil
	}
	r.println()
	r.println(n.Body())
	return nil
}

func (r *REPL) create(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) < 2 || len(args) > 4 {
		return usage(`new <title> <content> [type] [tag,tag,...]`)
	}
	input := client.NoteInput{Title: args[0], Content: args[1]}
	if len(args) > 2 {
		input.Type = args[2]
	}
	if len(args) > 3 {
		for _, tag := range strings.Split(args[3], ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				input.Tags = append(input.Tags, tag)
			}
		}
	}
	note, err := r.notes.Create(ctx, input)
	if err != nil {
		return err
	}
	r.printf("Created %s\n", note.ID)
	return nil
}

func (r *REPL) edit(args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) != 2 {
		return usage("edit <id> <content>")
	}
	r.saver.Schedule(args[0], args[1])
	r.printf("Saving %s...\n", args[0])
	return nil
}

func (r *REPL) remove(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) != 1 {
		return usage("rm <id>")
	}
	r.saver.Cancel(args[0])
	if err := r.notes.Delete(ctx, args[0]); err != nil {
		return err
	}
	r.printf("Deleted %s\n", args[0])
	return nil
}

func (r *REPL) listTags(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if err := r.tags.Load(ctx); err != nil {
		return err
	}
	list := r.tags.Snapshot().Tags
	if len(list) == 0 {
		r.println("No tags.")
		return nil
	}
	for _, tag := range list {
		r.println(tag)
	}
	return nil
}

func (r *REPL) tree(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if err := r.tags.Load(ctx); err != nil {
		return err
	}
	r.printTree(r.tags.Snapshot().Hierarchy, 0)
	return nil
}

func (r *REPL) printTree(nodes map[string]*client.TagNode, depth int) {
	for _, name := range slices.Sorted(maps.Keys(nodes)) {
		node := nodes[name]
		if node == nil {
			continue
		}
		r.printf("%s%s (%d)\n", strings.Repeat("  ", depth), name, node.Count)
		r.printTree(node.Children, depth+1)
	}
}

func (r *REPL) search(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return usage("search <query>")
	}
	hits, err := r.client.Search(ctx, text, 0)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		r.println("No matches.")
		return nil
	}
	for _, n := range hits {
		r.printNoteLine(n)
	}
	return nil
}

func (r *REPL) listFolders(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if err := r.folders.Load(ctx); err != nil {
		return err
	}
	items := r.folders.Snapshot().Folders
	if len(items) == 0 {
		r.println("No folders.")
		return nil
	}
	for _, f := range items {
		r.printf("%-24s  %-24s  %s\n", f.ID, f.Name, f.Tag)
	}
	return nil
}

func (r *REPL) mkdir(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	name := strings.Join(args, " ")
	if strings.TrimSpace(name) == "" {
		return usage("mkdir <name>")
	}
	folder, err := r.folders.Create(ctx, name)
	if err != nil {
		return err
	}
	r.printf("Created folder %s (%s)\n", folder.Name, folder.Tag)
	return nil
}

func (r *REPL) mvdir(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) < 2 {
		return usage("mvdir <id> <new name>")
	}
	folder, err := r.folders.Rename(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	r.printf("Renamed folder to %s (%s)\n", folder.Name, folder.Tag)
	return nil
}

func (r *REPL) rmdir(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	var id string
	deleteNotes := false
	for _, arg := range args {
		if arg == "--notes" {
			deleteNotes = true
			continue
		}
		if id != "" {
			return usage("rmdir <id> [--notes]")
		}
		id = arg
	}
	if id == "" {
		return usage("rmdir <id> [--notes]")
	}
	result, err := r.folders.Delete(ctx, id, deleteNotes)
	if err != nil {
		return err
	}
	switch {
	case result.NotesDeleted != nil:
		r.printf("%s, %d notes deleted\n", result.Message, *result.NotesDeleted)
	case result.NotesUpdated != nil:
		r.printf("%s, %d notes untagged\n", result.Message, *result.NotesUpdated)
	default:
		r.println(result.Message)
	}
	if result.NotesSkipped > 0 {
		r.printf("%d locked or encrypted notes were left untouched\n", result.NotesSkipped)
	}
	return nil
}

func (r *REPL) export(ctx context.Context, args []string) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	if len(args) > 1 {
		return usage("export [file]")
	}
	path := defaultExportFile
	if len(args) == 1 {
		path = args[0]
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, err := r.client.Export(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	r.printf("Wrote %s (%d bytes)\n", path, n)
	return nil
}

func (r *REPL) backup(ctx context.Context) error {
	if err := r.requireLogin(); err != nil {
		return err
	}
	b, err := r.client.Backup(ctx)
	if err != nil {
		return err
	}
	r.printf("Backed up %d notes to %s/%s (%d bytes)\n", b.Notes, b.Bucket, b.Key, b.Size)
	return nil
}
