package export

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"notegeek/internal/policy"
	"notegeek/internal/store"
)

// Frontmatter is the YAML header written above each note's content.
type Frontmatter struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Type        string    `yaml:"type"`
	Tags        []string  `yaml:"tags"`
	IsLocked    bool      `yaml:"isLocked"`
	IsEncrypted bool      `yaml:"isEncrypted"`
	CreatedAt   time.Time `yaml:"createdAt"`
	UpdatedAt   time.Time `yaml:"updatedAt"`
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(title string) string {
	s := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return "note"
	}
	return s
}

// fileName keeps names unique by suffixing the note id.
func fileName(n store.Note) string {
	return fmt.Sprintf("notes/%s-%s.md", slug(n.Title), n.ID)
}

// RenderNote returns a note as markdown with YAML frontmatter. Notes that
// cannot be read are written without their content.
func RenderNote(n store.Note) ([]byte, error) {
	fm := Frontmatter{
		ID:          n.ID,
		Title:       n.Title,
		Type:        n.Type,
		Tags:        n.Tags,
		IsLocked:    n.IsLocked,
		IsEncrypted: n.IsEncrypted,
		CreatedAt:   n.CreatedAt.UTC(),
		UpdatedAt:   n.UpdatedAt.UTC(),
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")

	state := policy.StateOf(n.IsLocked, n.IsEncrypted)
	if !policy.Can(state, policy.ActionRead) {
		buf.WriteString("> " + policy.Message(state) + "\n")
		return buf.Bytes(), nil
	}
	switch n.Type {
	case "code":
		buf.WriteString("```\n" + n.Content + "\n```\n")
	case "mindmap", "handwritten":
		buf.WriteString("```json\n" + n.Content + "\n```\n")
	default:
		buf.WriteString(n.Content)
		if !strings.HasSuffix(n.Content, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// WriteArchive writes the notes as a gzip-compressed tarball.
func WriteArchive(w io.Writer, items []store.Note, now time.Time) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, n := range items {
		body, err := RenderNote(n)
		if err != nil {
			return err
		}
		modTime := n.UpdatedAt
		if modTime.IsZero() {
			modTime = now
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    fileName(n),
			Mode:    0o644,
			Size:    int64(len(body)),
			ModTime: modTime,
		}); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(body); err != nil {
			return fmt.Errorf("write tar entry: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}
