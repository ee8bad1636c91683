// Package notes holds the rules a note has to satisfy before it is stored and
// the shapes it is presented in.
package notes

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"notegeek/internal/tags"
)

const (
	DefaultTitle    = "Untitled Note"
	MinLockPassword = 4
	TypeText        = "text"
	TypeMarkdown    = "markdown"
	TypeCode        = "code"
	TypeMindmap     = "mindmap"
	TypeHandwritten = "handwritten"
	lockHashCost    = bcrypt.DefaultCost
)

var Types = []string{TypeText, TypeMarkdown, TypeCode, TypeMindmap, TypeHandwritten}

func ValidType(t string) bool {
	return slices.Contains(Types, t)
}

// Draft is a note as submitted by a client, before defaults are applied.
type Draft struct {
	Title       string
	Content     string
	Type        string
	Tags        []string
	IsLocked    bool
	IsEncrypted bool
	Password    string
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating a draft. It never panics and never
// short-circuits: every broken field is reported.
type Result struct {
	Errors []FieldError
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

func (r Result) Message() string {
	if r.OK() {
		return ""
	}
	parts := make([]string, 0, len(r.Errors))
	for _, fe := range r.Errors {
		parts = append(parts, fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (r *Result) add(field, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: message})
}

// Normalize fills in the title and type defaults.
func Normalize(d Draft) Draft {
	if strings.TrimSpace(d.Title) == "" {
		d.Title = DefaultTitle
	} else {
		d.Title = strings.TrimSpace(d.Title)
	}
	if d.Type == "" {
		d.Type = TypeText
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d
}

// Validate checks a normalized draft. Tags go through the storage rules as
// given; they are not reformatted here.
func Validate(d Draft) Result {
	var r Result
	if d.Content == "" {
		r.add("content", "Content is required")
	}
	if !ValidType(d.Type) {
		r.add("type", fmt.Sprintf("Type must be one of %s", strings.Join(Types, ", ")))
	}
	if err := tags.CheckNoteTags(d.Tags); err != nil {
		r.add("tags", tagMessage(err))
	}
	if d.IsLocked && len(d.Password) < MinLockPassword {
		r.add("password", fmt.Sprintf("Lock password must be at least %d characters", MinLockPassword))
	}
	return r
}

func tagMessage(err error) string {
	switch {
	case errors.Is(err, tags.ErrDuplicate):
		return "Tags must be unique"
	case errors.Is(err, tags.ErrTooLong):
		return fmt.Sprintf("Tags must be at most %d characters", tags.MaxLength)
	case errors.Is(err, tags.ErrEmpty):
		return "Tags cannot be empty"
	default:
		return "Tags can only contain letters, numbers, hyphens, underscores and slashes"
	}
}

func HashLockPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), lockHashCost)
	if err != nil {
		return "", fmt.Errorf("hash lock password: %w", err)
	}
	return string(hash), nil
}
