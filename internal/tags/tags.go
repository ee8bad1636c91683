// Package tags normalizes, validates and arranges the slash-delimited labels
// attached to notes.
package tags

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// MaxLength is the longest tag a note may carry.
const MaxLength = 100

var (
	ErrNotString    = errors.New("tag must be a string")
	ErrEmpty        = errors.New("tag cannot be empty")
	ErrInvalidChars = errors.New("tag can only contain letters, numbers, '/', '_' and '-'")
	ErrNotList      = errors.New("tags must be an array")
	ErrTooLong      = fmt.Errorf("tag cannot be longer than %d characters", MaxLength)
	ErrDuplicate    = errors.New("tags must be unique")
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	allowed       = regexp.MustCompile(`^[a-zA-Z0-9/_-]+$`)
)

// FormatTag trims a tag, turns internal whitespace runs into a single
// underscore and rejects anything outside the tag alphabet.
func FormatTag(v any) (string, error) {
	raw, ok := v.(string)
	if !ok {
		return "", ErrNotString
	}
	formatted := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), "_")
	if formatted == "" {
		return "", ErrEmpty
	}
	if !allowed.MatchString(formatted) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChars, formatted)
	}
	return formatted, nil
}

// ValidateTags formats every entry of a list and drops repeats, keeping the
// first occurrence of each tag.
func ValidateTags(v any) ([]string, error) {
	if v == nil {
		return nil, ErrNotList
	}
	value := reflect.ValueOf(v)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return nil, ErrNotList
	}

	seen := make(map[string]struct{}, value.Len())
	out := make([]string, 0, value.Len())
	for i := 0; i < value.Len(); i++ {
		tag, err := FormatTag(value.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// CheckNoteTags applies the storage rules for a note's tag set. It does not
// normalize: a tag that FormatTag would repair is still rejected here.
func CheckNoteTags(list []string) error {
	seen := make(map[string]struct{}, len(list))
	for _, tag := range list {
		if tag == "" {
			return ErrEmpty
		}
		if len(tag) > MaxLength {
			return ErrTooLong
		}
		if !allowed.MatchString(tag) {
			return fmt.Errorf("%w: %q", ErrInvalidChars, tag)
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicate, tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}

// Segments splits a tag on '/', ignoring empty segments.
func Segments(tag string) []string {
	parts := strings.Split(tag, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FolderTag is the tag that stands in for membership of a legacy folder.
func FolderTag(folderName string) (string, error) {
	name, err := FormatTag(folderName)
	if err != nil {
		return "", err
	}
	return "folder/" + name, nil
}
