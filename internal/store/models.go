package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	SSOID        string
	CreatedAt    time.Time
}

type Note struct {
	ID          string
	UserID      string
	Title       string
	Content     string
	Type        string
	Tags        []string
	IsLocked    bool
	IsEncrypted bool
	LockHash    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Folder struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// NoteFilter narrows a note listing. Tag is an exact match against one of the
// note's tags; Prefix matches tags that start with it.
type NoteFilter struct {
	Tag    string
	Prefix string
}

// ScoredNote is a full-text hit with its relevance score.
type ScoredNote struct {
	Note
	Score float64
}
