package search

import (
	"context"
	"errors"

	"notegeek/internal/policy"
	"notegeek/internal/store"
)

var ErrEmptyQuery = errors.New("search query is required")

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query describes a search request. Every search is scoped to one owner.
type Query struct {
	UserID string
	Text   string
	Limit  int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

// Hit is a matching note id with its relevance score. Higher is better.
type Hit struct {
	ID    string
	Score float64
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// NoteLoader hydrates hits into notes and feeds full reindexes.
type NoteLoader interface {
	NotesByIDs(ctx context.Context, userID string, ids []string) ([]store.Note, error)
	AllNotes(ctx context.Context) ([]store.Note, error)
}

// NoteRecord is the data we index for a note. Content of notes that cannot be
// read is not sent to the index.
type NoteRecord struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	UpdatedAt int64    `json:"updatedAt"`
}

func RecordFromNote(n store.Note) NoteRecord {
	record := NoteRecord{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Type:      n.Type,
		Tags:      n.Tags,
		UpdatedAt: n.UpdatedAt.UTC().Unix(),
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	if policy.Can(policy.StateOf(n.IsLocked, n.IsEncrypted), policy.ActionRead) {
		record.Content = n.Content
	}
	return record
}
