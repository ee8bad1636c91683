package search

import (
	"context"

	"notegeek/internal/store"
)

// ScoringStore is a store that can score notes itself, like the in-memory
// backend.
type ScoringStore interface {
	SearchNotes(ctx context.Context, userID, text string, limit int) ([]store.ScoredNote, error)
}

// StoreText adapts a ScoringStore to Searcher.
type StoreText struct {
	store ScoringStore
}

func NewStoreText(s ScoringStore) *StoreText {
	return &StoreText{store: s}
}

func (s *StoreText) Search(ctx context.Context, q Query) ([]Hit, error) {
	scored, err := s.store.SearchNotes(ctx, q.UserID, q.Text, q.limit())
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(scored))
	for _, sn := range scored {
		hits = append(hits, Hit{ID: sn.ID, Score: sn.Score})
	}
	return hits, nil
}
