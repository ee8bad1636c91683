package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notegeek/internal/policy"
	"notegeek/internal/store"
)

const (
	reindexBatch   = 1000
	reindexTimeout = 5 * time.Minute
)

// index is the primary search backend. *Meili satisfies it.
type index interface {
	Searcher
	Healthy() bool
	IndexNote(record NoteRecord) error
	IndexNotes(records []NoteRecord) error
	DeleteNote(id string) error
}

// Service is the facade that tries Meilisearch first and falls back to the
// database's own text search.
type Service struct {
	primary  index
	fallback Searcher
	notes    NoteLoader
	logger   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(m *Meili, fallback Searcher, notes NoteLoader, logger zerolog.Logger) *Service {
	s := &Service{fallback: fallback, notes: notes, logger: logger}
	if m != nil {
		s.primary = m
		m.OnRecover(s.ReindexInBackground)
	}
	return s
}

// ReindexInBackground runs ReindexAll on its own goroutine and logs failures.
func (s *Service) ReindexInBackground() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
		defer cancel()
		if err := s.ReindexAll(ctx); err != nil {
			s.logger.Error().Err(err).Msg("search: reindex")
		}
	}()
}

func (s *Service) primaryHealthy() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search returns the owner's matching notes ordered by score, highest first.
func (s *Service) Search(ctx context.Context, q Query) ([]store.ScoredNote, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}

	var hits []Hit
	var err error
	if s.primaryHealthy() {
		hits, err = s.primary.Search(ctx, q)
		if err != nil {
			s.logger.Warn().Err(err).Msg("search: meilisearch error, falling back")
			hits = nil
		}
	}
	if hits == nil {
		if s.fallback == nil {
			return []store.ScoredNote{}, nil
		}
		hits, err = s.fallback.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fallback search: %w", err)
		}
	}
	return s.hydrate(ctx, q, hits)
}

// hydrate loads the hit notes and keeps only the ones the owner still has;
// an index can lag behind deletes. Locked content is never searchable, so a
// locked hit has to match on its title or tags whichever backend found it.
func (s *Service) hydrate(ctx context.Context, q Query, hits []Hit) ([]store.ScoredNote, error) {
	if len(hits) == 0 {
		return []store.ScoredNote{}, nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	found, err := s.notes.NotesByIDs(ctx, q.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("load search hits: %w", err)
	}
	byID := make(map[string]store.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	terms := strings.Fields(strings.ToLower(q.Text))
	out := make([]store.ScoredNote, 0, len(hits))
	for _, h := range hits {
		n, ok := byID[h.ID]
		if !ok || !matchesVisibleText(n, terms) {
			continue
		}
		out = append(out, store.ScoredNote{Note: n, Score: h.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func matchesVisibleText(n store.Note, terms []string) bool {
	if policy.Can(policy.StateOf(n.IsLocked, n.IsEncrypted), policy.ActionRead) {
		return true
	}
	visible := strings.ToLower(n.Title + " " + strings.Join(n.Tags, " "))
	for _, term := range terms {
		if strings.Contains(visible, term) {
			return true
		}
	}
	return false
}

// IndexNote indexes a note (fire-and-forget to Meilisearch).
func (s *Service) IndexNote(n store.Note) {
	if !s.primaryHealthy() {
		return
	}
	record := RecordFromNote(n)
	go func() {
		if err := s.primary.IndexNote(record); err != nil {
			s.logger.Warn().Err(err).Str("note_id", record.ID).Msg("search: index note")
		}
	}()
}

// IndexNotes re-indexes a batch in one request (fire-and-forget).
func (s *Service) IndexNotes(items []store.Note) {
	if !s.primaryHealthy() || len(items) == 0 {
		return
	}
	records := make([]NoteRecord, 0, len(items))
	for _, n := range items {
		records = append(records, RecordFromNote(n))
	}
	go func() {
		if err := s.primary.IndexNotes(records); err != nil {
			s.logger.Warn().Err(err).Int("notes", len(records)).Msg("search: bulk index")
		}
	}()
}

// DeleteNote removes a note from the search index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	if !s.primaryHealthy() {
		return
	}
	go func() {
		if err := s.primary.DeleteNote(id); err != nil {
			s.logger.Warn().Err(err).Str("note_id", id).Msg("search: delete note")
		}
	}()
}

// ReindexAll pushes every stored note to the primary index in batches. It
// backfills notes written before the index existed or while it was down.
func (s *Service) ReindexAll(ctx context.Context) error {
	if !s.primaryHealthy() {
		return nil
	}
	items, err := s.notes.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("load notes for reindex: %w", err)
	}
	for start := 0; start < len(items); start += reindexBatch {
		batch := items[start:min(start+reindexBatch, len(items))]
		records := make([]NoteRecord, 0, len(batch))
		for _, n := range batch {
			records = append(records, RecordFromNote(n))
		}
		if err := s.primary.IndexNotes(records); err != nil {
			return fmt.Errorf("reindex notes: %w", err)
		}
	}
	s.logger.Info().Int("notes", len(items)).Msg("search: reindexed all notes")
	return nil
}
