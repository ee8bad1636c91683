package client

import (
	"context"
	"slices"
	"sync"
)

type NotesState struct {
	Notes   []Note
	Current *Note
	Filter  NoteFilter
	Loading bool
	Err     error
}

// NotesStore holds the note list and the open note. Opening a note cancels
// the previous open, and a response that arrives after a newer Open started
// is dropped.
type NotesStore struct {
	client *Client

	mu         sync.Mutex
	state      NotesState
	openSeq    uint64
	cancelOpen context.CancelFunc
}

func NewNotesStore(c *Client) *NotesStore {
	return &NotesStore{client: c}
}

func (s *NotesStore) Snapshot() NotesState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	state.Notes = slices.Clone(s.state.Notes)
	if s.state.Current != nil {
		current := *s.state.Current
		state.Current = &current
	}
	return state
}

func (s *NotesStore) Load(ctx context.Context, filter NoteFilter) error {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = nil
	s.state.Filter = filter
	s.mu.Unlock()

	items, err := s.client.ListNotes(ctx, filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	s.state.Notes = items
	return nil
}

// Open fetches one note and makes it current. It returns the context error
// when superseded by a later Open.
func (s *NotesStore) Open(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	s.openSeq++
	seq := s.openSeq
	ctx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	s.state.Loading = true
	s.state.Err = nil
	s.mu.Unlock()

	note, err := s.client.GetNote(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.openSeq {
		cancel()
		if err == nil {
			err = context.Canceled
		}
		return err
	}
	cancel()
	s.cancelOpen = nil
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	s.state.Current = &note
	return nil
}

func (s *NotesStore) Create(ctx context.Context, input NoteInput) (Note, error) {
	note, err := s.client.CreateNote(ctx, input)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Err = err
		return Note{}, err
	}
	s.state.Err = nil
	s.state.Notes = append([]Note{note}, s.state.Notes...)
	return note, nil
}

// Update applies the patch locally first and restores the previous version if
// the server rejects it.
func (s *NotesStore) Update(ctx context.Context, id string, patch NotePatch) (Note, error) {
	s.mu.Lock()
	previous, idx := s.find(id)
	if idx >= 0 {
		s.state.Notes[idx] = applyPatch(previous, patch)
	}
	var previousCurrent *Note
	if s.state.Current != nil && s.state.Current.ID == id {
		c := *s.state.Current
		previousCurrent = &c
		patched := applyPatch(c, patch)
		s.state.Current = &patched
	}
	s.mu.Unlock()

	updated, err := s.client.UpdateNote(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if _, i := s.find(id); i >= 0 && idx >= 0 {
			s.state.Notes[i] = previous
		}
		if previousCurrent != nil && s.state.Current != nil && s.state.Current.ID == id {
			s.state.Current = previousCurrent
		}
		s.state.Err = err
		return Note{}, err
	}
	s.state.Err = nil
	if _, i := s.find(id); i >= 0 {
		s.state.Notes[i] = updated
	}
	if s.state.Current != nil && s.state.Current.ID == id {
		s.state.Current = &updated
	}
	return updated, nil
}

// Delete removes the note locally first and puts it back on failure.
func (s *NotesStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	removed, idx := s.find(id)
	if idx >= 0 {
		s.state.Notes = slices.Delete(s.state.Notes, idx, idx+1)
	}
	s.mu.Unlock()

	err := s.client.DeleteNote(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if idx >= 0 {
			at := min(idx, len(s.state.Notes))
			s.state.Notes = slices.Insert(s.state.Notes, at, removed)
		}
		s.state.Err = err
		return err
	}
	s.state.Err = nil
	if s.state.Current != nil && s.state.Current.ID == id {
		s.state.Current = nil
	}
	return nil
}

func (s *NotesStore) find(id string) (Note, int) {
	for i, n := range s.state.Notes {
		if n.ID == id {
			return n, i
		}
	}
	return Note{}, -1
}

func applyPatch(n Note, p NotePatch) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		content := *p.Content
		n.Content = &content
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Tags != nil {
		n.Tags = slices.Clone(*p.Tags)
	}
	return n
}
