package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

const DefaultAutoSaveDelay = 1500 * time.Millisecond

// SaveFunc persists the content of one note.
type SaveFunc func(ctx context.Context, id, content string) error

// AutoSaver debounces content saves per note id. Each Schedule call restarts
// the note's timer; only the latest content is saved. Saves carry no
// idempotency key, so a save that races a Flush may be sent twice.
type AutoSaver struct {
	delay   time.Duration
	save    SaveFunc
	onError func(id string, err error)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]string
}

func NewAutoSaver(delay time.Duration, save SaveFunc, onError func(id string, err error)) *AutoSaver {
	if delay <= 0 {
		delay = DefaultAutoSaveDelay
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	return &AutoSaver{
		delay:   delay,
		save:    save,
		onError: onError,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]string),
	}
}

// NotesSaver saves through a NotesStore, so the list reflects each save.
func NotesSaver(notes *NotesStore) SaveFunc {
	return func(ctx context.Context, id, content string) error {
		_, err := notes.Update(ctx, id, NotePatch{Content: &content})
		return err
	}
}

func (a *AutoSaver) Schedule(id, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if timer, ok := a.timers[id]; ok {
		timer.Stop()
	}
	a.pending[id] = content
	a.timers[id] = time.AfterFunc(a.delay, func() {
		content, ok := a.take(id)
		if !ok {
			return
		}
		if err := a.save(context.Background(), id, content); err != nil {
			a.onError(id, err)
		}
	})
}

func (a *AutoSaver) take(id string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	content, ok := a.pending[id]
	delete(a.pending, id)
	if timer, exists := a.timers[id]; exists {
		timer.Stop()
		delete(a.timers, id)
	}
	return content, ok
}

// Pending reports whether a save is waiting for id.
func (a *AutoSaver) Pending(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[id]
	return ok
}

// Cancel drops the pending save for id.
func (a *AutoSaver) Cancel(id string) {
	a.take(id)
}

// Flush saves everything pending now. Call it before navigating away.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var errs []error
	for _, id := range ids {
		content, ok := a.take(id)
		if !ok {
			continue
		}
		if err := a.save(ctx, id, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop cancels every pending save without running it.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
	clear(a.pending)
}
