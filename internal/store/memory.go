package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs `memory://` deployments
// and the HTTP tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	notes   map[string]Note
	folders map[string]Folder
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		notes:   make(map[string]Note),
		folders: make(map[string]Folder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || (user.SSOID != "" && existing.SSOID == user.SSOID) {
			return User{}, ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = s.now()
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) GetUserBySSOID(_ context.Context, ssoID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.SSOID != "" && user.SSOID == ssoID {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) LinkSSO(_ context.Context, userID, ssoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.SSOID = ssoID
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) CreateNote(_ context.Context, note Note) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	note.ID = uuid.NewString()
	note.Tags = slices.Clone(note.Tags)
	note.CreatedAt = now
	note.UpdatedAt = now
	s.notes[note.ID] = note
	return cloneNote(note), nil
}

func (s *MemoryStore) ListNotes(_ context.Context, userID string, filter NoteFilter) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Note, 0)
	for _, note := range s.notes {
		if note.UserID != userID || !matchesFilter(note, filter) {
			continue
		}
		items = append(items, cloneNote(note))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func matchesFilter(note Note, filter NoteFilter) bool {
	if filter.Tag != "" && !slices.Contains(note.Tags, filter.Tag) {
		return false
	}
	if filter.Prefix != "" && !slices.ContainsFunc(note.Tags, func(tag string) bool {
		return strings.HasPrefix(tag, filter.Prefix)
	}) {
		return false
	}
	return true
}

func (s *MemoryStore) GetNote(_ context.Context, userID, id string) (Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok || note.UserID != userID {
		return Note{}, ErrNotFound
	}
	return cloneNote(note), nil
}

func (s *MemoryStore) NotesByIDs(_ context.Context, userID string, ids []string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Note, 0, len(ids))
	for _, id := range ids {
		if note, ok := s.notes[id]; ok && note.UserID == userID {
			items = append(items, cloneNote(note))
		}
	}
	return items, nil
}

func (s *MemoryStore) AllNotes(context.Context) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Note, 0, len(s.notes))
	for _, note := range s.notes {
		items = append(items, cloneNote(note))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, note Note) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.notes[note.ID]
	if !ok || existing.UserID != note.UserID {
		return Note{}, ErrNotFound
	}
	existing.Title = note.Title
	existing.Content = note.Content
	existing.Type = note.Type
	existing.Tags = slices.Clone(note.Tags)
	existing.UpdatedAt = s.now()
	s.notes[note.ID] = existing
	return cloneNote(existing), nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok || note.UserID != userID {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

func (s *MemoryStore) NoteTags(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, note := range s.notes {
		if note.UserID != userID {
			continue
		}
		for _, tag := range note.Tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func bulkEditable(note Note, userID, tag string) bool {
	return note.UserID == userID && !note.IsLocked && !note.IsEncrypted && slices.Contains(note.Tags, tag)
}

func (s *MemoryStore) DeleteNotesWithTag(_ context.Context, userID, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, note := range s.notes {
		if bulkEditable(note, userID, tag) {
			delete(s.notes, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RemoveTagFromNotes(_ context.Context, userID, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, note := range s.notes {
		if !bulkEditable(note, userID, tag) {
			continue
		}
		note.Tags = slices.DeleteFunc(slices.Clone(note.Tags), func(t string) bool { return t == tag })
		s.notes[id] = note
		n++
	}
	return n, nil
}

func (s *MemoryStore) RenameTagOnNotes(_ context.Context, userID, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, note := range s.notes {
		if !bulkEditable(note, userID, from) {
			continue
		}
		next := make([]string, 0, len(note.Tags))
		for _, t := range note.Tags {
			if t == from {
				t = to
			}
			if !slices.Contains(next, t) {
				next = append(next, t)
			}
		}
		note.Tags = next
		s.notes[id] = note
		n++
	}
	return n, nil
}

// SearchNotes scores notes by how many query terms appear in the title, tags
// and content, weighted in that order. Locked content is not searched.
func (s *MemoryStore) SearchNotes(_ context.Context, userID, text string, limit int) ([]ScoredNote, error) {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]ScoredNote, 0)
	for _, note := range s.notes {
		if note.UserID != userID {
			continue
		}
		title := strings.ToLower(note.Title)
		content := ""
		if !note.IsLocked {
			content = strings.ToLower(note.Content)
		}
		tagText := strings.ToLower(strings.Join(note.Tags, " "))
		var score float64
		for _, term := range terms {
			score += 10 * float64(strings.Count(title, term))
			score += 5 * float64(strings.Count(tagText, term))
			score += float64(strings.Count(content, term))
		}
		if score > 0 {
			hits = append(hits, ScoredNote{Note: cloneNote(note), Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) CreateFolder(_ context.Context, folder Folder) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.folders {
		if existing.UserID == folder.UserID && existing.Name == folder.Name {
			return Folder{}, ErrDuplicate
		}
	}
	folder.ID = uuid.NewString()
	folder.CreatedAt = s.now()
	s.folders[folder.ID] = folder
	return folder, nil
}

func (s *MemoryStore) ListFolders(_ context.Context, userID string) ([]Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Folder, 0)
	for _, folder := range s.folders {
		if folder.UserID == userID {
			items = append(items, folder)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *MemoryStore) GetFolder(_ context.Context, userID, id string) (Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.folders[id]
	if !ok || folder.UserID != userID {
		return Folder{}, ErrNotFound
	}
	return folder, nil
}

func (s *MemoryStore) FolderNameTaken(_ context.Context, userID, name, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, folder := range s.folders {
		if id != excludeID && folder.UserID == userID && folder.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) RenameFolder(_ context.Context, userID, id, name string) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok || folder.UserID != userID {
		return Folder{}, ErrNotFound
	}
	folder.Name = name
	s.folders[id] = folder
	return folder, nil
}

func (s *MemoryStore) DeleteFolder(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok || folder.UserID != userID {
		return ErrNotFound
	}
	delete(s.folders, id)
	return nil
}

// MigrateLegacyFolders has nothing to do: memory stores never held folder
// references on notes.
func (s *MemoryStore) MigrateLegacyFolders(context.Context) (int64, error) {
	return 0, nil
}

func cloneNote(note Note) Note {
	note.Tags = slices.Clone(note.Tags)
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return note
}
