package client

import (
	"context"
	"slices"
	"strings"
	"sync"
)

type TagsState struct {
	Tags      []string
	Hierarchy map[string]*TagNode
	Loading   bool
	Err       error
}

type TagsStore struct {
	client *Client

	mu    sync.RWMutex
	state TagsState
}

func NewTagsStore(c *Client) *TagsStore {
	return &TagsStore{client: c}
}

func (s *TagsStore) Snapshot() TagsState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	state.Tags = slices.Clone(s.state.Tags)
	return state
}

// Load refreshes both the flat list and the counted tree.
func (s *TagsStore) Load(ctx context.Context) error {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = nil
	s.mu.Unlock()

	list, err := s.client.Tags(ctx)
	var tree map[string]*TagNode
	if err == nil {
		tree, err = s.client.TagHierarchy(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	s.state.Tags = list
	s.state.Hierarchy = tree
	return nil
}

type FoldersState struct {
	Folders []Folder
	Loading bool
	Err     error
}

type FoldersStore struct {
	client *Client

	mu    sync.RWMutex
	state FoldersState
}

func NewFoldersStore(c *Client) *FoldersStore {
	return &FoldersStore{client: c}
}

func (s *FoldersStore) Snapshot() FoldersState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	state.Folders = slices.Clone(s.state.Folders)
	return state
}

func (s *FoldersStore) Load(ctx context.Context) error {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = nil
	s.mu.Unlock()

	items, err := s.client.Folders(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	s.state.Folders = items
	return nil
}

func (s *FoldersStore) Create(ctx context.Context, name string) (Folder, error) {
	folder, err := s.client.CreateFolder(ctx, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.Err = err
		return Folder{}, err
	}
	s.state.Err = nil
	s.state.Folders = append(s.state.Folders, folder)
	sortFolders(s.state.Folders)
	return folder, nil
}

// Rename shows the new name right away and reverts it on failure.
func (s *FoldersStore) Rename(ctx context.Context, id, name string) (Folder, error) {
	s.mu.Lock()
	idx := s.index(id)
	var previous Folder
	if idx >= 0 {
		previous = s.state.Folders[idx]
		s.state.Folders[idx].Name = name
	}
	s.mu.Unlock()

	folder, err := s.client.RenameFolder(ctx, id, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if i := s.index(id); i >= 0 && idx >= 0 {
			s.state.Folders[i] = previous
		}
		s.state.Err = err
		return Folder{}, err
	}
	s.state.Err = nil
	if i := s.index(id); i >= 0 {
		s.state.Folders[i] = folder
	}
	sortFolders(s.state.Folders)
	return folder, nil
}

// Delete hides the folder right away and restores it on failure.
func (s *FoldersStore) Delete(ctx context.Context, id string, deleteNotes bool) (FolderDeleteResult, error) {
	s.mu.Lock()
	idx := s.index(id)
	var removed Folder
	if idx >= 0 {
		removed = s.state.Folders[idx]
		s.state.Folders = slices.Delete(s.state.Folders, idx, idx+1)
	}
	s.mu.Unlock()

	result, err := s.client.DeleteFolder(ctx, id, deleteNotes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if idx >= 0 {
			s.state.Folders = append(s.state.Folders, removed)
			sortFolders(s.state.Folders)
		}
		s.state.Err = err
		return FolderDeleteResult{}, err
	}
	s.state.Err = nil
	return result, nil
}

func (s *FoldersStore) index(id string) int {
	return slices.IndexFunc(s.state.Folders, func(f Folder) bool { return f.ID == id })
}

func sortFolders(items []Folder) {
	slices.SortFunc(items, func(a, b Folder) int { return strings.Compare(a.Name, b.Name) })
}
