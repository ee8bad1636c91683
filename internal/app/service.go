package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notegeek/internal/auth"
	"notegeek/internal/authpw"
	"notegeek/internal/config"
	"notegeek/internal/export"
	"notegeek/internal/notes"
	"notegeek/internal/policy"
	"notegeek/internal/search"
	"notegeek/internal/store"
	"notegeek/internal/tags"
)

// Revoker records logged-out tokens. *session.RedisStore satisfies it.
type Revoker interface {
	Revoke(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	User      store.User
	Token     string
	ExpiresAt time.Time
}

// AuthResult is the body of register, login and SSO responses.
type AuthResult struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Token     string    `json:"token,omitempty"`
}

type FolderView struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
}

// FolderRenameResult is the renamed folder plus the number of its locked or
// encrypted notes that kept the old tag.
type FolderRenameResult struct {
	FolderView
	NotesSkipped int64 `json:"notesSkipped,omitempty"`
}

type FolderDeleteResult struct {
	Message      string `json:"message"`
	ID           string `json:"id"`
	NotesDeleted *int64 `json:"notesDeleted,omitempty"`
	NotesUpdated *int64 `json:"notesUpdated,omitempty"`
	NotesSkipped int64  `json:"notesSkipped,omitempty"`
}

type Service struct {
	cfg       config.Config
	store     store.Store
	passwords *authpw.Service
	revoker   Revoker
	search    *search.Service
	export    *export.Service
	logger    zerolog.Logger
}

// New wires the service. revoker may be nil, in which case logout only
// acknowledges.
func New(cfg config.Config, dataStore store.Store, searchService *search.Service, exportService *export.Service, revoker Revoker, logger zerolog.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		passwords: authpw.NewService(dataStore, logger),
		revoker:   revoker,
		search:    searchService,
		export:    exportService,
		logger:    logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Production() bool {
	return s.cfg.Production()
}

func (s *Service) Register(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.passwords.Register(ctx, authpw.Credentials{Email: email, Password: password})
	if err != nil {
		return AuthResult{}, passwordError(err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.passwords.Login(ctx, authpw.Credentials{Email: email, Password: password})
	if err != nil {
		return AuthResult{}, passwordError(err)
	}
	return s.issue(user)
}

func passwordError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return Unauthorized(err.Error())
	case errors.Is(err, authpw.ErrMissingCredentials),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrPasswordTooShort),
		errors.Is(err, authpw.ErrUserExists):
		return ValidationError(err.Error(), nil)
	default:
		return err
	}
}

func (s *Service) issue(user store.User) (AuthResult, error) {
	token, _, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, s.cfg.TokenTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt, Token: token}, nil
}

// ValidateSSO accepts a GeekBase token and maps it to a local account: by SSO
// id first, then by email (linking the account), else a new SSO-only user.
// The same token is handed back to the client.
func (s *Service) ValidateSSO(ctx context.Context, token string) (AuthResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AuthResult{}, Unauthorized("SSO token is required")
	}
	identity, err := auth.ParseSSOToken([]byte(s.cfg.SSOVerificationSecret()), token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("sso token rejected")
		return AuthResult{}, Unauthorized("Invalid SSO token")
	}

	user, err := s.store.GetUserBySSOID(ctx, identity.ID)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.linkOrCreateSSOUser(ctx, identity)
	}
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt, Token: token}, nil
}

func (s *Service) linkOrCreateSSOUser(ctx context.Context, identity auth.SSOIdentity) (store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		if err := s.store.LinkSSO(ctx, user.ID, identity.ID); err != nil {
			return store.User{}, fmt.Errorf("link sso: %w", err)
		}
		user.SSOID = identity.ID
		s.logger.Info().Str("user_id", user.ID).Msg("sso identity linked")
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	user, err = s.store.CreateUser(ctx, store.User{Email: identity.Email, SSOID: identity.ID})
	if err != nil {
		return store.User{}, fmt.Errorf("create sso user: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("sso user created")
	return user, nil
}

// Authenticate resolves a bearer token. Our own tokens are tried first, then
// GeekBase tokens, which carry the SSO id instead of ours.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, Unauthorized("No token provided")
	}
	identity, err := s.resolveToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, auth.HashToken(token))
		if err != nil {
			return Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Identity{}, Unauthorized("Token has been revoked")
		}
	}
	return identity, nil
}

func (s *Service) resolveToken(ctx context.Context, token string) (Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if errors.Is(err, auth.ErrExpiredToken) {
		return Identity{}, Unauthorized("Token expired")
	}
	if err == nil {
		user, err := s.store.GetUserByID(ctx, claims.UserID)
		if err == nil {
			return Identity{User: user, Token: token, ExpiresAt: claims.ExpiresAtTime()}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Identity{}, fmt.Errorf("load user: %w", err)
		}
	}

	sso, err := auth.ParseSSOToken([]byte(s.cfg.SSOVerificationSecret()), token)
	if errors.Is(err, auth.ErrExpiredToken) {
		return Identity{}, Unauthorized("Token expired")
	}
	if err != nil {
		return Identity{}, Unauthorized("Invalid token")
	}
	user, err := s.store.GetUserBySSOID(ctx, sso.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, Unauthorized("User not found")
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	return Identity{User: user, Token: token, ExpiresAt: sso.ExpiresAt}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, identity Identity) error {
	if s.revoker == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, auth.HashToken(identity.Token), identity.User.ID, identity.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) Me(identity Identity) AuthResult {
	return AuthResult{ID: identity.User.ID, Email: identity.User.Email, CreatedAt: identity.User.CreatedAt}
}

func (s *Service) ListNotes(ctx context.Context, userID, tag, prefix string) ([]notes.View, error) {
	items, err := s.store.ListNotes(ctx, userID, store.NoteFilter{
		Tag:    strings.TrimSpace(tag),
		Prefix: strings.TrimSpace(prefix),
	})
	if err != nil {
		return nil, err
	}
	return notes.NewViews(items), nil
}

func (s *Service) CreateNote(ctx context.Context, userID string, draft notes.Draft) (notes.View, error) {
	draft = notes.Normalize(draft)
	if result := notes.Validate(draft); !result.OK() {
		return notes.View{}, ValidationError(result.Message(), result.Errors)
	}

	note := store.Note{
		UserID:      userID,
		Title:       draft.Title,
		Content:     draft.Content,
		Type:        draft.Type,
		Tags:        draft.Tags,
		IsLocked:    draft.IsLocked,
		IsEncrypted: draft.IsEncrypted,
	}
	if draft.IsLocked {
		hash, err := notes.HashLockPassword(draft.Password)
		if err != nil {
			return notes.View{}, err
		}
		note.LockHash = hash
	}

	created, err := s.store.CreateNote(ctx, note)
	if err != nil {
		return notes.View{}, fmt.Errorf("create note: %w", err)
	}
	s.search.IndexNote(created)
	return notes.NewView(created), nil
}

func (s *Service) GetNote(ctx context.Context, userID, id string) (notes.View, error) {
	note, err := s.ownedNote(ctx, userID, id)
	if err != nil {
		return notes.View{}, err
	}
	return notes.NewView(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, userID, id string, patch notes.Patch) (notes.View, error) {
	note, err := s.ownedNote(ctx, userID, id)
	if err != nil {
		return notes.View{}, err
	}
	if err := requireAction(note, policy.ActionWrite); err != nil {
		return notes.View{}, err
	}

	draft := notes.Normalize(patch.Apply(note))
	if result := notes.Validate(draft); !result.OK() {
		return notes.View{}, ValidationError(result.Message(), result.Errors)
	}
	note.Title = draft.Title
	note.Content = draft.Content
	note.Type = draft.Type
	note.Tags = draft.Tags

	updated, err := s.store.UpdateNote(ctx, note)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notes.View{}, NotFound("Note not found")
		}
		return notes.View{}, fmt.Errorf("update note: %w", err)
	}
	s.search.IndexNote(updated)
	return notes.NewView(updated), nil
}

func (s *Service) DeleteNote(ctx context.Context, userID, id string) error {
	note, err := s.ownedNote(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := requireAction(note, policy.ActionDelete); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Note not found")
		}
		return fmt.Errorf("delete note: %w", err)
	}
	s.search.DeleteNote(id)
	return nil
}

func (s *Service) ownedNote(ctx context.Context, userID, id string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Note{}, NotFound("Note not found")
	}
	if err != nil {
		return store.Note{}, fmt.Errorf("load note: %w", err)
	}
	return note, nil
}

func requireAction(note store.Note, action policy.Action) error {
	state := policy.StateOf(note.IsLocked, note.IsEncrypted)
	if policy.Can(state, action) {
		return nil
	}
	return Forbidden(fmt.Sprintf("This note is %s and cannot be modified", strings.ToLower(string(state))))
}

func (s *Service) ListTags(ctx context.Context, userID string) ([]string, error) {
	list, err := s.store.NoteTags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// TagHierarchy counts, per path segment, how many of the user's notes carry a
// tag under it.
func (s *Service) TagHierarchy(ctx context.Context, userID string) (map[string]*tags.Node, error) {
	items, err := s.store.ListNotes(ctx, userID, store.NoteFilter{})
	if err != nil {
		return nil, err
	}
	lists := make([][]string, 0, len(items))
	for _, n := range items {
		lists = append(lists, n.Tags)
	}
	return tags.CountHierarchy(lists), nil
}

func (s *Service) Search(ctx context.Context, userID, text string, limit int) ([]notes.View, error) {
	hits, err := s.search.Search(ctx, search.Query{UserID: userID, Text: text, Limit: limit})
	if errors.Is(err, search.ErrEmptyQuery) {
		return nil, ValidationError("Search query is required", nil)
	}
	if err != nil {
		return nil, err
	}
	return notes.NewScoredViews(hits), nil
}

func (s *Service) ListFolders(ctx context.Context, userID string) ([]FolderView, error) {
	items, err := s.store.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]FolderView, 0, len(items))
	for _, f := range items {
		out = append(out, newFolderView(f))
	}
	return out, nil
}

func newFolderView(f store.Folder) FolderView {
	tag, _ := tags.FolderTag(f.Name)
	return FolderView{ID: f.ID, User: f.UserID, Name: f.Name, Tag: tag, CreatedAt: f.CreatedAt}
}

func folderName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ValidationError("Folder name is required", nil)
	}
	if _, err := tags.FolderTag(name); err != nil {
		return "", ValidationError("Folder name may only contain letters, numbers, spaces, _, / and -", nil)
	}
	return name, nil
}

func (s *Service) CreateFolder(ctx context.Context, userID, rawName string) (FolderView, error) {
	name, err := folderName(rawName)
	if err != nil {
		return FolderView{}, err
	}
	folder, err := s.store.CreateFolder(ctx, store.Folder{UserID: userID, Name: name})
	if errors.Is(err, store.ErrDuplicate) {
		return FolderView{}, Conflict("Folder with this name already exists")
	}
	if err != nil {
		return FolderView{}, fmt.Errorf("create folder: %w", err)
	}
	return newFolderView(folder), nil
}

// RenameFolder renames a folder and moves its notes to the new folder tag.
// Locked and encrypted notes cannot be modified, so they keep the old tag.
func (s *Service) RenameFolder(ctx context.Context, userID, id, rawName string) (FolderRenameResult, error) {
	name, err := folderName(rawName)
	if err != nil {
		return FolderRenameResult{}, err
	}
	folder, err := s.ownedFolder(ctx, userID, id)
	if err != nil {
		return FolderRenameResult{}, err
	}
	taken, err := s.store.FolderNameTaken(ctx, userID, name, id)
	if err != nil {
		return FolderRenameResult{}, fmt.Errorf("check folder name: %w", err)
	}
	if taken {
		return FolderRenameResult{}, Conflict("Folder with this name already exists")
	}

	renamed, err := s.store.RenameFolder(ctx, userID, id, name)
	if errors.Is(err, store.ErrDuplicate) {
		return FolderRenameResult{}, Conflict("Folder with this name already exists")
	}
	if err != nil {
		return FolderRenameResult{}, fmt.Errorf("rename folder: %w", err)
	}

	result := FolderRenameResult{FolderView: newFolderView(renamed)}
	from, _ := tags.FolderTag(folder.Name)
	to, _ := tags.FolderTag(name)
	if from == to {
		return result, nil
	}
	affected, err := s.store.ListNotes(ctx, userID, store.NoteFilter{Tag: from})
	if err != nil {
		return FolderRenameResult{}, err
	}
	editable, skipped := splitWritable(affected, policy.ActionWrite)
	moved, err := s.store.RenameTagOnNotes(ctx, userID, from, to)
	if err != nil {
		return FolderRenameResult{}, fmt.Errorf("retag folder notes: %w", err)
	}
	s.logger.Debug().Str("folder_id", id).Int64("notes", moved).Int64("skipped", skipped).Msg("folder notes retagged")
	s.reindex(ctx, userID, editable)
	result.NotesSkipped = skipped
	return result, nil
}

// DeleteFolder removes the folder. With deleteNotes the notes carrying its tag
// are deleted too; otherwise they only lose the tag. Locked and encrypted
// notes are never touched and are reported as skipped.
func (s *Service) DeleteFolder(ctx context.Context, userID, id string, deleteNotes bool) (FolderDeleteResult, error) {
	folder, err := s.ownedFolder(ctx, userID, id)
	if err != nil {
		return FolderDeleteResult{}, err
	}
	tag, _ := tags.FolderTag(folder.Name)

	affected, err := s.store.ListNotes(ctx, userID, store.NoteFilter{Tag: tag})
	if err != nil {
		return FolderDeleteResult{}, err
	}

	result := FolderDeleteResult{Message: "Folder deleted", ID: id}
	if deleteNotes {
		editable, skipped := splitWritable(affected, policy.ActionDelete)
		n, err := s.store.DeleteNotesWithTag(ctx, userID, tag)
		if err != nil {
			return FolderDeleteResult{}, fmt.Errorf("delete folder notes: %w", err)
		}
		for _, note := range editable {
			s.search.DeleteNote(note.ID)
		}
		result.NotesDeleted = &n
		result.NotesSkipped = skipped
	} else {
		editable, skipped := splitWritable(affected, policy.ActionWrite)
		n, err := s.store.RemoveTagFromNotes(ctx, userID, tag)
		if err != nil {
			return FolderDeleteResult{}, fmt.Errorf("untag folder notes: %w", err)
		}
		s.reindex(ctx, userID, editable)
		result.NotesUpdated = &n
		result.NotesSkipped = skipped
	}

	if err := s.store.DeleteFolder(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return FolderDeleteResult{}, NotFound("Folder not found")
		}
		return FolderDeleteResult{}, fmt.Errorf("delete folder: %w", err)
	}
	return result, nil
}

func (s *Service) ownedFolder(ctx context.Context, userID, id string) (store.Folder, error) {
	folder, err := s.store.GetFolder(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Folder{}, NotFound("Folder not found")
	}
	if err != nil {
		return store.Folder{}, fmt.Errorf("load folder: %w", err)
	}
	return folder, nil
}

// splitWritable keeps the notes whose state allows action and counts the rest.
func splitWritable(items []store.Note, action policy.Action) ([]store.Note, int64) {
	allowed := make([]store.Note, 0, len(items))
	var skipped int64
	for _, n := range items {
		if requireAction(n, action) != nil {
			skipped++
			continue
		}
		allowed = append(allowed, n)
	}
	return allowed, skipped
}

// reindex pushes the current version of notes whose tags changed in bulk.
func (s *Service) reindex(ctx context.Context, userID string, stale []store.Note) {
	if len(stale) == 0 {
		return
	}
	ids := make([]string, 0, len(stale))
	for _, n := range stale {
		ids = append(ids, n.ID)
	}
	fresh, err := s.store.NotesByIDs(ctx, userID, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reindex notes")
		return
	}
	s.search.IndexNotes(fresh)
}

func (s *Service) Export(ctx context.Context, userID string) (*export.Result, error) {
	return s.export.Export(ctx, userID)
}

func (s *Service) Backup(ctx context.Context, userID string) (export.BackupResult, error) {
	result, err := s.export.Backup(ctx, userID)
	if errors.Is(err, export.ErrStorageNotConfigured) {
		return export.BackupResult{}, unavailable("Backup storage is not configured")
	}
	if err != nil {
		return export.BackupResult{}, err
	}
	s.logger.Info().Str("user_id", userID).Str("key", result.Key).Int("notes", result.Notes).Msg("backup stored")
	return result, nil
}
