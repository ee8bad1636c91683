package store

import "context"

// Store is the persistence surface shared by the MongoDB, PostgreSQL and
// in-memory backends. Every note and folder operation is scoped to its owner.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserBySSOID(ctx context.Context, ssoID string) (User, error)
	LinkSSO(ctx context.Context, userID, ssoID string) error

	CreateNote(ctx context.Context, note Note) (Note, error)
	ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error)
	GetNote(ctx context.Context, userID, id string) (Note, error)
	NotesByIDs(ctx context.Context, userID string, ids []string) ([]Note, error)
	// AllNotes returns every note of every user, for rebuilding the search index.
	AllNotes(ctx context.Context) ([]Note, error)
	UpdateNote(ctx context.Context, note Note) (Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
	NoteTags(ctx context.Context, userID string) ([]string, error)
	// The bulk tag operations below leave locked and encrypted notes alone.
	DeleteNotesWithTag(ctx context.Context, userID, tag string) (int64, error)
	RemoveTagFromNotes(ctx context.Context, userID, tag string) (int64, error)
	RenameTagOnNotes(ctx context.Context, userID, from, to string) (int64, error)

	CreateFolder(ctx context.Context, folder Folder) (Folder, error)
	ListFolders(ctx context.Context, userID string) ([]Folder, error)
	GetFolder(ctx context.Context, userID, id string) (Folder, error)
	FolderNameTaken(ctx context.Context, userID, name, excludeID string) (bool, error)
	RenameFolder(ctx context.Context, userID, id, name string) (Folder, error)
	DeleteFolder(ctx context.Context, userID, id string) error

	MigrateLegacyFolders(ctx context.Context) (int64, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
