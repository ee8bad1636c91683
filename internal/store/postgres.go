package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const noteColumns = `id, user_id, title, content, type, tags, is_locked, is_encrypted, COALESCE(lock_hash, ''), created_at, updated_at`

func scanNote(row rowScanner) (Note, error) {
	var note Note
	typeMap := pgtype.NewMap()
	err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Content,
		&note.Type,
		typeMap.SQLScanner(&note.Tags),
		&note.IsLocked,
		&note.IsEncrypted,
		&note.LockHash,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return Note{}, err
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return note, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()
	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	user.ID = uuid.NewString()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, sso_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING created_at
	`, user.ID, user.Email, user.PasswordHash, user.SSOID).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, COALESCE(sso_id, ''), created_at
		FROM users
		WHERE `+where, arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.SSOID, &user.CreatedAt)
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, "id=$1", id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "email=$1", email)
}

func (s *PostgresStore) GetUserBySSOID(ctx context.Context, ssoID string) (User, error) {
	return s.getUser(ctx, "sso_id=$1", ssoID)
}

func (s *PostgresStore) LinkSSO(ctx context.Context, userID, ssoID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET sso_id=$2 WHERE id=$1`, userID, ssoID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("link sso: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, note Note) (Note, error) {
	note.ID = uuid.NewString()
	if note.Tags == nil {
		note.Tags = []string{}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, user_id, title, content, type, tags, is_locked, is_encrypted, lock_hash)
		VALUES ($1, $2, $3, $4, $5, $6::text[], $7, $8, NULLIF($9, ''))
		RETURNING `+noteColumns,
		note.ID, note.UserID, note.Title, note.Content, note.Type, note.Tags, note.IsLocked, note.IsEncrypted, note.LockHash)
	created, err := scanNote(row)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE user_id=$1
		  AND ($2 = '' OR $2 = ANY(tags))
		  AND ($3 = '' OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE starts_with(t, $3)))
		ORDER BY updated_at DESC, id
	`, userID, filter.Tag, filter.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return collectNotes(rows)
}

func (s *PostgresStore) GetNote(ctx context.Context, userID, id string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1 AND user_id=$2`, id, userID)
	note, err := scanNote(row)
	if err != nil {
		return Note{}, notFound(err)
	}
	return note, nil
}

func (s *PostgresStore) NotesByIDs(ctx context.Context, userID string, ids []string) ([]Note, error) {
	if len(ids) == 0 {
		return []Note{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE user_id=$1 AND id = ANY($2::text[])
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("notes by ids: %w", err)
	}
	return collectNotes(rows)
}

func (s *PostgresStore) AllNotes(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all notes: %w", err)
	}
	return collectNotes(rows)
}

func (s *PostgresStore) UpdateNote(ctx context.Context, note Note) (Note, error) {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$3, content=$4, type=$5, tags=$6::text[], updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+noteColumns,
		note.ID, note.UserID, note.Title, note.Content, note.Type, note.Tags)
	updated, err := scanNote(row)
	if err != nil {
		return Note{}, notFound(err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) NoteTags(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t
		FROM notes, unnest(tags) AS t
		WHERE user_id=$1
		ORDER BY t COLLATE "C"
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteNotesWithTag(ctx context.Context, userID, tag string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notes
		WHERE user_id=$1 AND $2 = ANY(tags) AND NOT is_locked AND NOT is_encrypted
	`, userID, tag)
	if err != nil {
		return 0, fmt.Errorf("delete tagged notes: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) RemoveTagFromNotes(ctx context.Context, userID, tag string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET tags = array_remove(tags, $2)
		WHERE user_id=$1 AND $2 = ANY(tags) AND NOT is_locked AND NOT is_encrypted
	`, userID, tag)
	if err != nil {
		return 0, fmt.Errorf("remove tag: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) RenameTagOnNotes(ctx context.Context, userID, from, to string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET tags = ARRAY(
			SELECT DISTINCT CASE WHEN t = $2 THEN $3 ELSE t END
			FROM unnest(tags) AS t
		)
		WHERE user_id=$1 AND $2 = ANY(tags) AND NOT is_locked AND NOT is_encrypted
	`, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("rename tag: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) CreateFolder(ctx context.Context, folder Folder) (Folder, error) {
	folder.ID = uuid.NewString()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO folders (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, folder.ID, folder.UserID, folder.Name).Scan(&folder.CreatedAt)
	if isUniqueViolation(err) {
		return Folder{}, ErrDuplicate
	}
	if err != nil {
		return Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return folder, nil
}

func (s *PostgresStore) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM folders
		WHERE user_id=$1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		var item Folder
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, userID, id string) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at FROM folders WHERE id=$1 AND user_id=$2
	`, id, userID).Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Folder{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) FolderNameTaken(ctx context.Context, userID, name, excludeID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM folders WHERE user_id=$1 AND name=$2 AND id<>$3)
	`, userID, name, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check folder name: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, userID, id, name string) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		UPDATE folders SET name=$3
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, name, created_at
	`, id, userID, name).Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt)
	if isUniqueViolation(err) {
		return Folder{}, ErrDuplicate
	}
	if err != nil {
		return Folder{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteFolder(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return requireAffected(result)
}

// MigrateLegacyFolders is a no-op here; migration 00002 rewrites folder_id
// into tags when the schema is upgraded.
func (s *PostgresStore) MigrateLegacyFolders(context.Context) (int64, error) {
	return 0, nil
}
