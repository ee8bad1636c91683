package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"notegeek/internal/store"
)

// NoteSource lists a user's notes.
type NoteSource interface {
	ListNotes(ctx context.Context, userID string, filter store.NoteFilter) ([]store.Note, error)
}

// Service provides note export and backup
type Service struct {
	notes    NoteSource
	uploader Uploader
	now      func() time.Time
}

// NewService creates a new export service. uploader may be nil, which
// disables backups.
func NewService(notes NoteSource, uploader Uploader) *Service {
	return &Service{
		notes:    notes,
		uploader: uploader,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) BackupsEnabled() bool {
	return s.uploader != nil
}

// Export builds the archive of every note the user owns.
func (s *Service) Export(ctx context.Context, userID string) (*Result, error) {
	items, err := s.notes.ListNotes(ctx, userID, store.NoteFilter{})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	now := s.now()
	var buf bytes.Buffer
	if err := WriteArchive(&buf, items, now); err != nil {
		return nil, err
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("notegeek-export-%s.tar.gz", now.Format("20060102-150405")),
		MimeType: MimeType,
		Notes:    len(items),
	}, nil
}

// Backup uploads the export archive to backups/<userID>/<timestamp>.tar.gz.
func (s *Service) Backup(ctx context.Context, userID string) (BackupResult, error) {
	if s.uploader == nil {
		return BackupResult{}, ErrStorageNotConfigured
	}
	result, err := s.Export(ctx, userID)
	if err != nil {
		return BackupResult{}, err
	}
	createdAt := s.now()
	key := fmt.Sprintf("backups/%s/%s.tar.gz", userID, createdAt.Format("20060102T150405Z"))
	if err := s.uploader.Upload(ctx, key, bytes.NewReader(result.Data), int64(len(result.Data)), MimeType); err != nil {
		return BackupResult{}, fmt.Errorf("upload backup: %w", err)
	}
	return BackupResult{
		Bucket:    s.uploader.Bucket(),
		Key:       key,
		Size:      int64(len(result.Data)),
		Notes:     result.Notes,
		CreatedAt: createdAt,
	}, nil
}
