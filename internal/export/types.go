// Package export packages a user's notes as a tar.gz of markdown files and
// ships backups to object storage.
package export

import (
	"errors"
	"time"
)

const MimeType = "application/gzip"

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	Notes    int
}

// BackupResult describes an archive stored in object storage.
type BackupResult struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Notes     int       `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrStorageNotConfigured indicates no object storage is available for backups.
	ErrStorageNotConfigured = errors.New("backup storage not configured")
)
