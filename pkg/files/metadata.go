package files

import (
	"context"
	"database/sql"
	"fmt"
)

// Metadata is the thumbnail/preview result recorded against a file record.
type Metadata struct {
	Thumbnail string `json:"thumbnail"`
	Preview   string `json:"preview,omitempty"`
	MediaType string `json:"type,omitempty"`
}

// MetadataUpdater is the external metadata-update interface. The job runner
// writes generation results through it; tests substitute an in-memory fake.
type MetadataUpdater interface {
	UpdateFileMetadata(ctx context.Context, fileID string, meta Metadata) error
}

// SQLMetadataStore persists file metadata in SQLite. Re-running a generator
// for the same file overwrites the previous row, matching the idempotent
// output contract of the generators themselves.
type SQLMetadataStore struct {
	db *sql.DB
}

// NewSQLMetadataStore prepares the metadata table and returns the store.
func NewSQLMetadataStore(db *sql.DB) (*SQLMetadataStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS file_metadata (
			file_id    TEXT PRIMARY KEY,
			thumbnail  TEXT NOT NULL,
			preview    TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create file_metadata table: %w", err)
	}
	return &SQLMetadataStore{db: db}, nil
}

// UpdateFileMetadata inserts or replaces the metadata row for fileID.
func (s *SQLMetadataStore) UpdateFileMetadata(ctx context.Context, fileID string, meta Metadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (file_id, thumbnail, preview, media_type, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(file_id) DO UPDATE SET
			thumbnail  = excluded.thumbnail,
			preview    = excluded.preview,
			media_type = excluded.media_type,
			updated_at = CURRENT_TIMESTAMP`,
		fileID, meta.Thumbnail, meta.Preview, meta.MediaType)
	if err != nil {
		return fmt.Errorf("failed to update metadata for file %s: %w", fileID, err)
	}
	return nil
}
