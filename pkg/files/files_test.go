package files_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/files"
)

func TestStoredName(t *testing.T) {
	assert.Equal(t, "abc123def456.jpg", files.StoredName("abc123def456", "Holiday Photo.JPG"))
	assert.Equal(t, "abc123def456", files.StoredName("abc123def456", "README"))
}

func TestFinalPath(t *testing.T) {
	assert.Equal(t, "/data/uploads/slug.png", files.FinalPath("/data/uploads", "slug", "pic.png"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "slug", files.BaseName("slug.png"))
	assert.Equal(t, "slug", files.BaseName("slug"))
}

func TestSQLMetadataStoreUpsert(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := files.NewSQLMetadataStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.UpdateFileMetadata(ctx, "file-1", files.Metadata{
		Thumbnail: "a_thumb.webp",
		MediaType: "image",
	}))

	// Second write for the same file replaces, not duplicates.
	require.NoError(t, store.UpdateFileMetadata(ctx, "file-1", files.Metadata{
		Thumbnail: "a_thumb.webp",
		Preview:   "a_preview.webm",
		MediaType: "video",
	}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM file_metadata`).Scan(&count))
	assert.Equal(t, 1, count)

	var thumbnail, preview, mediaType string
	require.NoError(t, db.QueryRow(
		`SELECT thumbnail, preview, media_type FROM file_metadata WHERE file_id = ?`, "file-1",
	).Scan(&thumbnail, &preview, &mediaType))
	assert.Equal(t, "a_thumb.webp", thumbnail)
	assert.Equal(t, "a_preview.webm", preview)
	assert.Equal(t, "video", mediaType)
}
