package jobs_test

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/jobs"
)

func newTestStore(t *testing.T) (*jobs.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := jobs.NewStore(db)
	require.NoError(t, err)
	return store, db
}

func insertJob(t *testing.T, store *jobs.Store, id string, kind jobs.Kind, submittedAt time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(jobs.Job{
		ID:          id,
		Kind:        kind,
		Payload:     json.RawMessage(`{}`),
		Status:      jobs.StatusQueued,
		SubmittedAt: submittedAt,
	}))
}

func TestClaimNextOrder(t *testing.T) {
	store, _ := newTestStore(t)

	base := time.Now()
	insertJob(t, store, "b", jobs.KindDiskCleanup, base.Add(time.Second))
	insertJob(t, store, "a", jobs.KindThumbnail, base)

	// Oldest submission is claimed first.
	job, err := store.ClaimNext()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "a", job.ID)
	assert.Equal(t, jobs.StatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job, err = store.ClaimNext()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "b", job.ID)

	// Empty queue yields nil, nil.
	job, err = store.ClaimNext()
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFinish(t *testing.T) {
	store, _ := newTestStore(t)
	insertJob(t, store, "a", jobs.KindThumbnail, time.Now())

	_, err := store.ClaimNext()
	require.NoError(t, err)

	// Only terminal statuses are accepted.
	assert.Error(t, store.Finish("a", jobs.StatusRunning, ""))

	require.NoError(t, store.Finish("a", jobs.StatusFailed, "ffmpeg exploded"))

	job, err := store.Get("a")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "ffmpeg exploded", job.Error)
	require.NotNil(t, job.FinishedAt)
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	job, err := store.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestListPagination(t *testing.T) {
	store, _ := newTestStore(t)

	base := time.Now()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		insertJob(t, store, id, jobs.KindThumbnail, base.Add(time.Duration(i)*time.Second))
	}

	t.Run("default is newest first", func(t *testing.T) {
		list, total, err := store.List(jobs.ListOptions{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, list, 2)
		assert.Equal(t, "e", list[0].ID)
		assert.Equal(t, "d", list[1].ID)
	})

	t.Run("offset walks the pages", func(t *testing.T) {
		list, _, err := store.List(jobs.ListOptions{Offset: 4, Limit: 2})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].ID)
	})

	t.Run("ascending sort", func(t *testing.T) {
		list, _, err := store.List(jobs.ListOptions{Limit: 1, SortBy: "submittedAt", SortDir: "asc"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].ID)
	})

	t.Run("unknown sort key falls back", func(t *testing.T) {
		_, _, err := store.List(jobs.ListOptions{SortBy: "payload; DROP TABLE jobs"})
		require.NoError(t, err)
	})
}

func TestBulkDelete(t *testing.T) {
	store, _ := newTestStore(t)
	insertJob(t, store, "a", jobs.KindThumbnail, time.Now())
	insertJob(t, store, "b", jobs.KindThumbnail, time.Now())

	count, err := store.BulkDelete([]string{"a", "b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.BulkDelete(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCleanup(t *testing.T) {
	store, db := newTestStore(t)

	insertJob(t, store, "old-done", jobs.KindThumbnail, time.Now().AddDate(0, 0, -30))
	_, err := store.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, store.Finish("old-done", jobs.StatusSucceeded, ""))
	// Age the finish time past the cutoff.
	_, err = db.Exec(`UPDATE jobs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -10), "old-done")
	require.NoError(t, err)

	insertJob(t, store, "recent-done", jobs.KindThumbnail, time.Now())
	_, err = store.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, store.Finish("recent-done", jobs.StatusSucceeded, ""))

	insertJob(t, store, "old-queued", jobs.KindThumbnail, time.Now().AddDate(0, 0, -30))

	count, err := store.Cleanup(7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Queued jobs survive regardless of age.
	job, err := store.Get("old-queued")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.StatusQueued, job.Status)

	job, err = store.Get("recent-done")
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestQueueDepth(t *testing.T) {
	store, _ := newTestStore(t)
	insertJob(t, store, "a", jobs.KindThumbnail, time.Now())
	insertJob(t, store, "b", jobs.KindThumbnail, time.Now())

	n, err := store.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.ClaimNext()
	require.NoError(t, err)

	n, err = store.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
