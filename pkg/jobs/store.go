package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists job records in SQLite. The worker process is the only
// writer, so claiming is serialized with a transaction rather than
// cross-process locking.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore prepares the jobs table and returns the store.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			payload      TEXT NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMP NOT NULL,
			started_at   TIMESTAMP,
			finished_at  TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, submitted_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Insert records a freshly submitted job in the queued state.
func (s *Store) Insert(job Job) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, kind, payload, status, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), string(job.Payload), string(StatusQueued), job.SubmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext atomically moves the oldest queued job to running and returns it.
// A nil job means the queue is empty.
func (s *Store) ClaimNext() (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT id, kind, payload, submitted_at FROM jobs
		WHERE status = ? ORDER BY submitted_at LIMIT 1`, string(StatusQueued))

	var job Job
	var kind, payload string
	if err := row.Scan(&job.ID, &kind, &payload, &job.SubmittedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select queued job: %w", err)
	}
	job.Kind = Kind(kind)
	job.Payload = json.RawMessage(payload)

	started := s.now().UTC()
	if _, err := tx.Exec(`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		string(StatusRunning), started, job.ID); err != nil {
		return nil, fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = StatusRunning
	job.StartedAt = &started
	return &job, nil
}

// Finish moves a running job to its terminal state. errMsg is recorded only
// for failures.
func (s *Store) Finish(id string, status Status, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return nil
}

// Get returns one job record.
func (s *Store) Get(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, payload, status, error, submitted_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// sortColumns whitelists the sortable fields exposed by the listing API.
var sortColumns = map[string]string{
	"submittedAt": "submitted_at",
	"finishedAt":  "finished_at",
	"status":      "status",
	"kind":        "kind",
}

// ListOptions control pagination and ordering of job listings.
type ListOptions struct {
	Offset  int
	Limit   int
	SortBy  string
	SortDir string
}

// List returns one page of job records plus the total count.
func (s *Store) List(opts ListOptions) ([]Job, int, error) {
	col, ok := sortColumns[opts.SortBy]
	if !ok {
		col = "submitted_at"
	}
	dir := "DESC"
	if strings.EqualFold(opts.SortDir, "asc") {
		dir = "ASC"
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, kind, payload, status, error, submitted_at, started_at, finished_at
		FROM jobs ORDER BY %s %s LIMIT ? OFFSET ?`, col, dir),
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	list := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *job)
	}
	return list, total, rows.Err()
}

// BulkDelete removes the given job records and returns how many existed.
func (s *Store) BulkDelete(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Cleanup deletes terminal-state job records finished before the cutoff.
// Queued and running jobs are never touched regardless of age.
func (s *Store) Cleanup(olderThanDays int) (int, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.Exec(`
		DELETE FROM jobs
		WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at <= ?`,
		string(StatusSucceeded), string(StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// QueueDepth counts jobs waiting to run.
func (s *Store) QueueDepth() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, string(StatusQueued)).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var kind, payload string
	var started, finished sql.NullTime
	err := row.Scan(&job.ID, &kind, &payload, &job.Status, &job.Error,
		&job.SubmittedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Payload = json.RawMessage(payload)
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
