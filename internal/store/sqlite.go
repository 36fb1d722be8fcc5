package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/botrunner/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    blueprint   TEXT NOT NULL,
    state       TEXT NOT NULL,
    status      TEXT NOT NULL,
    client      TEXT NOT NULL DEFAULT '',
    data        TEXT NOT NULL,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS job_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id     TEXT NOT NULL REFERENCES jobs(id),
    seq        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    state      TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
)`

const createEventsIndex = `CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, seq)`

const jobColumns = `id, blueprint, state, status, client, data, created_at, updated_at, finished_at`

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createJobsTable, createEventsTable, createEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	data, err := encodeData(j.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Blueprint, j.State, j.Status, j.Client, data,
		j.CreatedAt, j.UpdatedAt, j.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var data string
	if err := row.Scan(
		&j.ID, &j.Blueprint, &j.State, &j.Status, &j.Client, &data,
		&j.CreatedAt, &j.UpdatedAt, &j.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &j.Data); err != nil {
		return nil, fmt.Errorf("decode job data: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns a paginated list of jobs ordered by created_at DESC,
// along with the total count of all jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateJob writes the job's state, status and data. A status change must be
// allowed by model.ValidTransition. Terminal statuses set finished_at when the
// caller has not.
func (s *SQLiteStore) UpdateJob(ctx context.Context, j *model.Job) error {
	data, err := encodeData(j.Data)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", j.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	if current != j.Status && !model.ValidTransition(current, j.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, j.Status)
	}

	now := time.Now().UTC()
	finishedAt := j.FinishedAt
	if finishedAt == nil && model.IsTerminal(j.Status) {
		finishedAt = &now
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET state = ?, status = ?, data = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
		j.State, j.Status, data, now, finishedAt, j.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job update: %w", err)
	}
	j.UpdatedAt = now
	j.FinishedAt = finishedAt
	return nil
}

// GetJobStats returns aggregate counts over all jobs.
func (s *SQLiteStore) GetJobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{
		CountByStatus:    map[string]int{},
		CountByBlueprint: map[string]int{},
		CountByAction:    map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	groups := []struct {
		expr   string
		counts map[string]int
	}{
		{"status", stats.CountByStatus},
		{"blueprint", stats.CountByBlueprint},
		{"COALESCE(CAST(json_extract(data, '$.action') AS TEXT), '')", stats.CountByAction},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.expr, g.counts); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, expr string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+expr+`, COUNT(*) FROM jobs GROUP BY 1`)
	if err != nil {
		return fmt.Errorf("group jobs by %s: %w", expr, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan job group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertEvent appends a job event.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *model.JobEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (job_id, seq, kind, state, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.JobID, ev.Seq, ev.Kind, ev.State, ev.Detail, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// GetEvents returns a job's events in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, seq, kind, state, detail, created_at
		FROM job_events WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job events: %w", err)
	}
	defer rows.Close()

	var events []model.JobEvent
	for rows.Next() {
		var ev model.JobEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Seq, &ev.Kind, &ev.State, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return events, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode job data: %w", err)
	}
	return string(b), nil
}
