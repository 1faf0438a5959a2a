package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"recast/internal/config"
)

// Store manages durable job queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	now func() time.Time
}

// Open initializes or connects to the job queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JobDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:          db,
		path:        dbPath,
		maxAttempts: cfg.Queue.MaxAttempts,
		baseDelay:   time.Duration(cfg.Queue.RetryBaseDelaySeconds) * time.Second,
		maxDelay:    time.Duration(cfg.Queue.RetryMaxDelaySeconds) * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Enqueue inserts a job unless a pending or active job already holds the
// same dedup key, in which case the call is a no-op and returns the existing
// job. Scheduling is idempotent per dedup key.
func (s *Store) Enqueue(ctx context.Context, stage Stage, recordingID, payload, dedupKey string) (*Job, bool, error) {
	if _, ok := stageSet[stage]; !ok {
		return nil, false, fmt.Errorf("unknown stage %q", stage)
	}
	if strings.TrimSpace(recordingID) == "" {
		return nil, false, errors.New("recording id is required")
	}
	if strings.TrimSpace(dedupKey) == "" {
		dedupKey = DedupKey(stage, recordingID)
	}

	existing, err := s.findByDedupKey(ctx, dedupKey, JobPending, JobActive)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	timestamp := now.Format(time.RFC3339Nano)
	// The partial unique index on live dedup keys closes the window between
	// the check above and this insert: a concurrent winner makes the insert
	// a no-op, and the winner's job is returned instead.
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            stage, recording_id, payload, dedup_key, status,
            attempts, max_attempts, next_run_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
        ON CONFLICT (dedup_key) WHERE status IN ('pending', 'active') DO NOTHING`,
		stage,
		recordingID,
		nullableString(payload),
		dedupKey,
		JobPending,
		s.maxAttempts,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		winner, err := s.findByDedupKey(ctx, dedupKey, JobPending, JobActive)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("job with dedup key %q vanished after conflict", dedupKey)
		}
		return winner, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Dequeue claims the oldest due pending job for a stage, transitioning it to
// active. Returns nil when no job is due. Delivery is at-least-once: a
// claimed job abandoned by a crashed worker is redelivered after its
// heartbeat expires (see ReclaimStale).
func (s *Store) Dequeue(ctx context.Context, stage Stage) (*Job, error) {
	now := s.now()
	nowStr := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE stage = ? AND status = ? AND next_run_at <= ?
         ORDER BY next_run_at, id LIMIT 1`,
		stage, JobPending, nowStr,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select due job: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobActive, nowStr, nowStr, job.ID, JobPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another worker claimed it between select and update.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = JobActive
	job.Attempts++
	job.LastHeartbeat = &now
	return job, nil
}

// Complete acknowledges a job after its stage (including the status publish)
// finished.
func (s *Store) Complete(ctx context.Context, id int64) error {
	nowStr := s.now().Format(time.RFC3339Nano)
	return s.exec(ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		JobCompleted, nowStr, id,
	)
}

// Fail records a handler failure. Retryable failures below the attempt
// ceiling are rescheduled with exponential backoff (base delay doubling per
// attempt, capped); everything else parks the job dead for operator
// inspection.
func (s *Store) Fail(ctx context.Context, job *Job, failure string, retryable bool) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := s.now()
	nowStr := now.Format(time.RFC3339Nano)

	if !retryable || job.Attempts >= job.MaxAttempts {
		return s.exec(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
			JobDead, failure, nowStr, job.ID,
		)
	}

	delay := s.backoffDelay(job.Attempts)
	nextRun := now.Add(delay).Format(time.RFC3339Nano)
	return s.exec(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, next_run_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		JobPending, failure, nextRun, nowStr, job.ID,
	)
}

func (s *Store) backoffDelay(attempts int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

// UpdateHeartbeat refreshes the liveness timestamp of an active job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	nowStr := s.now().Format(time.RFC3339Nano)
	return s.exec(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nowStr, nowStr, id, JobActive,
	)
}

// ReclaimStale returns active jobs whose heartbeat expired before the cutoff
// back to pending so another worker can pick them up.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	nowStr := s.now().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL, next_run_at = ?, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		JobPending, nowStr, nowStr,
		JobActive, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsByStatus returns jobs matching a status ordered by creation time.
func (s *Store) JobsByStatus(ctx context.Context, status JobStatus) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsForRecording returns every job touching a recording, newest first.
func (s *Store) JobsForRecording(ctx context.Context, recordingID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE recording_id = ? ORDER BY id DESC`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("query jobs for recording: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// retryEligible excludes dead jobs that cannot return to pending without
// colliding with the live-key unique index: jobs whose dedup key is held by
// a live job, and all but the newest dead job per key.
const retryEligible = `NOT EXISTS (
            SELECT 1 FROM jobs live
            WHERE live.dedup_key = jobs.dedup_key AND live.status IN ('pending', 'active')
        ) AND id IN (
            SELECT MAX(d.id) FROM jobs d WHERE d.status = 'dead' GROUP BY d.dedup_key
        )`

// RetryDead returns parked jobs to pending. With no IDs, every dead job is
// retried. Jobs that would collide with a live dedup key are skipped.
func (s *Store) RetryDead(ctx context.Context, ids ...int64) (int64, error) {
	nowStr := s.now().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, attempts = 0, next_run_at = ?, updated_at = ?
             WHERE status = ? AND `+retryEligible,
			JobPending, nowStr, nowStr, JobDead,
		)
		if err != nil {
			return 0, fmt.Errorf("retry dead jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args, JobPending, nowStr, nowStr)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, JobDead)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = 0, next_run_at = ?, updated_at = ?
         WHERE id IN (`+placeholders+`) AND status = ? AND `+retryEligible, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// Sweep garbage-collects finished (completed or dead) jobs, enforcing both
// an age bound and a total retention count.
func (s *Store) Sweep(ctx context.Context, retainCount int, retainAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-retainAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		JobCompleted, JobDead, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep aged jobs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if retainCount > 0 {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM jobs WHERE status IN (?, ?) AND id NOT IN (
                SELECT id FROM jobs WHERE status IN (?, ?) ORDER BY id DESC LIMIT ?
            )`,
			JobCompleted, JobDead, JobCompleted, JobDead, retainCount,
		)
		if err != nil {
			return removed, fmt.Errorf("sweep excess jobs: %w", err)
		}
		excess, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("rows affected: %w", err)
		}
		removed += excess
	}

	return removed, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) findByDedupKey(ctx context.Context, dedupKey string, statuses ...JobStatus) (*Job, error) {
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, dedupKey)
	for _, status := range statuses {
		args = append(args, status)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE dedup_key = ? AND status IN (`+placeholders+`) ORDER BY id LIMIT 1`,
		args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by dedup key: %w", err)
	}
	return job, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

const jobColumns = "id, stage, recording_id, payload, dedup_key, status, attempts, max_attempts, next_run_at, last_error, last_heartbeat, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		stageStr     string
		recordingID  string
		payload      sql.NullString
		dedupKey     string
		statusStr    string
		attempts     int
		maxAttempts  int
		nextRunRaw   sql.NullString
		lastError    sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&stageStr,
		&recordingID,
		&payload,
		&dedupKey,
		&statusStr,
		&attempts,
		&maxAttempts,
		&nextRunRaw,
		&lastError,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		Stage:       Stage(stageStr),
		RecordingID: recordingID,
		Payload:     payload.String,
		DedupKey:    dedupKey,
		Status:      JobStatus(statusStr),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		LastError:   lastError.String,
	}

	if next, err := parseTimeString(nextRunRaw.String); err == nil {
		job.NextRunAt = next
	}
	if heartbeatRaw.Valid {
		if hb, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &hb
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
