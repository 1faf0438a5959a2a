package recording

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

// ErrNotFound is returned when a recording does not exist.
var ErrNotFound = errors.New("recording not found")

// Store manages recording persistence backed by SQLite. All mutations are
// targeted field updates so concurrent stage workers touching disjoint
// fields never clobber each other.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the recording database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.RecordingDBPath()
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

	store := &Store{db: db, path: dbPath}
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

// Create inserts a new recording in the uploaded state. The ID is opaque and
// client-generated.
func (s *Store) Create(ctx context.Context, id, videoPath, eventsPath, targetLanguage string) (*Recording, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("recording id is required")
	}
	if strings.TrimSpace(videoPath) == "" {
		return nil, errors.New("video path is required")
	}
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = DefaultTargetLanguage
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recordings (
            id, status, target_language, video_path, events_path, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		StatusUploaded,
		targetLanguage,
		videoPath,
		nullableString(eventsPath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a recording by identifier. Missing recordings return
// ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns recordings filtered by status set (or all recordings when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Recording, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordingColumns + ` FROM recordings`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a recording by identifier.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// StartProcessing moves a recording into the processing state at the audio
// extraction step. The processing start timestamp is set and any prior error
// is cleared.
func (s *Store) StartProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx, id,
		`UPDATE recordings
         SET status = ?, current_step = ?, error_message = NULL,
             processing_started_at = ?, processing_completed_at = NULL, updated_at = ?
         WHERE id = ?`,
		StatusProcessing, StepExtractingAudio, now, now, id,
	)
}

// SetStep records the last-observed pipeline step.
func (s *Store) SetStep(ctx context.Context, id string, step Step) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET current_step = ?, updated_at = ? WHERE id = ?`,
		step, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// SetAudio records the extracted audio artifact.
func (s *Store) SetAudio(ctx context.Context, id, audioPath string) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET audio_path = ?, updated_at = ? WHERE id = ?`,
		audioPath, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// SetTranscript records the transcription output.
func (s *Store) SetTranscript(ctx context.Context, id, transcript, transcriptPath string) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET transcript = ?, transcript_path = ?, updated_at = ? WHERE id = ?`,
		transcript, transcriptPath, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// MarkDraftReady pauses the pipeline after transcription: the recording is
// awaiting a user-chosen target language before continuing.
func (s *Store) MarkDraftReady(ctx context.Context, id string) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET status = ?, current_step = ?, updated_at = ? WHERE id = ?`,
		StatusDraftReady, StepCompleted, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// SetNarration records the AI stage output: the cleaned script and the
// synthesized voiceover artifact.
func (s *Store) SetNarration(ctx context.Context, id, cleanedScript, voiceoverPath string) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET cleaned_script = ?, voiceover_path = ?, updated_at = ? WHERE id = ?`,
		cleanedScript, voiceoverPath, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// SetZoomedVideo records the zoom stage output (either the rendered video or
// the raw video when no zoom was applied).
func (s *Store) SetZoomedVideo(ctx context.Context, id, zoomedVideoPath string) error {
	return s.exec(ctx, id,
		`UPDATE recordings SET zoomed_video_path = ?, updated_at = ? WHERE id = ?`,
		zoomedVideoPath, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// Complete marks the recording as fully processed.
func (s *Store) Complete(ctx context.Context, id, finalVideoPath string) error {
	if strings.TrimSpace(finalVideoPath) == "" {
		return errors.New("final video path is required to complete a recording")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx, id,
		`UPDATE recordings
         SET status = ?, current_step = ?, final_video_path = ?,
             processing_completed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, StepCompleted, finalVideoPath, now, now, id,
	)
}

// MarkFailed records a stage failure on the recording.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "processing failed"
	}
	return s.exec(ctx, id,
		`UPDATE recordings
         SET status = ?, current_step = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed, StepFailed, message, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
}

// Reprocess re-enters the pipeline at the AI stage: the status returns to
// processing, the requested target language is stored, and any prior error
// is cleared. An empty language keeps the recording's current choice. Audio
// and transcript artifacts are untouched.
func (s *Store) Reprocess(ctx context.Context, id, targetLanguage string) error {
	targetLanguage = strings.TrimSpace(targetLanguage)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx, id,
		`UPDATE recordings
         SET status = ?, current_step = ?,
             target_language = CASE WHEN ? = '' THEN target_language ELSE ? END,
             error_message = NULL, processing_completed_at = NULL, updated_at = ?
         WHERE id = ?`,
		StatusProcessing, StepAIProcessing, targetLanguage, targetLanguage, now, id,
	)
}

// Stats returns a count of recordings grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM recordings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("recording stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const recordingColumns = "id, status, current_step, target_language, video_path, events_path, audio_path, transcript_path, voiceover_path, zoomed_video_path, final_video_path, transcript, cleaned_script, error_message, processing_started_at, processing_completed_at, created_at, updated_at"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		id             string
		statusStr      string
		currentStep    sql.NullString
		targetLanguage sql.NullString
		videoPath      sql.NullString
		eventsPath     sql.NullString
		audioPath      sql.NullString
		transcriptPath sql.NullString
		voiceoverPath  sql.NullString
		zoomedPath     sql.NullString
		finalPath      sql.NullString
		transcript     sql.NullString
		cleanedScript  sql.NullString
		errorMessage   sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&currentStep,
		&targetLanguage,
		&videoPath,
		&eventsPath,
		&audioPath,
		&transcriptPath,
		&voiceoverPath,
		&zoomedPath,
		&finalPath,
		&transcript,
		&cleanedScript,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:              id,
		Status:          Status(statusStr),
		CurrentStep:     Step(currentStep.String),
		TargetLanguage:  targetLanguage.String,
		VideoPath:       videoPath.String,
		EventsPath:      eventsPath.String,
		AudioPath:       audioPath.String,
		TranscriptPath:  transcriptPath.String,
		VoiceoverPath:   voiceoverPath.String,
		ZoomedVideoPath: zoomedPath.String,
		FinalVideoPath:  finalPath.String,
		Transcript:      transcript.String,
		CleanedScript:   cleanedScript.String,
		ErrorMessage:    errorMessage.String,
	}
	if rec.TargetLanguage == "" {
		rec.TargetLanguage = DefaultTargetLanguage
	}

	if started, err := parseTimeString(startedRaw.String); err == nil {
		rec.ProcessingStartedAt = &started
	}
	if completed, err := parseTimeString(completedRaw.String); err == nil {
		rec.ProcessingCompletedAt = &completed
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
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
