// Package api exposes the operations clients drive the system with:
// registering uploads, requesting AI processing, reading status, and
// operating on the job queue.
package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services"
)

// Service implements the client-facing operations.
type Service struct {
	cfg    *config.Config
	store  *recording.Store
	queue  *queue.Store
	logger *slog.Logger
}

// NewService constructs the API service.
func NewService(cfg *config.Config, store *recording.Store, queueStore *queue.Store, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  store,
		queue:  queueStore,
		logger: logging.NewComponentLogger(logger, "api"),
	}
}

// CreateRecordingRequest carries the inputs for registering an upload.
type CreateRecordingRequest struct {
	ID             string
	VideoPath      string
	EventsPath     string
	TargetLanguage string
}

// CreateRecording registers an uploaded recording and schedules the first
// pipeline stage. The recording is visible as UPLOADED before the extract
// job runs.
func (s *Service) CreateRecording(ctx context.Context, req CreateRecordingRequest) (*recording.Recording, error) {
	if strings.TrimSpace(req.VideoPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "create", "video path is required", nil)
	}
	if req.TargetLanguage != "" {
		if _, err := language.Parse(req.TargetLanguage); err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "create", "invalid target language", err)
		}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	rec, err := s.store.Create(ctx, id, req.VideoPath, req.EventsPath, req.TargetLanguage)
	if err != nil {
		return nil, err
	}

	if _, _, err := s.queue.Enqueue(ctx, queue.StageExtractAudio, rec.ID, "",
		queue.DedupKey(queue.StageExtractAudio, rec.ID)); err != nil {
		return nil, err
	}

	s.logger.Info("recording registered",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String("video_path", rec.VideoPath),
	)
	return rec, nil
}

// RequestProcessing re-enters the pipeline at the AI stage for a recording
// whose transcript the user has reviewed. Each request is a distinct
// scheduling unit: repeated requests for the same recording are not
// deduplicated against earlier runs.
func (s *Service) RequestProcessing(ctx context.Context, id, targetLanguage string) (*recording.Recording, error) {
	if targetLanguage != "" {
		if _, err := language.Parse(targetLanguage); err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "process", "invalid target language", err)
		}
	}

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Reprocessable() {
		return nil, services.Wrap(services.ErrValidation, "api", "process",
			"recording is not ready for processing (status "+string(rec.Status)+")", nil)
	}

	if err := s.store.Reprocess(ctx, id, targetLanguage); err != nil {
		return nil, err
	}
	if _, _, err := s.queue.Enqueue(ctx, queue.StageAIProcess, id, "",
		queue.AIDedupKey(id, time.Now())); err != nil {
		return nil, err
	}

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("processing requested",
		logging.String(logging.FieldRecordingID, id),
		logging.String("language", updated.TargetLanguage),
	)
	return updated, nil
}

// Status returns the recording record together with its queue jobs.
type Status struct {
	Recording *recording.Recording
	Jobs      []*queue.Job
}

// RecordingStatus reads the current state of one recording.
func (s *Service) RecordingStatus(ctx context.Context, id string) (*Status, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.queue.JobsForRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{Recording: rec, Jobs: jobs}, nil
}

// ListRecordings returns recordings filtered by status; no statuses means all.
func (s *Service) ListRecordings(ctx context.Context, statuses ...recording.Status) ([]*recording.Recording, error) {
	return s.store.List(ctx, statuses...)
}

// DeadJobs lists jobs parked for operator inspection.
func (s *Service) DeadJobs(ctx context.Context) ([]*queue.Job, error) {
	return s.queue.JobsByStatus(ctx, queue.JobDead)
}

// RetryDead returns parked jobs to the queue. With no IDs every dead job is
// retried.
func (s *Service) RetryDead(ctx context.Context, ids ...int64) (int64, error) {
	count, err := s.queue.RetryDead(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("dead jobs retried", logging.Int64("count", count))
	}
	return count, nil
}

// Overview aggregates store and queue counters for health displays.
type Overview struct {
	Recordings map[recording.Status]int
	Jobs       map[queue.JobStatus]int
}

// SystemOverview returns counts by recording status and job status.
func (s *Service) SystemOverview(ctx context.Context) (*Overview, error) {
	recStats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	jobStats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{Recordings: recStats, Jobs: jobStats}, nil
}
