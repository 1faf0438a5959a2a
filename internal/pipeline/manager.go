// Package pipeline runs the staged processing workflow. One consumer loop
// group per stage pulls jobs from the durable queue, executes the stage
// handler against the current recording record, publishes the resulting
// status event, and schedules the successor stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"recast/internal/config"
	"recast/internal/events"
	"recast/internal/logging"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services"
	"recast/internal/stage"
)

// Manager owns the consumer loops and background maintenance tickers.
type Manager struct {
	cfg       *config.Config
	store     *recording.Store
	queue     *queue.Store
	publisher events.Publisher
	handlers  map[queue.Stage]stage.Handler
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager wires the pipeline together. Every queue stage must have
// exactly one handler; the stage transition table is checked for totality
// up front so a wiring mistake fails startup instead of stranding jobs.
func NewManager(
	cfg *config.Config,
	store *recording.Store,
	queueStore *queue.Store,
	publisher events.Publisher,
	logger *slog.Logger,
	handlers ...stage.Handler,
) (*Manager, error) {
	if err := queue.ValidateTransitions(); err != nil {
		return nil, fmt.Errorf("stage transitions: %w", err)
	}

	byStage := make(map[queue.Stage]stage.Handler, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			return nil, errors.New("nil stage handler")
		}
		if _, dup := byStage[handler.Stage()]; dup {
			return nil, fmt.Errorf("duplicate handler for stage %s", handler.Stage())
		}
		byStage[handler.Stage()] = handler
	}
	for _, s := range queue.AllStages() {
		if _, ok := byStage[s]; !ok {
			return nil, fmt.Errorf("no handler for stage %s", s)
		}
	}

	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Manager{
		cfg:       cfg,
		store:     store,
		queue:     queueStore,
		publisher: publisher,
		handlers:  byStage,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Start launches the consumer loops and maintenance tickers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("pipeline already started")
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for s, handler := range m.handlers {
		for i := 0; i < m.workerCount(s); i++ {
			m.wg.Add(1)
			go m.consumeLoop(runCtx, s, handler)
		}
	}

	m.wg.Add(2)
	go m.reclaimLoop(runCtx)
	go m.sweepLoop(runCtx)

	m.logger.Info("pipeline started",
		logging.Int("stages", len(m.handlers)),
	)
	return nil
}

// Stop shuts down the loops and waits for in-flight jobs to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Health reports per-stage readiness.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	healths := make([]stage.Health, 0, len(m.handlers))
	for _, s := range queue.AllStages() {
		if handler, ok := m.handlers[s]; ok {
			healths = append(healths, handler.HealthCheck(ctx))
		}
	}
	return healths
}

func (m *Manager) workerCount(s queue.Stage) int {
	var count int
	switch s {
	case queue.StageExtractAudio:
		count = m.cfg.Workers.ExtractAudio
	case queue.StageTranscribe:
		count = m.cfg.Workers.Transcribe
	case queue.StageAIProcess:
		count = m.cfg.Workers.AIProcess
	case queue.StageApplyZoom:
		count = m.cfg.Workers.ApplyZoom
	case queue.StageMerge:
		count = m.cfg.Workers.Merge
	}
	if count < 1 {
		count = 1
	}
	return count
}

// ProcessOne claims and executes at most one due job for the stage. It
// returns whether a job was processed. The consumer loops are built on the
// same path; ProcessOne exists so callers can step the pipeline without
// waiting on poll timers.
func (m *Manager) ProcessOne(ctx context.Context, s queue.Stage) (bool, error) {
	handler, ok := m.handlers[s]
	if !ok {
		return false, fmt.Errorf("no handler for stage %s", s)
	}
	job, err := m.queue.Dequeue(ctx, s)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	m.process(ctx, handler, job)
	return true, nil
}

func (m *Manager) consumeLoop(ctx context.Context, s queue.Stage, handler stage.Handler) {
	defer m.wg.Done()

	poll := time.Duration(m.cfg.Queue.PollInterval) * time.Second
	errorRetry := time.Duration(m.cfg.Queue.ErrorRetryInterval) * time.Second
	if errorRetry <= 0 {
		errorRetry = poll
	}

	for {
		job, err := m.queue.Dequeue(ctx, s)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("dequeue failed",
				logging.String(logging.FieldStage, string(s)),
				logging.Error(err),
			)
			if !sleepCtx(ctx, errorRetry) {
				return
			}
		case job == nil:
			if !sleepCtx(ctx, poll) {
				return
			}
		default:
			m.process(ctx, handler, job)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) process(ctx context.Context, handler stage.Handler, job *queue.Job) {
	jobCtx := services.WithJobID(services.WithStage(services.WithRecordingID(ctx, job.RecordingID), string(job.Stage)), job.ID)

	rec, err := m.store.GetByID(jobCtx, job.RecordingID)
	if err != nil {
		if errors.Is(err, recording.ErrNotFound) {
			// The record is gone; retrying can never succeed.
			m.logger.Warn("recording missing, parking job",
				logging.String(logging.FieldRecordingID, job.RecordingID),
				logging.Int64(logging.FieldJobID, job.ID),
			)
			m.failJob(jobCtx, job, nil, services.Wrap(services.ErrNotFound, string(job.Stage), "load", "recording not found", err))
			return
		}
		if failErr := m.queue.Fail(jobCtx, job, err.Error(), true); failErr != nil {
			m.logger.Error("record job failure", logging.Error(failErr))
		}
		return
	}

	stopHeartbeat := m.startHeartbeat(jobCtx, job.ID)
	execErr := handler.Execute(jobCtx, rec, job)
	stopHeartbeat()

	if execErr != nil {
		m.failJob(jobCtx, job, rec, execErr)
		return
	}

	updated, err := m.store.GetByID(jobCtx, job.RecordingID)
	if err != nil {
		m.logger.Error("reload recording after stage",
			logging.String(logging.FieldRecordingID, job.RecordingID),
			logging.Error(err),
		)
		updated = rec
	}

	// Publish before acknowledging so a crash re-delivers rather than
	// silently dropping the notification.
	if err := m.publisher.PublishUpdate(jobCtx, events.StatusEvent{
		RecordingID: updated.ID,
		Status:      updated.Status,
		Step:        updated.CurrentStep,
	}); err != nil {
		m.logger.Warn("publish status update failed",
			logging.String(logging.FieldRecordingID, updated.ID),
			logging.Error(err),
		)
	}

	if next, ok := queue.Successor(job.Stage); ok {
		if _, _, err := m.queue.Enqueue(jobCtx, next, job.RecordingID, "", queue.DedupKey(next, job.RecordingID)); err != nil {
			// The job stays active; heartbeat reclaim will redeliver and the
			// stage re-run will retry the handoff.
			m.logger.Error("enqueue successor failed",
				logging.String(logging.FieldStage, string(next)),
				logging.String(logging.FieldRecordingID, job.RecordingID),
				logging.Error(err),
			)
			return
		}
	}

	if err := m.queue.Complete(jobCtx, job.ID); err != nil {
		m.logger.Error("complete job failed",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
		return
	}

	m.logger.Info("stage completed",
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.String(logging.FieldRecordingID, job.RecordingID),
		logging.Int64(logging.FieldJobID, job.ID),
	)
}

// failJob classifies the failure, updates both stores, and publishes the
// error event. Only a terminal failure (non-retryable, or the last allowed
// attempt) marks the recording itself failed; transient failures leave the
// record alone and reschedule the job.
func (m *Manager) failJob(ctx context.Context, job *queue.Job, rec *recording.Recording, execErr error) {
	retryable := services.IsRetryable(execErr)
	terminal := !retryable || job.Attempts >= job.MaxAttempts

	m.logger.Error("stage failed",
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.String(logging.FieldRecordingID, job.RecordingID),
		logging.Int("attempt", job.Attempts),
		logging.Bool("terminal", terminal),
		logging.Error(execErr),
	)

	if terminal && rec != nil {
		if err := m.store.MarkFailed(ctx, rec.ID, execErr.Error()); err != nil {
			m.logger.Error("mark recording failed", logging.Error(err))
		}
		if err := m.publisher.PublishError(ctx, events.StatusEvent{
			RecordingID: rec.ID,
			Status:      recording.StatusFailed,
			Step:        recording.StepFailed,
			Error:       execErr.Error(),
		}); err != nil {
			m.logger.Warn("publish error event failed", logging.Error(err))
		}
	}

	if err := m.queue.Fail(ctx, job, execErr.Error(), retryable); err != nil {
		m.logger.Error("record job failure", logging.Error(err))
	}
}

func (m *Manager) startHeartbeat(ctx context.Context, jobID int64) func() {
	interval := time.Duration(m.cfg.Queue.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.queue.UpdateHeartbeat(ctx, jobID); err != nil {
					m.logger.Warn("heartbeat failed",
						logging.Int64(logging.FieldJobID, jobID),
						logging.Error(err),
					)
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (m *Manager) reclaimLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Queue.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := time.Duration(m.cfg.Queue.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		timeout = 6 * interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := m.queue.ReclaimStale(ctx, time.Now().Add(-timeout))
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("reclaim stale jobs", logging.Error(err))
				}
				continue
			}
			if reclaimed > 0 {
				m.logger.Warn("reclaimed abandoned jobs",
					logging.Int64("count", reclaimed),
				)
			}
		}
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Queue.SweepInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	retainAge := time.Duration(m.cfg.Queue.RetainAgeDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.queue.Sweep(ctx, m.cfg.Queue.RetainFinished, retainAge)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("sweep finished jobs", logging.Error(err))
				}
				continue
			}
			if removed > 0 {
				m.logger.Debug("swept finished jobs",
					logging.Int64("count", removed),
				)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
