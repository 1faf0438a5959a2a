package queue

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies one unit of pipeline work. Each stage maps to exactly one
// job type and one consumer loop.
type Stage string

const (
	StageExtractAudio Stage = "extract_audio"
	StageTranscribe   Stage = "transcribe"
	StageAIProcess    Stage = "ai_process"
	StageApplyZoom    Stage = "apply_zoom"
	StageMerge        Stage = "merge"
)

// JobStatus represents the queue-side lifecycle of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	// JobDead parks a job after retry exhaustion or a terminal failure for
	// operator inspection.
	JobDead JobStatus = "dead"
)

var allStages = []Stage{
	StageExtractAudio,
	StageTranscribe,
	StageAIProcess,
	StageApplyZoom,
	StageMerge,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// successors is the finite stage transition table. An empty successor is
// terminal: transcribe pauses the pipeline into draft, merge completes it.
var successors = map[Stage]Stage{
	StageExtractAudio: StageTranscribe,
	StageTranscribe:   "",
	StageAIProcess:    StageApplyZoom,
	StageApplyZoom:    StageMerge,
	StageMerge:        "",
}

// AllStages returns the ordered list of pipeline stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Successor returns the next stage to enqueue after this one, or false when
// the stage is terminal.
func Successor(stage Stage) (Stage, bool) {
	next, ok := successors[stage]
	if !ok || next == "" {
		return "", false
	}
	return next, true
}

// ValidateTransitions checks the transition table for totality: every known
// stage must have an entry and every successor must itself be a known stage.
// Called once at daemon startup.
func ValidateTransitions() error {
	for _, stage := range allStages {
		next, ok := successors[stage]
		if !ok {
			return fmt.Errorf("stage %s has no transition entry", stage)
		}
		if next == "" {
			continue
		}
		if _, known := stageSet[next]; !known {
			return fmt.Errorf("stage %s transitions to unknown stage %s", stage, next)
		}
	}
	return nil
}

// DedupKey builds the deterministic scheduling key that collapses duplicate
// requests for the same logical unit of work.
func DedupKey(stage Stage, recordingID string) string {
	return string(stage) + ":" + recordingID
}

// AIDedupKey builds the scheduling key for an AI-processing run. The
// submission timestamp is part of the key so re-processing with a new target
// language is never deduplicated against an earlier run.
func AIDedupKey(recordingID string, submittedAt time.Time) string {
	return fmt.Sprintf("%s:%s:%d", StageAIProcess, recordingID, submittedAt.UnixNano())
}

// Job is one persisted unit of queue work.
type Job struct {
	ID          int64
	Stage       Stage
	RecordingID string
	Payload     string
	DedupKey    string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	LastHeartbeat *time.Time
}
