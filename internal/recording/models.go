package recording

import (
	"strings"
	"time"
)

// Status represents the client-visible lifecycle of a recording.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusDraftReady Status = "draft_ready"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step is the last-observed pipeline step for a recording.
type Step string

const (
	StepExtractingAudio Step = "extracting_audio"
	StepTranscribing    Step = "transcribing"
	StepAIProcessing    Step = "ai_processing"
	StepApplyingZoom    Step = "applying_zoom_effects"
	StepMerging         Step = "merging"
	StepCompleted       Step = "completed"
	StepFailed          Step = "failed"
)

// DefaultTargetLanguage is applied when a recording is created without an
// explicit narration language.
const DefaultTargetLanguage = "en"

// EmptyTranscriptScript is recorded as the cleaned script when transcription
// produced no speech and the narrator call is skipped.
const EmptyTranscriptScript = "[no narration: silent recording]"

var allStatuses = []Status{
	StatusUploaded,
	StatusProcessing,
	StatusDraftReady,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Recording is the durable document describing one uploaded screen recording
// and every artifact the pipeline has produced for it. It is the single
// source of truth for status; stage workers mutate only the fields they own.
type Recording struct {
	ID             string
	Status         Status
	CurrentStep    Step
	TargetLanguage string

	VideoPath       string
	EventsPath      string
	AudioPath       string
	TranscriptPath  string
	VoiceoverPath   string
	ZoomedVideoPath string
	FinalVideoPath  string

	Transcript    string
	CleanedScript string

	ErrorMessage string

	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Terminal reports whether the recording has reached a state the client can
// treat as final for the current processing run.
func (r *Recording) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusDraftReady:
		return true
	default:
		return false
	}
}

// Reprocessable reports whether an explicit process request may re-enter the
// pipeline at the AI stage.
func (r *Recording) Reprocessable() bool {
	switch r.Status {
	case StatusDraftReady, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}
