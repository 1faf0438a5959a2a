package stage

import (
	"context"

	"recast/internal/queue"
	"recast/internal/recording"
)

// Handler describes the contract the pipeline manager needs from each stage.
// Execute receives the current recording record so stages act on stored
// state, never on assumptions about what earlier stages produced.
type Handler interface {
	Stage() queue.Stage
	Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error
	HealthCheck(ctx context.Context) Health
}
