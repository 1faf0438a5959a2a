package stage

import "recast/internal/queue"

// Health summarizes the readiness of a pipeline stage. Detail is empty for
// ready stages and names the missing collaborator otherwise.
type Health struct {
	Stage  queue.Stage
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(s queue.Stage) Health {
	return Health{Stage: s, Ready: true}
}

// Unhealthy constructs an unready Health record with context detail.
func Unhealthy(s queue.Stage, detail string) Health {
	return Health{Stage: s, Ready: false, Detail: detail}
}
