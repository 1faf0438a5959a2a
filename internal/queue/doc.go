// Package queue implements the durable job queue driving the processing
// pipeline. Jobs are persisted in SQLite and survive daemon restarts.
//
// Each job belongs to exactly one stage and one recording. Scheduling is
// deduplicated per key: enqueueing a job whose dedup key already has a
// pending or active job is a no-op. Delivery is at-least-once; workers
// heartbeat while executing and abandoned jobs are reclaimed once the
// heartbeat goes stale. Retryable failures back off exponentially up to an
// attempt ceiling, after which the job is parked dead for operator
// inspection and manual retry. Finished jobs are retained for a bounded
// window and garbage-collected by the sweep.
package queue
