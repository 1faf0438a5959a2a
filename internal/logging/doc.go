// Package logging builds the slog loggers used across Recast and defines the
// standardized structured field keys shared by the worker daemon, gateway,
// and CLI. Context-carried identifiers (recording, stage, job, correlation)
// are turned into attributes via WithContext so every log line produced while
// a job runs can be traced back to its recording.
package logging
