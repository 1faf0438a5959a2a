// Package services holds cross-cutting helpers for external collaborator
// integrations: the sentinel error taxonomy used to classify stage failures
// and the context annotations that carry recording, stage, and job
// identifiers through collaborator calls and into structured logs.
package services
