package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalTool marks failures of external binaries (ffmpeg and friends).
	ErrExternalTool = errors.New("external tool error")
	// ErrUnavailable marks a collaborator that could not be reached.
	ErrUnavailable = errors.New("service unavailable")
	// ErrTimeout marks a collaborator call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrRejectedInput marks input a collaborator refused; retrying the same
	// input cannot succeed.
	ErrRejectedInput = errors.New("rejected input")
	// ErrValidation marks precondition failures detected before any external call.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record or artifact.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the queue should redeliver a job that failed
// with this error. Rejected input, validation failures, and missing records
// are terminal: the same job can never succeed.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRejectedInput), errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
