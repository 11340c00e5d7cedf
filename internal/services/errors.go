package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNetwork       = errors.New("network error")
	ErrModelLoad     = errors.New("model load error")
	ErrFilesystem    = errors.New("filesystem error")
	ErrTimeout       = errors.New("timeout")
	ErrCanceled      = errors.New("canceled by operator")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Severity describes how far a failure propagates.
type Severity string

const (
	// SeveritySoft failures skip the current page, candidate, or step.
	SeveritySoft Severity = "soft"
	// SeveritySong failures abandon the current song; the batch continues.
	SeveritySong Severity = "song"
	// SeverityBatch failures stop the remaining batch entries.
	SeverityBatch Severity = "batch"
)

// Classify maps an error onto the propagation severity used by the batch
// orchestrator. Nil errors and unknown errors are soft.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeveritySoft
	case errors.Is(err, ErrModelLoad):
		return SeveritySong
	case errors.Is(err, ErrConfiguration):
		return SeverityBatch
	case errors.Is(err, context.Canceled):
		return SeverityBatch
	default:
		return SeveritySoft
	}
}

// IsTimeout reports whether err carries the timeout marker or a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
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
