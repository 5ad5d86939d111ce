package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks infrastructure failures (timeouts, rate limits,
	// 5xx responses) that are safe to retry.
	ErrTransient = errors.New("transient failure")
	// ErrQuotaExhausted marks failures caused by an exhausted external
	// quota. Not retried within a run; the next scheduled run picks up.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrValidation marks data failures (missing or malformed content).
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing resource that may have a secondary copy.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks fatal misconfiguration that aborts the run.
	ErrConfiguration = errors.New("configuration error")
)

// Kind is the coarse classification used by the retry policy and run driver.
type Kind string

const (
	KindTransient      Kind = "transient"
	KindQuotaExhausted Kind = "quota_exhausted"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConfiguration  Kind = "configuration"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
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

// Classify maps an error to its Kind. Untagged errors are treated as
// transient so that unknown infrastructure failures stay retryable.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrQuotaExhausted):
		return KindQuotaExhausted
	default:
		return KindTransient
	}
}

// IsFatal reports whether the error should abort the whole run rather than
// failing a single item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
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
