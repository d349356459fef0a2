package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingFilename = errors.New("missing filename")
	ErrTagWrite        = errors.New("tag write failure")
	ErrFetchFailed     = errors.New("fetch failure")
	ErrScanRead        = errors.New("scan read failure")
	ErrExternalService = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrTransient       = errors.New("transient failure")
)

// Outcome is how a failed operation is presented in the sync report.
type Outcome string

const (
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
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

// Classify maps an error to the report outcome. Unreadable files and tag
// writes are absorbed as skips; everything else counts as a failure.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrScanRead), errors.Is(err, ErrTagWrite):
		return OutcomeSkipped
	default:
		return OutcomeFailed
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
