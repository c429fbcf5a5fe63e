package evaluation

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-amreval/internal/metrics"
)

// ErrContractViolation marks a broken loader, model or dataset contract.
// These are programming errors upstream and are never retried.
var ErrContractViolation = errors.New("contract violation")

// ErrMissingMetadata is returned when a reference lacks a required field.
var ErrMissingMetadata = fmt.Errorf("%w: missing required metadata", ErrContractViolation)

func violation(op, kind, format string, args ...interface{}) error {
	metrics.RecordValidationError(op, kind)
	return fmt.Errorf("%s: %w: %s", op, ErrContractViolation, fmt.Sprintf(format, args...))
}
