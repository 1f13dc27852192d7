// Package apperr holds the error taxonomy shared by the ingestion pipeline,
// the alert lifecycle and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a node or alert identifier is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable is returned when the scoring collaborator cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistence wraps storage failures; the current request is not committed.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports malformed or missing input. Fields lists every
// offending wire field, not just the first one found.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

// NewValidationError builds a ValidationError for the given fields.
func NewValidationError(message string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: message}
}

// ConfigError reports degenerate sensor bounds that make severity undefined.
type ConfigError struct {
	NodeID   int64
	SensorID int64
	Variable string
	Lower    float64
	Upper    float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sensor %d on node %d (%s): invalid bounds [%g, %g]",
		e.SensorID, e.NodeID, e.Variable, e.Lower, e.Upper)
}

// Persistence wraps err so that errors.Is(err, ErrPersistence) holds while
// keeping the storage error in the chain.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
