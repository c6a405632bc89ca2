package core

import (
	"errors"
	"fmt"
	"time"
)

// StageError wraps a failure in a pipeline stage with enough coordinates
// for a caller to decide whether to retry, skip, or abort.
type StageError struct {
	Stage     string
	Chapter   int // -1 when not chapter-scoped
	Paragraph int // -1 when not paragraph-scoped
	Attempt   int
	Cause     error
	Timestamp time.Time
}

func (e *StageError) Error() string {
	switch {
	case e.Paragraph >= 0:
		return fmt.Sprintf("stage %s failed (chapter %d, paragraph %d): %v", e.Stage, e.Chapter, e.Paragraph, e.Cause)
	case e.Chapter >= 0:
		return fmt.Sprintf("stage %s failed (chapter %d): %v", e.Stage, e.Chapter, e.Cause)
	default:
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
	}
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError creates a StageError with timestamp. Pass -1 for coordinates
// that do not apply.
func NewStageError(stage string, chapter, paragraph int, cause error) *StageError {
	return &StageError{
		Stage:     stage,
		Chapter:   chapter,
		Paragraph: paragraph,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// TransportError represents a network or HTTP failure talking to the model
// provider. It is never produced by parse failures.
type TransportError struct {
	Provider   string
	StatusCode int // 0 when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StructuredOutputError means the model never produced a parseable JSON
// object after all escalation attempts.
type StructuredOutputError struct {
	Task     string
	Attempts int
	LastText string // tail of the final response, for diagnostics
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("task %s: no structured output after %d attempts", e.Task, e.Attempts)
}

// IndexRangeError means a caller addressed a chapter or paragraph that does
// not exist. It is raised before any network interaction.
type IndexRangeError struct {
	Kind   string // "chapter" or "paragraph"
	Index  int
	Length int
}

func (e *IndexRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range (have %d)", e.Kind, e.Index, e.Length)
}

// SemanticEmptyError means the model returned well-formed JSON that is
// missing the expected key or carries an empty collection. Stages treat it
// as non-fatal and preserve prior state.
type SemanticEmptyError struct {
	Stage string
	Key   string
}

func (e *SemanticEmptyError) Error() string {
	return fmt.Sprintf("stage %s: response missing usable %q payload", e.Stage, e.Key)
}

var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("operation timed out")
	ErrNoAPIKey    = errors.New("API key not configured")
	ErrServerError = errors.New("server error")
)

// IsTransport reports whether err originated in the transport layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsSemanticEmpty reports whether err is a non-fatal empty-result failure.
func IsSemanticEmpty(err error) bool {
	var se *SemanticEmptyError
	return errors.As(err, &se)
}

// IsRetryable determines whether a caller-level retry of the same operation
// can reasonably succeed. Index-range errors are programming errors and
// never retryable; everything transport-shaped is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ire *IndexRangeError
	if errors.As(err, &ire) {
		return false
	}
	if IsTransport(err) {
		return true
	}
	var soe *StructuredOutputError
	if errors.As(err, &soe) {
		return true
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServerError)
}
