package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorClass classifies failures along the fallback chain. The class decides
// both retry behavior and whether the resolver advances to the next source.
type ErrorClass string

const (
	// ErrorClassNotFound is an authoritative negative: the record does not
	// exist. Never retried and never falls through to another source.
	ErrorClassNotFound ErrorClass = "not_found"
	// ErrorClassRateLimited means the remote refused the call for quota
	// reasons. Retryable, and drives fallback advancement once the retry
	// budget is spent.
	ErrorClassRateLimited ErrorClass = "rate_limited"
	// ErrorClassUnreachable covers network errors, timeouts and 5xx
	// responses. Retryable.
	ErrorClassUnreachable ErrorClass = "unreachable"
	// ErrorClassParse means the source answered but its response could not be
	// decoded. Terminal for that source, but a later source may still succeed.
	ErrorClassParse ErrorClass = "parse_error"
	// ErrorClassPoolExhausted means a database connection could not be
	// acquired within the configured timeout.
	ErrorClassPoolExhausted ErrorClass = "pool_exhausted"
	// ErrorClassCancelled means the caller cancelled the job.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// FetchError is the standardized error carried through the fallback chain and
// delivered to subscribers. A caller must always be able to distinguish "not
// found" from "temporarily unavailable", so the class always travels with the
// error.
type FetchError struct {
	Class     ErrorClass `json:"class"`
	Source    string     `json:"source"` // api, scrape, cache, db, scheduler
	Operation string     `json:"operation"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Cause     error      `json:"-"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Source, e.Class, e.Message)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the class is transient enough to retry locally.
func (e *FetchError) Retryable() bool {
	return e.Class == ErrorClassRateLimited || e.Class == ErrorClassUnreachable
}

// NewFetchError creates a classified error for a source operation.
func NewFetchError(class ErrorClass, source, operation, message string, cause error) *FetchError {
	return &FetchError{
		Class:     class,
		Source:    source,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WrapError wraps an existing error with fetch error context. Already
// classified errors keep their class and only gain source/operation context.
func WrapError(err error, class ErrorClass, source, operation string) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		// Copy before re-contexting; the original may still be held
		// by another caller.
		clone := *fe
		clone.Source = source
		clone.Operation = operation
		return &clone
	}
	return NewFetchError(class, source, operation, err.Error(), err)
}

// ClassOf extracts the error class, defaulting to unreachable for untyped
// errors so that unknown failures stay on the retry/fallback path.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ErrorClassUnreachable
}

// IsClass reports whether err carries the given class.
func IsClass(err error, class ErrorClass) bool {
	return err != nil && ClassOf(err) == class
}

// IsRetryableError checks if an error is retryable. Untyped errors fall back
// to message heuristics, matching how transient network failures usually read.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}

	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"network", "dns", "socket",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}
	return false
}

// LogError logs the error with structured fields.
func (e *FetchError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_class":      e.Class,
		"source":           e.Source,
		"operation":        e.Operation,
		"error_message":    e.Message,
		"retryable":        e.Retryable(),
		"timestamp":        e.Timestamp,
		"underlying_error": e.Cause,
	}).Error("Fetch error occurred")
}
