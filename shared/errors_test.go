package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestFetchErrorClassification(t *testing.T) {
	err := NewFetchError(ErrorClassNotFound, "api", "fetch", "no record for parcel 042173", nil)

	if !IsClass(err, ErrorClassNotFound) {
		t.Error("Expected not_found class")
	}
	if err.Retryable() {
		t.Error("not_found must never be retryable")
	}
	if ClassOf(err) != ErrorClassNotFound {
		t.Errorf("ClassOf returned %s", ClassOf(err))
	}
}

func TestFetchErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewFetchError(ErrorClassUnreachable, "scrape", "search", "portal unreachable", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}

func TestClassSurvivesWrapping(t *testing.T) {
	inner := NewFetchError(ErrorClassRateLimited, "api", "fetch", "quota exceeded", nil)
	wrapped := fmt.Errorf("resolving key: %w", inner)

	if ClassOf(wrapped) != ErrorClassRateLimited {
		t.Errorf("Class should survive fmt wrapping, got %s", ClassOf(wrapped))
	}
	if !IsRetryableError(wrapped) {
		t.Error("Wrapped rate_limited error should stay retryable")
	}
}

func TestWrapErrorKeepsExistingClass(t *testing.T) {
	inner := NewFetchError(ErrorClassParse, "scrape", "extract", "missing account number", nil)
	wrapped := WrapError(inner, ErrorClassUnreachable, "resolver", "resolve")

	if wrapped.Class != ErrorClassParse {
		t.Errorf("Wrapping must not reclassify, got %s", wrapped.Class)
	}
	if wrapped.Source != "resolver" {
		t.Errorf("Wrapping should update the source, got %s", wrapped.Source)
	}
}

func TestWrapErrorLeavesOriginalIntact(t *testing.T) {
	inner := NewFetchError(ErrorClassParse, "scrape", "extract", "missing account number", nil)
	wrapped := WrapError(inner, ErrorClassUnreachable, "resolver", "resolve")

	if wrapped == inner {
		t.Fatal("Wrapping must return a new error value")
	}
	if inner.Source != "scrape" || inner.Operation != "extract" {
		t.Errorf("Original error was rewritten: source=%s operation=%s", inner.Source, inner.Operation)
	}
	if wrapped.Source != "resolver" || wrapped.Operation != "resolve" {
		t.Errorf("Wrapped error missing new context: source=%s operation=%s", wrapped.Source, wrapped.Operation)
	}
}

func TestWrapErrorClassifiesUntypedErrors(t *testing.T) {
	wrapped := WrapError(errors.New("dial tcp: timeout"), ErrorClassUnreachable, "api", "fetch")
	if wrapped.Class != ErrorClassUnreachable {
		t.Errorf("Untyped error should take the supplied class, got %s", wrapped.Class)
	}
	if wrapped.Cause == nil {
		t.Error("Cause should be preserved")
	}
}

func TestUntypedErrorsDefaultToUnreachable(t *testing.T) {
	if ClassOf(errors.New("something odd")) != ErrorClassUnreachable {
		t.Error("Untyped errors should default to unreachable")
	}
}

func TestRetryabilityByClass(t *testing.T) {
	cases := []struct {
		class     ErrorClass
		retryable bool
	}{
		{ErrorClassNotFound, false},
		{ErrorClassRateLimited, true},
		{ErrorClassUnreachable, true},
		{ErrorClassParse, false},
		{ErrorClassPoolExhausted, false},
		{ErrorClassCancelled, false},
	}

	for _, tc := range cases {
		err := NewFetchError(tc.class, "api", "fetch", "test", nil)
		if IsRetryableError(err) != tc.retryable {
			t.Errorf("Class %s retryable = %v, expected %v", tc.class, IsRetryableError(err), tc.retryable)
		}
	}
}
