package errors

import (
	stderr "errors"
	"fmt"
	"testing"
)

// TestNew tests structured error creation and categorization
func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		code     ErrorCode
		category ErrorCategory
	}{
		{name: "config code", code: ErrCodeInvalidConfig, category: CategoryConfiguration},
		{name: "connection code", code: ErrCodeConnectionTimeout, category: CategoryConnection},
		{name: "storage code", code: ErrCodeEntryCorrupt, category: CategoryStorage},
		{name: "state code", code: ErrCodeNotInitialized, category: CategoryState},
		{name: "operation code", code: ErrCodeInvalidPattern, category: CategoryOperation},
		{name: "unknown code", code: ErrorCode("BOGUS"), category: CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Timestamp.IsZero() {
				t.Error("expected timestamp to be set")
			}
		})
	}
}

// TestWrap tests cause wrapping and unwrap chains
func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeConnectionFailed, "remote store unreachable", cause)

	if !stderr.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	want := "[CONNECTION_FAILED] remote store unreachable: connection refused"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

// TestIs tests code-based comparison across wrapping
func TestIs(t *testing.T) {
	err := fmt.Errorf("op failed: %w", New(ErrCodeNotInitialized, "not ready"))

	if !stderr.Is(err, ErrNotInitialized) {
		t.Error("expected sentinel match on code")
	}
	if stderr.Is(err, ErrAlreadyClosed) {
		t.Error("expected no match for a different code")
	}
}

// TestIsCode tests direct code inspection
func TestIsCode(t *testing.T) {
	err := Newf(ErrCodeEntryTooLarge, "entry is %d bytes", 1<<20)

	if !IsCode(err, ErrCodeEntryTooLarge) {
		t.Error("expected IsCode to match")
	}
	if IsCode(err, ErrCodeEntryCorrupt) {
		t.Error("expected IsCode to reject a different code")
	}
	if IsCode(fmt.Errorf("plain"), ErrCodeEntryCorrupt) {
		t.Error("expected IsCode to reject a plain error")
	}
}

// TestIsRetryable tests the retry classification
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection timeout", err: New(ErrCodeConnectionTimeout, "t"), want: true},
		{name: "connection failed", err: New(ErrCodeConnectionFailed, "f"), want: true},
		{name: "corruption", err: New(ErrCodeEntryCorrupt, "c"), want: false},
		{name: "misuse", err: ErrNotInitialized, want: false},
		{name: "unclassified", err: fmt.Errorf("i/o timeout"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestWithDetail tests detail attachment
func TestWithDetail(t *testing.T) {
	err := New(ErrCodeStorageWrite, "write failed").
		WithComponent("file-tier").
		WithDetail("address", "deadbeef")

	if err.Component != "file-tier" {
		t.Errorf("expected component file-tier, got %s", err.Component)
	}
	if err.Details["address"] != "deadbeef" {
		t.Errorf("expected detail address=deadbeef, got %v", err.Details)
	}
}
