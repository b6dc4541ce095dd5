package store

import (
	"errors"
	"testing"
)

func TestTextArray(t *testing.T) {
	if got := textArray(nil); got != nil {
		t.Fatalf("nil slice: %v", got)
	}
	if got := textArray([]string{"general"}); got != `{"general"}` {
		t.Fatalf("single: %v", got)
	}
	if got := textArray([]string{"a", "b,c", `d"e`}); got != `{"a","b,c","d\"e"}` {
		t.Fatalf("quoting: %v", got)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if nullIfEmpty("x") != "x" {
		t.Fatal("non-empty string should pass through")
	}
}

func TestConflictErrorIs(t *testing.T) {
	err := error(&ConflictError{RequestID: "r1", Status: "assigned"})
	if !errors.Is(err, ErrRequestTaken) {
		t.Fatal("ConflictError should match ErrRequestTaken")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("ConflictError should not match ErrNotFound")
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.RequestID != "r1" {
		t.Fatalf("errors.As = %+v", ce)
	}
}
