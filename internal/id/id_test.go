package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewReturnsDistinctUUIDs(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	parsed, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("expected a uuid, got %q: %v", a, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected version 4, got %d", parsed.Version())
	}
}
