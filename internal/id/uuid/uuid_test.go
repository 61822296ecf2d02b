// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique random UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := gen.NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		parsed, err := goUUID.Parse(id)
		if err != nil {
			t.Fatalf("id not valid UUID: %v", err)
		}
		if parsed.Version() != 4 {
			t.Fatalf("expected version 4, got %d", parsed.Version())
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

// TestGeneratorNewTimeOrderedID checks v7 IDs sort by creation order.
func TestGeneratorNewTimeOrderedID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewTimeOrderedID()
	if err != nil {
		t.Fatalf("NewTimeOrderedID() error = %v", err)
	}
	second, err := gen.NewTimeOrderedID()
	if err != nil {
		t.Fatalf("NewTimeOrderedID() error = %v", err)
	}
	parsed, err := goUUID.Parse(first)
	if err != nil || parsed.Version() != 7 {
		t.Fatalf("expected v7 uuid, got %s (%v)", first, err)
	}
	if second <= first {
		t.Fatalf("expected %s > %s", second, first)
	}
}

func TestTimeOrderedNewID(t *testing.T) {
	t.Parallel()

	id, err := TimeOrdered{}.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if parsed, err := goUUID.Parse(id); err != nil || parsed.Version() != 7 {
		t.Fatalf("expected v7 uuid, got %s (%v)", id, err)
	}
}
