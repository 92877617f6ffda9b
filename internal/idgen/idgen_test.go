package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts in %q", id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("chatenrich-", UUIDv7())()
	if !strings.HasPrefix(id, "chatenrich-") {
		t.Fatalf("Prefixed: got %q", id)
	}
	if _, err := Parse("chatenrich-", id); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	if _, err := Parse("chatenrich-", "panel-123"); err == nil {
		t.Error("Parse: want error for wrong prefix")
	}
	if _, err := Parse("chatenrich-", "chatenrich-not-a-uuid"); err == nil {
		t.Error("Parse: want error for bad UUID")
	}
	if _, err := Parse("", New()); err != nil {
		t.Errorf("Parse: %v", err)
	}
}
