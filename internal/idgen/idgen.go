// Package idgen generates the identifiers carried by panels and events.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. They sort by
// creation time, which keeps panel and event ids in injection order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every id of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an id using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string, ignoring prefix.
func Parse(prefix, s string) (string, error) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", fmt.Errorf("idgen: %q lacks prefix %q", s, prefix)
	}
	if _, err := uuid.Parse(s[len(prefix):]); err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return s, nil
}
