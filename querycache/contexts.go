package querycache

import (
	"encoding/hex"
	"strconv"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/hazyhaar/chatenrich/match"
)

// MaxContexts is the size above which the context set is reset.
const MaxContexts = 50

// ContextKey identifies a (query, response) pairing: the normalised query,
// the response text length, and the element's id or class name.
func ContextKey(query string, responseLen int, element string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(match.Normalize(query)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(responseLen)))
	h.Write([]byte{0})
	h.Write([]byte(element))
	return hex.EncodeToString(h.Sum(nil))
}

// ContextSet remembers handled context keys so the same query and response
// never get two panels.
type ContextSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	limit int
}

// NewContextSet creates a set reset once it holds more than limit keys.
// limit <= 0 means MaxContexts.
func NewContextSet(limit int) *ContextSet {
	if limit <= 0 {
		limit = MaxContexts
	}
	return &ContextSet{keys: make(map[string]struct{}), limit: limit}
}

// Add records key and reports whether it was new.
func (s *ContextSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Has reports whether key is recorded.
func (s *ContextSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys.
func (s *ContextSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// ResetIfOver clears the set when it holds more than its limit.
func (s *ContextSet) ResetIfOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) <= s.limit {
		return false
	}
	clear(s.keys)
	return true
}

// Clear drops every key.
func (s *ContextSet) Clear() {
	s.mu.Lock()
	clear(s.keys)
	s.mu.Unlock()
}
