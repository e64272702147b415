// Package session owns the single shared document all connected clients
// observe and edit. There is exactly one document per process; mutation is
// last-writer-wins full replacement, no merging.
package session

import "sync"

// Store holds the shared document text. Safe for concurrent use, though in
// practice all writes arrive serialized through the hub's event loop.
type Store struct {
	mu     sync.RWMutex
	doc    string
	maxLen int
}

// New returns an empty document store. maxLen bounds the document length for
// append-mode deployments; zero means unbounded.
func New(maxLen int) *Store {
	return &Store{maxLen: maxLen}
}

// Document returns the current document text. Never blocks on writers for
// longer than the copy.
func (s *Store) Document() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// SetDocument replaces the document wholesale. Every client that connects
// afterward receives this value in full.
func (s *Store) SetDocument(text string) {
	s.mu.Lock()
	s.doc = text
	s.mu.Unlock()
}

// Append adds text to the end of the document. When a maximum length is
// configured and the existing content would push the result past it, only the
// trailing half of the maximum is retained before appending. Coarse by
// intent: this is a ring-buffer policy for chat-style transcripts, not a
// fairness guarantee.
func (s *Store) Append(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxLen > 0 && len(s.doc)+len(text) > s.maxLen {
		keep := s.maxLen / 2
		if keep < len(s.doc) {
			s.doc = s.doc[len(s.doc)-keep:]
		}
	}
	s.doc += text
	return s.doc
}

// Clear empties the document. Used by save-and-clear deployments where
// publishing a snapshot closes the live session content.
func (s *Store) Clear() {
	s.mu.Lock()
	s.doc = ""
	s.mu.Unlock()
}
