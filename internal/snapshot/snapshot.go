// Package snapshot stores named, immutable point-in-time copies of the shared
// document. Each snapshot gets a short random id that backs its share link.
//
// Three backends implement Store: an in-memory map, a SQLite file, and
// PostgreSQL. The engine treats them uniformly; durable backends must complete
// their write before a create or delete is considered successful, so a failed
// write never produces a broadcast.
package snapshot

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a snapshot id with no corresponding record. Delete is
// idempotent only in the sense that repeating it surfaces ErrNotFound again.
var ErrNotFound = errors.New("snapshot: not found")

// Snapshot is an immutable copy of the document at creation time.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator,omitempty"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store is the capability interface the engine persists snapshots through.
// List returns snapshots in insertion order, oldest first.
type Store interface {
	Create(ctx context.Context, code, name, creator string) (Snapshot, error)
	Get(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// now is swappable in tests that need deterministic timestamps.
var now = time.Now

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newID returns a short opaque token with 48 bits of entropy, enough that
// collisions are negligible at any plausible snapshot count.
func newID() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate snapshot id: %w", err)
	}
	return idEncoding.EncodeToString(buf[:]), nil
}

// defaultName labels an unnamed snapshot after its id, matching the share
// link users see.
func defaultName(id string) string {
	return "Snapshot " + id
}
