// Package presence maps live connections to their declared identities and
// produces the join/leave facts the hub broadcasts. Usernames are
// self-declared and unvalidated; duplicates and any non-empty string are
// accepted.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Participant is a connected identity. ConnID is valid only for the lifetime
// of the underlying connection.
type Participant struct {
	ConnID   string    `json:"-"`
	Name     string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Tracker keys participants by connection ID. Entries are removed
// synchronously on disconnect so a departed identity is never listed as
// present.
type Tracker struct {
	mu    sync.Mutex
	byID  map[string]Participant
	conns int
}

func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]Participant)}
}

// Connected records a raw connection, joined or not. Returns the new
// connection count.
func (t *Tracker) Connected() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns++
	return t.conns
}

// Disconnected is the counterpart of Connected.
func (t *Tracker) Disconnected() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns > 0 {
		t.conns--
	}
	return t.conns
}

// Count returns the number of open connections, joined or not.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns
}

// Join registers an identity for a connection. An empty name is rejected:
// join must be explicit before identity-aware actions are accepted, so the
// caller drops the event. Re-joining overwrites the previous name.
func (t *Tracker) Join(connID, name string) (Participant, bool) {
	if name == "" {
		return Participant{}, false
	}
	p := Participant{ConnID: connID, Name: name, JoinedAt: time.Now()}
	t.mu.Lock()
	if prev, ok := t.byID[connID]; ok {
		p.JoinedAt = prev.JoinedAt
	}
	t.byID[connID] = p
	t.mu.Unlock()
	return p, true
}

// Leave removes and returns the identity for a connection. ok is false when
// the connection never completed a join; the caller still broadcasts a
// connection-level leave in that case, keyed by connection id alone.
func (t *Tracker) Leave(connID string) (Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[connID]
	if ok {
		delete(t.byID, connID)
	}
	return p, ok
}

// List returns the currently joined participants ordered by join time (ties
// broken by connection id) so callers can compare deterministically.
func (t *Tracker) List() []Participant {
	t.mu.Lock()
	out := make([]Participant, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnID < out[j].ConnID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
