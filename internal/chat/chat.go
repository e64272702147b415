// Package chat implements the bounded, append-only message log layered on
// top of the broadcast engine. Messages past the configured cap are discarded
// oldest-first; users may delete only their own messages.
package chat

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound reports a message id that is not in the log.
	ErrNotFound = errors.New("chat: message not found")
	// ErrNotOwner reports a delete attempt by a connection that did not
	// author the message.
	ErrNotOwner = errors.New("chat: not message owner")
)

// Kind distinguishes user-authored messages from system notices (join/leave).
type Kind string

const (
	KindSystem Kind = "system"
	KindUser   Kind = "user"
)

// Message is one entry in the log. AuthorConnID is set only for user
// messages and backs the delete-permission check.
type Message struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	AuthorConnID string    `json:"-"`
	AuthorName   string    `json:"username,omitempty"`
	Body         string    `json:"message"`
	CreatedAt    time.Time `json:"timestamp"`
}

// Log is a bounded trailing window of messages. Append-only except for
// per-author deletes.
type Log struct {
	mu      sync.Mutex
	cap     int
	entropy *ulid.MonotonicEntropy
	msgs    []Message
}

// NewLog returns a log bounded at cap messages; cap <= 0 means unbounded.
func NewLog(cap int) *Log {
	return &Log{
		cap:     cap,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (l *Log) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
}

// AppendUser adds a user message and returns it. The log is truncated
// oldest-first when it exceeds the cap.
func (l *Log) AppendUser(connID, name, body string) Message {
	return l.append(Message{Kind: KindUser, AuthorConnID: connID, AuthorName: name, Body: body})
}

// AppendSystem adds a system notice (joins, leaves).
func (l *Log) AppendSystem(body string) Message {
	return l.append(Message{Kind: KindSystem, Body: body})
}

func (l *Log) append(m Message) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.CreatedAt = time.Now()
	m.ID = l.newID(m.CreatedAt)
	l.msgs = append(l.msgs, m)
	if l.cap > 0 && len(l.msgs) > l.cap {
		l.msgs = l.msgs[len(l.msgs)-l.cap:]
	}
	return m
}

// Delete removes the message with the given id if byConnID authored it.
func (l *Log) Delete(id, byConnID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.msgs {
		if m.ID != id {
			continue
		}
		if m.Kind != KindUser || m.AuthorConnID != byConnID {
			return ErrNotOwner
		}
		l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
		return nil
	}
	return ErrNotFound
}

// Messages returns a copy of the current window, oldest first.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len reports the current number of retained messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
