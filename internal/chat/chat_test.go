package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendTruncatesOldestFirst(t *testing.T) {
	l := NewLog(3)
	for i := 1; i <= 5; i++ {
		l.AppendUser("c1", "alice", fmt.Sprintf("msg-%d", i))
	}

	msgs := l.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-3", msgs[0].Body)
	assert.Equal(t, "msg-4", msgs[1].Body)
	assert.Equal(t, "msg-5", msgs[2].Body)
}

func TestUnboundedLog(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 50; i++ {
		l.AppendSystem("notice")
	}
	assert.Equal(t, 50, l.Len())
}

func TestMessageIDsMonotonic(t *testing.T) {
	l := NewLog(0)
	var prev string
	for i := 0; i < 10; i++ {
		m := l.AppendUser("c1", "alice", "hi")
		require.Greater(t, m.ID, prev, "ids must sort in append order")
		prev = m.ID
	}
}

func TestDeleteByAuthor(t *testing.T) {
	l := NewLog(10)
	m := l.AppendUser("c1", "alice", "delete me")
	l.AppendUser("c2", "bob", "keep me")

	require.NoError(t, l.Delete(m.ID, "c1"))

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "keep me", msgs[0].Body)
}

func TestDeleteByNonAuthorRejected(t *testing.T) {
	l := NewLog(10)
	m := l.AppendUser("c1", "alice", "mine")

	err := l.Delete(m.ID, "c2")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 1, l.Len(), "log must be unchanged after rejected delete")
}

func TestDeleteSystemMessageRejected(t *testing.T) {
	l := NewLog(10)
	m := l.AppendSystem("alice joined")

	err := l.Delete(m.ID, "c1")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestDeleteMissing(t *testing.T) {
	l := NewLog(10)
	err := l.Delete("no-such-id", "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}
