package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/connecto/internal/domain"
)

func TestQueueNoDuplicates(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("a")
	q.Enqueue("b")
	assert.Equal(t, 2, q.Len())
}

func TestQueueRemoveIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Remove("a")
	q.Remove("a")
	q.Remove("never-added")
	assert.Equal(t, 0, q.Len())
}

func TestQueueRemovedIsNeverPopped(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Remove("a")

	got, ok := q.PopNext("x")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("b"), got)

	_, ok = q.PopNext("x")
	assert.False(t, ok)
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	for _, want := range []domain.UserID{"a", "b", "c"} {
		got, ok := q.PopNext("x")
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueuePopNextNeverReturnsSelf(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")

	_, ok := q.PopNext("a")
	assert.False(t, ok)
	// Skipped in place: still waiting for someone else.
	assert.Equal(t, 1, q.Len())

	q.Enqueue("b")
	got, ok := q.PopNext("a")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("b"), got)

	// And "a" kept its queue position all along.
	got, ok = q.PopNext("c")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("a"), got)
}
