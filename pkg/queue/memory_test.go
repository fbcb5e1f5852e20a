package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue(2)

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.Error(t, q.Enqueue(3))
	assert.Equal(t, 2, q.Size())

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready was not signalled")
	}

	items, err := q.ReadAllMessages()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, items)
	assert.Equal(t, 0, q.Size())

	require.NoError(t, q.Enqueue("x"))
	q.ClearQueue()
	items, err = q.ReadAllMessages()
	require.NoError(t, err)
	assert.Empty(t, items)
}
