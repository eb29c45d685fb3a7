package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEnqueueReceive(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{ReportID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Task{ReportID: "b"}))
	assert.Equal(t, 2, q.Len())

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Task.ReportID)
	assert.Equal(t, "b", got[1].Task.ReportID)
	assert.False(t, got[0].Task.EnqueuedAt.IsZero())
	assert.NoError(t, q.Ack(ctx, got[0]))
}

func TestMemoryReceiveTimesOut(t *testing.T) {
	q := NewMemory(1)
	q.poll = 10 * time.Millisecond

	got, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryReceiveCancelled(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
