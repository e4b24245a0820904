package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, q *Queue, id string, want State) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = q.Status(id)
		return ok && st.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestQueueRunsJobAndKeepsResult(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) {
		return map[string]int{"created": 3}, nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(Job{Type: "backfill"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st := waitForState(t, q, id, StateSucceeded)
	assert.Equal(t, "backfill", st.Type)
	assert.Equal(t, map[string]int{"created": 3}, st.Result)
	assert.NotNil(t, st.FinishedAt)
}

func TestQueueRetriesThenFails(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(Job{Type: "dedupe"})
	require.NoError(t, err)

	st := waitForState(t, q, id, StateFailed)
	assert.Equal(t, "boom", st.Error)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) (interface{}, error) { return nil, nil }, QueueConfig{})
	_, err := q.Enqueue(Job{Type: "x"})
	assert.Error(t, err)
}
