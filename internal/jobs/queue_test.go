package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T, retries int, timeout time.Duration) *Queue {
	t.Helper()
	q, err := NewQueue(Options{
		Workers:         2,
		MaxRetries:      retries,
		Timeout:         timeout,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close(time.Second) })
	return q
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
		return nil
	}
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t, 3, time.Second)

	var attempts atomic.Int32
	done := make(chan error, 1)
	require.NoError(t, q.Dispatch(Job{
		Name: "flaky",
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			done <- nil
			return nil
		},
		OnFailure: func(ctx context.Context, err error) { done <- err },
	}))

	assert.NoError(t, waitErr(t, done))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2, time.Second)

	var attempts atomic.Int32
	failed := make(chan error, 1)
	require.NoError(t, q.Dispatch(Job{
		Name: "broken",
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("still broken")
		},
		OnFailure: func(ctx context.Context, err error) {
			assert.NoError(t, ctx.Err())
			failed <- err
		},
	}))

	assert.EqualError(t, waitErr(t, failed), "still broken")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueuePermanentErrorStopsRetries(t *testing.T) {
	q := newTestQueue(t, 5, time.Second)

	var attempts atomic.Int32
	failed := make(chan error, 1)
	require.NoError(t, q.Dispatch(Job{
		Name: "bad-input",
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return Permanent(errors.New("rejected"))
		},
		OnFailure: func(ctx context.Context, err error) { failed <- err },
	}))

	assert.EqualError(t, waitErr(t, failed), "rejected")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestQueueAttemptTimeout(t *testing.T) {
	q := newTestQueue(t, 0, 10*time.Millisecond)

	failed := make(chan error, 1)
	require.NoError(t, q.Dispatch(Job{
		Name: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		OnFailure: func(ctx context.Context, err error) { failed <- err },
	}))

	assert.ErrorIs(t, waitErr(t, failed), context.DeadlineExceeded)
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q, err := NewQueue(Options{Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, q.Close(time.Second))

	err = q.Dispatch(Job{Name: "late", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestQueueCloseSkipsOnFailure(t *testing.T) {
	q, err := NewQueue(Options{
		Workers:         1,
		MaxRetries:      5,
		Timeout:         time.Second,
		InitialInterval: time.Second,
		MaxInterval:     time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	started := make(chan struct{})
	var once atomic.Bool
	var failures atomic.Int32
	require.NoError(t, q.Dispatch(Job{
		Name: "tokenize",
		Run: func(ctx context.Context) error {
			if once.CompareAndSwap(false, true) {
				close(started)
			}
			return errors.New("oracle 502")
		},
		OnFailure: func(ctx context.Context, err error) { failures.Add(1) },
	}))

	<-started
	_ = q.Close(100 * time.Millisecond)

	// Give the worker time to observe the cancelled context.
	assert.Eventually(t, func() bool { return q.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), failures.Load())
}
