package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueRunsAllTasks(t *testing.T) {
	q := New(3, zap.NewNop())

	var count int32
	for i := 0; i < 20; i++ {
		err := q.Add(func() error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}

	q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForIdle(ctx))

	assert.Equal(t, int32(20), atomic.LoadInt32(&count))
}

func TestQueueConcurrencyBound(t *testing.T) {
	const limit = 4
	const tasks = 32

	q := New(limit, zap.NewNop())

	var running, peak int32
	for i := 0; i < tasks; i++ {
		err := q.Add(func() error {
			now := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		require.NoError(t, err)
	}

	q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForIdle(ctx))

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestQueueAddAfterClose(t *testing.T) {
	q := New(1, zap.NewNop())
	q.Close()

	err := q.Add(func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseIsIdempotent(t *testing.T) {
	q := New(1, zap.NewNop())
	q.Close()
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, q.WaitForIdle(ctx))
}

func TestQueueSwallowsTaskErrors(t *testing.T) {
	q := New(2, zap.NewNop())

	var after int32
	require.NoError(t, q.Add(func() error { return errors.New("boom") }))
	require.NoError(t, q.Add(func() error {
		atomic.AddInt32(&after, 1)
		return nil
	}))

	q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForIdle(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestQueueSurvivesTaskPanic(t *testing.T) {
	q := New(1, zap.NewNop())

	var after int32
	require.NoError(t, q.Add(func() error { panic("boom") }))
	require.NoError(t, q.Add(func() error {
		atomic.AddInt32(&after, 1)
		return nil
	}))

	q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForIdle(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestWaitForIdleBeforeClose(t *testing.T) {
	q := New(2, zap.NewNop())

	release := make(chan struct{})
	require.NoError(t, q.Add(func() error {
		<-release
		return nil
	}))

	waited := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waited <- q.WaitForIdle(ctx)
	}()

	// Idle must not resolve while the queue is still open and a task runs.
	select {
	case <-waited:
		t.Fatal("WaitForIdle resolved before Close")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	q.Close()
	require.NoError(t, <-waited)
}

func TestWaitForIdleMultipleWaiters(t *testing.T) {
	q := New(2, zap.NewNop())
	require.NoError(t, q.Add(func() error { return nil }))
	q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, q.WaitForIdle(ctx))
		}()
	}
	wg.Wait()
}

func TestWaitForIdleContextCancelled(t *testing.T) {
	q := New(1, zap.NewNop())
	release := make(chan struct{})
	require.NoError(t, q.Add(func() error {
		<-release
		return nil
	}))
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.WaitForIdle(ctx), context.DeadlineExceeded)

	close(release)
}

func TestQueueStreamingAdds(t *testing.T) {
	q := New(2, zap.NewNop())

	var count int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Add(func() error {
			// Tasks added while others run still execute.
			atomic.AddInt32(&count, 1)
			time.Sleep(time.Millisecond)
			return nil
		}))
		time.Sleep(time.Millisecond)
	}

	q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForIdle(ctx))
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}
