package job

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChanQueue(t *testing.T) {
	q := NewChanQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Task{ExecutionID: 1}))
	require.NoError(t, q.Push(ctx, Task{ExecutionID: 2}))
	assert.ErrorIs(t, q.Push(ctx, Task{ExecutionID: 3}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Push(ctx, Task{ExecutionID: 4}), ErrQueueClosed)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ExecutionID)
	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ExecutionID)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestChanQueuePopHonoursContext(t *testing.T) {
	q := NewChanQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolDrainsQueue(t *testing.T) {
	q := NewChanQueue(100)
	var ran atomic.Int64
	var mu sync.Mutex
	seen := map[int]bool{}

	pool := NewPool(4, q, func(_ context.Context, t Task) {
		if t.ExecutionID == 13 {
			panic("unlucky")
		}
		mu.Lock()
		seen[t.ExecutionID] = true
		mu.Unlock()
		ran.Add(1)
	}, zap.NewNop())
	pool.Start(context.Background())

	for i := 1; i <= 50; i++ {
		require.NoError(t, q.Push(context.Background(), Task{ExecutionID: i}))
	}
	require.Eventually(t, func() bool {
		return ran.Load() == 49 && q.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Stop(context.Background()))

	assert.Equal(t, int64(49), ran.Load(), "a panicking task does not kill its worker")
	assert.False(t, seen[13])
	assert.True(t, seen[50])
}

func TestPoolZeroSizeFallsBackToOne(t *testing.T) {
	q := NewChanQueue(1)
	done := make(chan struct{})
	pool := NewPool(0, q, func(context.Context, Task) { close(done) }, zap.NewNop())
	pool.Start(context.Background())
	require.NoError(t, q.Push(context.Background(), Task{ExecutionID: 1}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task not run")
	}
	require.NoError(t, pool.Stop(context.Background()))
}

func TestPoolStopAbandonsBacklog(t *testing.T) {
	q := NewChanQueue(10)
	var started, dropped atomic.Int64
	var mu sync.Mutex
	var abandoned []int

	pool := NewPool(1, q, func(ctx context.Context, _ Task) {
		started.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
		case <-ctx.Done():
		}
	}, zap.NewNop()).WithDrop(func(_ context.Context, t Task) {
		dropped.Add(1)
		mu.Lock()
		abandoned = append(abandoned, t.ExecutionID)
		mu.Unlock()
	})
	pool.Start(context.Background())

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Push(context.Background(), Task{ExecutionID: i}))
	}
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	began := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))

	assert.Less(t, time.Since(began), time.Second, "running task is cancelled, backlog is not run")
	assert.Equal(t, int64(1), started.Load())
	assert.Equal(t, int64(4), dropped.Load())
	assert.ElementsMatch(t, []int{2, 3, 4, 5}, abandoned)
	assert.ErrorIs(t, q.Push(context.Background(), Task{ExecutionID: 6}), ErrQueueClosed)
}

func TestPoolStopHonoursDeadline(t *testing.T) {
	q := NewChanQueue(4)
	release := make(chan struct{})
	defer close(release)
	busy := make(chan struct{})
	var dropped atomic.Int64

	pool := NewPool(1, q, func(context.Context, Task) {
		close(busy)
		<-release
	}, zap.NewNop()).WithDrop(func(context.Context, Task) { dropped.Add(1) })
	pool.Start(context.Background())

	require.NoError(t, q.Push(context.Background(), Task{ExecutionID: 1}))
	<-busy
	require.NoError(t, q.Push(context.Background(), Task{ExecutionID: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	began := time.Now()
	err := pool.Stop(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(began), time.Second)
	assert.Equal(t, int64(1), dropped.Load(), "queued task abandoned even though a worker is stuck")
}

func TestChanQueueDrain(t *testing.T) {
	q := NewChanQueue(3)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, Task{ExecutionID: 1}))
	require.NoError(t, q.Push(ctx, Task{ExecutionID: 2}))

	left := q.Drain()
	require.Len(t, left, 2)
	assert.Equal(t, 1, left[0].ExecutionID)
	assert.Empty(t, q.Drain())
	assert.ErrorIs(t, q.Push(ctx, Task{ExecutionID: 3}), ErrQueueClosed)
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	q, err := NewRedisQueue(ctx, addr, "fleet:test:"+t.Name())
	require.NoError(t, err)
	defer q.Close()

	in := Task{ExecutionID: 7, JobID: 2, ProfileID: 3, Vars: map[string]string{"uid": "1"}, Owner: "host-a:/data/a.json"}
	require.NoError(t, q.Push(ctx, in))

	out, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ExecutionID)
	assert.Equal(t, "1", out.Vars["uid"])
	assert.Equal(t, "host-a:/data/a.json", out.Owner)

	require.NoError(t, q.Close())
	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
