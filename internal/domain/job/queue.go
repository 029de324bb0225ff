package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/id"
)

var (
	// ErrQueueClosed is returned by Pop once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned by Push when the buffer is full.
	ErrQueueFull = errors.New("queue full")
)

// Task is one execution waiting for a worker.
type Task struct {
	ID          id.TaskID         `json:"id"`
	JobID       int               `json:"jobId"`
	ExecutionID int               `json:"executionId"`
	ProfileID   int               `json:"profileId"`
	WorkflowID  int               `json:"workflowId"`
	Vars        map[string]string `json:"vars,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueuedAt"`
	// Owner names the process whose store holds the execution. Empty means
	// any process may run it.
	Owner       string            `json:"owner,omitempty"`
}

// Queue hands tasks from the service to the worker pool.
type Queue interface {
	Push(ctx context.Context, t Task) error
	// Pop blocks until a task is available, ctx ends or the queue closes.
	Pop(ctx context.Context) (Task, error)
	Close() error
}

// ChanQueue is an in-process queue backed by a buffered channel.
type ChanQueue struct {
	tasks chan Task

	mu     sync.RWMutex
	closed bool
}

// NewChanQueue creates a queue holding up to size tasks.
func NewChanQueue(size int) *ChanQueue {
	if size <= 0 {
		size = 1
	}
	return &ChanQueue{tasks: make(chan Task, size)}
}

// Push enqueues t without blocking.
func (q *ChanQueue) Push(_ context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChanQueue) Pop(ctx context.Context) (Task, error) {
	select {
	case t, ok := <-q.tasks:
		if !ok {
			return Task{}, ErrQueueClosed
		}
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Close stops accepting tasks. Tasks already queued are still delivered.
func (q *ChanQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}

// Drain closes the queue and returns the tasks no worker has taken.
func (q *ChanQueue) Drain() []Task {
	_ = q.Close()
	var out []Task
	for t := range q.tasks {
		out = append(out, t)
	}
	return out
}

// Len returns the number of buffered tasks.
func (q *ChanQueue) Len() int { return len(q.tasks) }
