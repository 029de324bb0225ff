package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler runs one task. Its outcome is reported through the Updater, so
// it returns nothing.
type Handler func(ctx context.Context, t Task)

// drainer is implemented by queues that can hand back the tasks still
// buffered in this process.
type drainer interface {
	Drain() []Task
}

// Pool runs a fixed number of workers that drain a Queue.
type Pool struct {
	size    int
	queue   Queue
	handler Handler
	drop    Handler
	logger  *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool of size workers. size below one means one.
func NewPool(size int, queue Queue, handler Handler, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size, queue: queue, handler: handler, logger: logger}
}

// WithDrop sets the handler given every task abandoned by Stop. The ctx it
// receives is usually already cancelled.
func (p *Pool) WithDrop(fn Handler) *Pool {
	p.drop = fn
	return p
}

// Start launches the workers. They stop when ctx ends, the queue closes or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	ctx = p.ctx
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.size))
}

func (p *Pool) work(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		t, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			p.logger.Warn("queue pop failed", zap.Int("worker", n), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if ctx.Err() != nil {
			p.abandon(ctx, t)
			continue
		}
		p.run(ctx, n, t)
	}
}

func (p *Pool) run(ctx context.Context, n int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.Int("worker", n),
				zap.Int("execution_id", t.ExecutionID),
				zap.Any("panic", r),
			)
		}
	}()
	p.handler(ctx, t)
}

func (p *Pool) abandon(ctx context.Context, t Task) {
	if p.drop == nil {
		p.logger.Warn("task abandoned", zap.Int("execution_id", t.ExecutionID))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("drop handler panicked", zap.Int("execution_id", t.ExecutionID), zap.Any("panic", r))
		}
	}()
	p.drop(ctx, t)
}

// Stop cancels the workers, so running tasks see a cancelled ctx and queued
// ones are never started. It waits for the workers until ctx ends, then
// closes the queue and hands every task still buffered to the drop handler.
// The error is ctx's if some worker was still busy.
func (p *Pool) Stop(ctx context.Context) error {
	workerCtx := ctx
	if p.cancel != nil {
		p.cancel()
		workerCtx = p.ctx
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.logger.Warn("workers still busy at shutdown deadline", zap.Error(err))
	}

	dropped := 0
	if d, ok := p.queue.(drainer); ok {
		for _, t := range d.Drain() {
			p.abandon(workerCtx, t)
			dropped++
		}
	} else {
		_ = p.queue.Close()
	}
	p.logger.Info("worker pool stopped", zap.Int("abandoned", dropped))
	return err
}
