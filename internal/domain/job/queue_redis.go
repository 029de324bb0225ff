package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// popWait bounds each BLPOP so Pop notices Close and cancellation.
const popWait = 2 * time.Second

// RedisQueue shares tasks between processes through a Redis list. Tasks are
// pushed with RPUSH and taken with BLPOP, so every task reaches exactly one
// worker. Routing a task to the process holding its execution is left to
// the Service via Task.Owner.
type RedisQueue struct {
	rdb    *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue connects to addr, which may be host:port or a redis:// URL.
func NewRedisQueue(ctx context.Context, addr, key string) (*RedisQueue, error) {
	var opts *redis.Options
	if parsed, err := redis.ParseURL(addr); err == nil {
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return &RedisQueue{rdb: rdb, key: key}, nil
}

func (q *RedisQueue) Push(ctx context.Context, t Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	data, err := sonic.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Task, error) {
	for {
		if q.closed.Load() {
			return Task{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}

		res, err := q.rdb.BLPop(ctx, popWait, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return Task{}, ctx.Err()
			}
			if q.closed.Load() {
				return Task{}, ErrQueueClosed
			}
			return Task{}, fmt.Errorf("pop task: %w", err)
		}

		// BLPOP answers [key, value].
		var t Task
		if err := sonic.UnmarshalString(res[1], &t); err != nil {
			return Task{}, fmt.Errorf("decode task: %w", err)
		}
		return t, nil
	}
}

// Close disconnects from Redis. Tasks left in the list stay there for other
// processes.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.rdb.Close()
}
