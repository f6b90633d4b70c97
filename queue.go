package sserelay

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the external source of broadcasts. Pop blocks until the oldest
// value is available and returns its bytes unchanged. Pop must return when
// ctx is cancelled.
type Queue interface {
	Pop(ctx context.Context) ([]byte, error)
}

// DefaultQueueName is the redis list pysse producers push to.
const DefaultQueueName = "pysse"

// RedisQueue pops values from a redis list. Producers LPUSH, the relay
// BRPOPs, so values are delivered oldest first.
type RedisQueue struct {
	client  redis.Cmdable
	name    string
	timeout time.Duration
}

// NewRedisQueue creates a queue reading from list name. Every BRPOP blocks
// for at most timeout, Pop keeps retrying until a value arrives or ctx is
// cancelled. Redis counts BRPOP timeouts in whole seconds, shorter values
// are raised to one second.
func NewRedisQueue(client redis.Cmdable, name string, timeout time.Duration) *RedisQueue {
	if timeout < time.Second {
		timeout = time.Second
	}
	return &RedisQueue{
		client:  client,
		name:    name,
		timeout: timeout,
	}
}

func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	for {
		res, err := q.client.BRPop(ctx, q.timeout, q.name).Result()
		if err == redis.Nil {
			// BRPOP timed out, nothing was pushed
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		// BRPOP replies with the list name followed by the value
		return []byte(res[1]), nil
	}
}

// Push appends data to the list. It is meant for producers and tests, the
// relay itself never pushes.
func (q *RedisQueue) Push(ctx context.Context, data []byte) error {
	return q.client.LPush(ctx, q.name, data).Err()
}
