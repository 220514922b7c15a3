package events

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out globally increasing event sequence numbers.
type Sequencer interface {
	Next(ctx context.Context) (uint64, error)
}

// MemorySequencer is a process-local counter.
type MemorySequencer struct {
	n atomic.Uint64
}

// NewMemorySequencer starts counting after start.
func NewMemorySequencer(start uint64) *MemorySequencer {
	s := &MemorySequencer{}
	s.n.Store(start)
	return s
}

func (s *MemorySequencer) Next(context.Context) (uint64, error) {
	return s.n.Add(1), nil
}

// RedisSequencer shares one counter across every service instance.
type RedisSequencer struct {
	client redis.Cmdable
	key    string
}

// NewRedisSequencer uses INCR on key. Next runs under the bus publish lock,
// so each publish costs one Redis round trip.
func NewRedisSequencer(client redis.Cmdable, key string) *RedisSequencer {
	return &RedisSequencer{client: client, key: key}
}

func (s *RedisSequencer) Next(ctx context.Context) (uint64, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
