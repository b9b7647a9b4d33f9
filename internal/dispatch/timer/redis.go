package timer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"service-dispatch/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// RedisScheduler is a delayed queue on a sorted set scored by due time in unix
// milliseconds. Pollers on any instance claim due ids with ZREM; only the caller
// whose ZREM removed the member runs the handler.
type RedisScheduler struct {
	client   redis.Cmdable
	key      string
	interval time.Duration

	mu      sync.RWMutex
	handler Handler
	logger  logger.Logger
}

func NewRedisScheduler(client redis.Cmdable, key string, interval time.Duration, log logger.Logger) *RedisScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &RedisScheduler{
		client:   client,
		key:      key,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"component": "redis_timer", "key": key}),
	}
}

func (s *RedisScheduler) OnFire(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *RedisScheduler) Start(ctx context.Context, requestID string, deadline time.Time) error {
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: requestID,
	}).Err()
	if err != nil {
		return fmt.Errorf("arm timer for %s: %w", requestID, err)
	}
	return nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, requestID string) bool {
	n, err := s.client.ZRem(ctx, s.key, requestID).Result()
	if err != nil {
		s.logger.Error("cancel timer failed", map[string]interface{}{"requestId": requestID, "error": err})
		return false
	}
	return n == 1
}

func (s *RedisScheduler) Pending(ctx context.Context) int {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		s.logger.Warn("count timers failed", map[string]interface{}{"error": err})
		return 0
	}
	return int(n)
}

// PollOnce fires every timer due at now and returns how many this caller claimed.
func (s *RedisScheduler) PollOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("load due timers: %w", err)
	}

	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()

	fired := 0
	for _, id := range due {
		n, err := s.client.ZRem(ctx, s.key, id).Result()
		if err != nil {
			return fired, fmt.Errorf("claim timer %s: %w", id, err)
		}
		if n != 1 {
			continue // claimed elsewhere or cancelled
		}
		fired++
		if h != nil {
			h(ctx, id)
		}
	}
	return fired, nil
}

// Run polls until ctx is done.
func (s *RedisScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := s.PollOnce(ctx, now); err != nil {
				s.logger.Error("timer poll failed", map[string]interface{}{"error": err})
			}
		}
	}
}
