// Package redisstore keeps provider acceptance latency history in Redis hashes so
// every dispatch instance ranks with the same response-time data.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"service-dispatch/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "provider:latency:"
	fieldCount   = "count"
	fieldTotalMS = "total_ms"
)

type LatencyStore struct {
	client redis.Cmdable
}

var _ store.LatencyStore = (*LatencyStore)(nil)

func NewLatencyStore(client redis.Cmdable) *LatencyStore {
	return &LatencyStore{client: client}
}

func latencyKey(providerID string) string {
	return keyPrefix + providerID
}

func (s *LatencyStore) RecordAcceptance(ctx context.Context, providerID string, latency time.Duration) error {
	if latency < 0 {
		latency = 0
	}
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, latencyKey(providerID), fieldCount, 1)
	pipe.HIncrBy(ctx, latencyKey(providerID), fieldTotalMS, latency.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record latency for %s: %w", providerID, err)
	}
	return nil
}

func (s *LatencyStore) AverageLatencies(ctx context.Context, providerIDs []string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(providerIDs))
	if len(providerIDs) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(providerIDs))
	for i, id := range providerIDs {
		cmds[i] = pipe.HMGet(ctx, latencyKey(id), fieldCount, fieldTotalMS)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load latencies: %w", err)
	}

	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) != 2 {
			continue
		}
		count, okCount := parseInt(vals[0])
		total, okTotal := parseInt(vals[1])
		if !okCount || !okTotal || count <= 0 {
			continue
		}
		out[providerIDs[i]] = time.Duration(total/count) * time.Millisecond
	}
	return out, nil
}

func parseInt(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
