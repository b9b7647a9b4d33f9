package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*LatencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLatencyStore(client), mr
}

func TestRecordAndAverage(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAcceptance(ctx, "prov-1", 90*time.Second))
	require.NoError(t, s.RecordAcceptance(ctx, "prov-1", 150*time.Second))
	require.NoError(t, s.RecordAcceptance(ctx, "prov-2", 8*time.Minute))

	assert.Equal(t, "2", mr.HGet("provider:latency:prov-1", "count"))
	assert.Equal(t, "240000", mr.HGet("provider:latency:prov-1", "total_ms"))

	avg, err := s.AverageLatencies(ctx, []string{"prov-1", "prov-2", "prov-new"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Duration{
		"prov-1": 2 * time.Minute,
		"prov-2": 8 * time.Minute,
	}, avg)
}

func TestAverageLatencies_Empty(t *testing.T) {
	s, _ := newTestStore(t)

	avg, err := s.AverageLatencies(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, avg)
}

func TestAverageLatencies_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewLatencyStore(db)

	mock.ExpectHMGet("provider:latency:prov-1", "count", "total_ms").SetErr(errors.New("connection refused"))

	_, err := s.AverageLatencies(context.Background(), []string{"prov-1"})
	assert.Error(t, err)
}
