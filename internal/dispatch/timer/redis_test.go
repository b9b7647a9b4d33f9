package timer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-dispatch/internal/common/logger"
)

const queueKey = "dispatch:timers"

func newRedisScheduler(t *testing.T) (*RedisScheduler, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisScheduler(client, queueKey, 10*time.Millisecond, logger.NewTestLogger(t)), client
}

func TestRedisScheduler_PollFiresDueOnly(t *testing.T) {
	s, _ := newRedisScheduler(t)
	rec := newRecorder()
	s.OnFire(rec.handle)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Start(ctx, "due", now.Add(-time.Second)))
	require.NoError(t, s.Start(ctx, "later", now.Add(time.Hour)))
	assert.Equal(t, 2, s.Pending(ctx))

	fired, err := s.PollOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, []string{"due"}, rec.fired)
	assert.Equal(t, 1, s.Pending(ctx))
}

func TestRedisScheduler_CancelAndRestart(t *testing.T) {
	s, _ := newRedisScheduler(t)
	rec := newRecorder()
	s.OnFire(rec.handle)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Start(ctx, "req-1", now.Add(-time.Second)))
	assert.True(t, s.Cancel(ctx, "req-1"))
	assert.False(t, s.Cancel(ctx, "req-1"))

	require.NoError(t, s.Start(ctx, "req-2", now.Add(-time.Second)))
	require.NoError(t, s.Start(ctx, "req-2", now.Add(time.Hour)))

	fired, err := s.PollOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Empty(t, rec.fired)
}

func TestRedisScheduler_CompetingPollersClaimOnce(t *testing.T) {
	s1, client := newRedisScheduler(t)
	s2 := NewRedisScheduler(client, queueKey, 10*time.Millisecond, logger.NewNoOpLogger())

	var fired int32
	count := func(context.Context, string) { atomic.AddInt32(&fired, 1) }
	s1.OnFire(count)
	s2.OnFire(count)

	ctx := context.Background()
	past := time.Now().Add(-time.Second)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s1.Start(ctx, id, past))
	}

	var wg sync.WaitGroup
	for _, s := range []*RedisScheduler{s1, s2} {
		wg.Add(1)
		go func(s *RedisScheduler) {
			defer wg.Done()
			_, err := s.PollOnce(ctx, time.Now())
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&fired))
}

func TestRedisScheduler_Run(t *testing.T) {
	s, _ := newRedisScheduler(t)
	rec := newRecorder()
	s.OnFire(rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, "req-1", time.Now().Add(30*time.Millisecond)))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case id := <-rec.ch:
		assert.Equal(t, "req-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRedisScheduler_StartError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisScheduler(db, queueKey, time.Second, logger.NewNoOpLogger())

	deadline := time.UnixMilli(1_700_000_000_000)
	mock.ExpectZAdd(queueKey, redis.Z{Score: float64(deadline.UnixMilli()), Member: "req-1"}).
		SetErr(errors.New("READONLY"))

	err := s.Start(context.Background(), "req-1", deadline)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
