//go:build e2e

// Package e2e drives the dispatch core against live PostgreSQL and Redis.
// Run with: go test -tags e2e ./test/e2e/
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/database"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/dispatch/coordinator"
	"service-dispatch/internal/dispatch/directory"
	"service-dispatch/internal/dispatch/response"
	"service-dispatch/internal/dispatch/scorer"
	"service-dispatch/internal/dispatch/timer"
	"service-dispatch/internal/models"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/store/postgres"
	"service-dispatch/internal/store/redisstore"
)

var (
	pg  *database.PostgresClient
	rdb *database.RedisClient
)

func TestMain(m *testing.M) {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"

	ctx := context.Background()
	pg, err = database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		panic(fmt.Sprintf("postgres: %v", err))
	}
	if err := pg.Migrate(ctx, postgres.Schema...); err != nil {
		panic(fmt.Sprintf("migrate: %v", err))
	}
	rdb, err = database.NewRedis(cfg.Database.Redis)
	if err != nil {
		panic(fmt.Sprintf("redis: %v", err))
	}
	if err := rdb.Ping(ctx); err != nil {
		panic(err.Error())
	}

	code := m.Run()
	rdb.Close()
	pg.Close()
	os.Exit(code)
}

// stack is one coordinator over the live stores, isolated from earlier runs by
// a neighbourhood and city unique to the test.
type stack struct {
	coord    *coordinator.Coordinator
	replies  *response.Handler
	dir      *directory.Directory
	store    *postgres.Store
	timers   *timer.RedisScheduler
	location string
	suffix   string
}

func newStack(t *testing.T, timeout time.Duration) *stack {
	t.Helper()
	log := logger.NewTestLogger(t)
	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	hood := "e2e" + suffix
	city := "E2ECity" + suffix

	st := postgres.New(pg.DB)
	dir := directory.New(st, directory.NewZoneMatcher(map[string]string{hood: city}), log)
	timers := timer.NewRedisScheduler(rdb.Client, "e2e:timers:"+suffix, 100*time.Millisecond, log)
	gw := notify.NewLogGateway(log)

	coord := coordinator.New(coordinator.Config{TopN: 3, AcceptanceTimeout: timeout}, coordinator.Deps{
		Requests:  st,
		Providers: st,
		Latencies: redisstore.NewLatencyStore(rdb.Client),
		Finder:    dir,
		Scorer:    scorer.New(scorer.DefaultWeights()),
		Timers:    timers,
		Gateway:   gw,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = timers.Run(ctx) }()

	s := &stack{
		coord:    coord,
		replies:  response.NewHandler(st, coord, response.NewKeywordClassifier(), gw, log),
		dir:      dir,
		store:    st,
		timers:   timers,
		location: hood + ", " + city,
		suffix:   suffix,
	}
	for _, r := range []float64{4.9, 4.5, 4.2} {
		id := fmt.Sprintf("e2e-%s-%d", suffix, int(r*10))
		require.NoError(t, dir.Register(context.Background(), &models.Provider{
			ID:            id,
			DisplayName:   "Plombier " + id,
			ChannelID:     "ch-" + id,
			Services:      []models.ServiceType{models.ServicePlumbing},
			CoverageAreas: []string{hood},
			IsAvailable:   true,
			Rating:        r,
		}))
	}
	return s
}

func (s *stack) provider(rating int) string {
	return fmt.Sprintf("e2e-%s-%d", s.suffix, rating)
}

func (s *stack) dispatch(t *testing.T) *coordinator.Result {
	t.Helper()
	res, err := s.coord.Dispatch(context.Background(), &models.ServiceRequest{
		RequesterID:        "u-" + s.suffix,
		RequesterChannelID: "ch-user-" + s.suffix,
		ServiceType:        models.ServicePlumbing,
		Description:        "fuite sous l'evier",
		Location:           s.location,
		Urgency:            models.UrgencyNormal,
	})
	require.NoError(t, err)
	require.False(t, res.NoProvider)
	return res
}

func TestDispatchAcceptComplete(t *testing.T) {
	s := newStack(t, time.Minute)
	ctx := context.Background()

	res := s.dispatch(t)
	assert.Equal(t, []string{s.provider(49), s.provider(45), s.provider(42)}, res.Notified)

	out, err := s.replies.OnReply(ctx, "ch-"+s.provider(45), "Oui")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, out.Status)

	_, err = s.replies.OnReply(ctx, "ch-"+s.provider(49), "ok")
	require.Error(t, err)
	assert.True(t, coordinator.IsConflict(err))

	cost := 15000.0
	rating := 5.0
	done, err := s.coord.Complete(ctx, res.RequestID, &cost, &rating)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	p, err := s.dir.Get(ctx, s.provider(45))
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalJobs)
	assert.Equal(t, 0, s.timers.Pending(ctx))
}

func TestTimeoutEscalatesThroughRedis(t *testing.T) {
	s := newStack(t, 500*time.Millisecond)
	ctx := context.Background()

	res := s.dispatch(t)

	require.Eventually(t, func() bool {
		req, err := s.coord.Status(ctx, res.RequestID)
		return err == nil && req.Status == models.StatusEscalated
	}, 5*time.Second, 100*time.Millisecond)

	h, err := s.coord.History(ctx, res.RequestID)
	require.NoError(t, err)
	require.Len(t, h.Attempts, 1)
	require.NotNil(t, h.Attempts[0].Outcome)
	assert.Equal(t, models.OutcomeEscalated, *h.Attempts[0].Outcome)
}
