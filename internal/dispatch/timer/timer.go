// Package timer arms the per-request acceptance deadline. A timer that fires
// hands the request id to the registered handler, which must re-check status.
package timer

import (
	"context"
	"sync"
	"time"

	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/metrics"
)

// Handler runs when a deadline passes without the timer being cancelled.
type Handler func(ctx context.Context, requestID string)

type Scheduler interface {
	OnFire(h Handler)
	// Start arms or re-arms the timer for requestID.
	Start(ctx context.Context, requestID string, deadline time.Time) error
	// Cancel is idempotent. It reports whether an armed timer was removed.
	Cancel(ctx context.Context, requestID string) bool
	Pending(ctx context.Context) int
}

type localEntry struct {
	t *time.Timer
}

// LocalScheduler keeps timers in process with time.AfterFunc. Armed timers are
// lost on restart; the coordinator re-arms them from open dispatch attempts.
type LocalScheduler struct {
	mu      sync.Mutex
	timers  map[string]*localEntry
	handler Handler
	logger  logger.Logger
}

func NewLocalScheduler(log logger.Logger) *LocalScheduler {
	return &LocalScheduler{
		timers: make(map[string]*localEntry),
		logger: log.WithFields(map[string]interface{}{"component": "local_timer"}),
	}
}

func (s *LocalScheduler) OnFire(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *LocalScheduler) Start(_ context.Context, requestID string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[requestID]; ok {
		prev.t.Stop()
	} else {
		metrics.PendingTimers.Inc()
	}

	e := &localEntry{}
	e.t = time.AfterFunc(time.Until(deadline), func() { s.fire(requestID, e) })
	s.timers[requestID] = e
	return nil
}

// fire removes its own entry before running the handler; a concurrent Cancel
// that got there first wins and the handler never runs.
func (s *LocalScheduler) fire(requestID string, e *localEntry) {
	s.mu.Lock()
	cur, ok := s.timers[requestID]
	if !ok || cur != e {
		s.mu.Unlock()
		return
	}
	delete(s.timers, requestID)
	metrics.PendingTimers.Dec()
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		s.logger.Warn("timer fired without handler", map[string]interface{}{"requestId": requestID})
		return
	}
	h(context.Background(), requestID)
}

func (s *LocalScheduler) Cancel(_ context.Context, requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[requestID]
	if !ok {
		return false
	}
	delete(s.timers, requestID)
	metrics.PendingTimers.Dec()
	e.t.Stop()
	return true
}

func (s *LocalScheduler) Pending(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
