// Package memory is an in-process implementation of the dispatch stores, used by
// tests and by single-instance deployments with dispatch.store=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store"
)

type latencyStat struct {
	count int64
	total time.Duration
}

// Store satisfies store.RequestStore, store.ProviderStore and store.LatencyStore.
// A single mutex guards all state; UpdateStatus is a compare-and-set under it.
type Store struct {
	mu            sync.Mutex
	requests      map[string]models.ServiceRequest
	attempts      map[string][]models.DispatchAttempt
	notifications []models.NotificationRecord
	providers     map[string]models.Provider
	latencies     map[string]latencyStat
}

var (
	_ store.RequestStore  = (*Store)(nil)
	_ store.ProviderStore = (*Store)(nil)
	_ store.LatencyStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		requests:  make(map[string]models.ServiceRequest),
		attempts:  make(map[string][]models.DispatchAttempt),
		providers: make(map[string]models.Provider),
		latencies: make(map[string]latencyStat),
	}
}

func (s *Store) CreateRequest(_ context.Context, req *models.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", apperrors.ErrInvalidRequest, req.ID)
	}
	s.requests[req.ID] = cloneRequest(*req)
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*models.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRequestNotFound, id)
	}
	out := cloneRequest(req)
	return &out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, u store.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", apperrors.ErrRequestNotFound, id)
	}
	if !u.Allows(req.Status) {
		return false, nil
	}
	if u.To == models.StatusAssigned && req.AssignedProviderID != nil {
		return false, nil
	}

	at := u.At
	req.Status = u.To
	req.UpdatedAt = at
	switch u.To {
	case models.StatusAssigned:
		pid := u.ProviderID
		req.AssignedProviderID = &pid
		req.AcceptedAt = &at
	case models.StatusCancelled:
		req.CancelReason = u.CancelReason
	case models.StatusCompleted:
		req.CompletedAt = &at
		if u.FinalCost != nil {
			cost := *u.FinalCost
			req.FinalCost = &cost
		}
	}
	s.requests[id] = req
	return true, nil
}

func (s *Store) SaveAttempt(_ context.Context, attempt *models.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.attempts[attempt.RequestID] {
		if !a.Resolved {
			return fmt.Errorf("%w: request %s already has an open attempt", apperrors.ErrInvalidTransition, attempt.RequestID)
		}
	}
	a := *attempt
	a.NotifiedProviderIDs = append([]string(nil), attempt.NotifiedProviderIDs...)
	s.attempts[attempt.RequestID] = append(s.attempts[attempt.RequestID], a)
	return nil
}

func (s *Store) ResolveAttempt(_ context.Context, requestID string, outcome models.AttemptOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := s.attempts[requestID]
	for i := range attempts {
		if !attempts[i].Resolved {
			o := outcome
			attempts[i].Resolved = true
			attempts[i].Outcome = &o
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListAttempts(_ context.Context, requestID string) ([]models.DispatchAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.DispatchAttempt(nil), s.attempts[requestID]...), nil
}

func (s *Store) OpenAttempts(_ context.Context) ([]models.DispatchAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.DispatchAttempt
	for _, attempts := range s.attempts {
		for _, a := range attempts {
			if !a.Resolved {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (s *Store) SaveNotification(_ context.Context, rec *models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a re-dispatch may notify the same provider again
	for i := range s.notifications {
		n := s.notifications[i]
		if n.RequestID == rec.RequestID && n.ProviderID == rec.ProviderID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			break
		}
	}
	s.notifications = append(s.notifications, *rec)
	return nil
}

func (s *Store) MarkDelivered(_ context.Context, requestID, providerID string, delivered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		n := &s.notifications[i]
		if n.RequestID == requestID && n.ProviderID == providerID {
			n.Delivered = delivered
		}
	}
	return nil
}

func (s *Store) MarkResponded(_ context.Context, requestID, providerID string, decision models.ReplyDecision, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		n := &s.notifications[i]
		if n.RequestID == requestID && n.ProviderID == providerID && n.Open() {
			d, t := decision, at
			n.Response = &d
			n.RespondedAt = &t
		}
	}
	return nil
}

func (s *Store) LatestOpenNotification(_ context.Context, channelID string) (*models.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// offers on requests still awaiting a response win over newer ones that are
	// already decided
	var (
		latest        *models.NotificationRecord
		latestWaiting bool
	)
	for i := range s.notifications {
		n := s.notifications[i]
		if n.ChannelID != channelID || !n.Open() {
			continue
		}
		waiting := s.requests[n.RequestID].Status == models.StatusAwaitingResponse
		switch {
		case latest == nil,
			waiting && !latestWaiting,
			waiting == latestWaiting && !n.SentAt.Before(latest.SentAt):
			latest, latestWaiting = &n, waiting
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNoPendingRequest, channelID)
	}
	return latest, nil
}

func (s *Store) ListNotifications(_ context.Context, requestID string) ([]models.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.NotificationRecord
	for _, n := range s.notifications {
		if n.RequestID == requestID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) SaveProvider(_ context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[p.ID] = cloneProvider(*p)
	return nil
}

func (s *Store) GetProvider(_ context.Context, id string) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderNotFound, id)
	}
	out := cloneProvider(p)
	return &out, nil
}

func (s *Store) GetProviderByChannel(_ context.Context, channelID string) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.providers {
		if p.ChannelID == channelID {
			out := cloneProvider(p)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: channel %s", apperrors.ErrProviderNotFound, channelID)
}

func (s *Store) ListEligible(_ context.Context, serviceType models.ServiceType) ([]models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Provider, 0)
	for _, p := range s.providers {
		if p.IsActive && p.IsAvailable && p.Offers(serviceType) {
			out = append(out, cloneProvider(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetAvailability(_ context.Context, id string, available bool) error {
	return s.mutateProvider(id, func(p *models.Provider) { p.IsAvailable = available })
}

func (s *Store) Deactivate(_ context.Context, id string) error {
	return s.mutateProvider(id, func(p *models.Provider) { p.IsActive = false })
}

func (s *Store) IncrementJobs(_ context.Context, id string) error {
	return s.mutateProvider(id, func(p *models.Provider) { p.TotalJobs++ })
}

func (s *Store) ApplyRating(_ context.Context, id string, score float64) error {
	return s.mutateProvider(id, func(p *models.Provider) { p.ApplyRating(score) })
}

func (s *Store) mutateProvider(id string, fn func(p *models.Provider)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrProviderNotFound, id)
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	s.providers[id] = p
	return nil
}

func (s *Store) RecordAcceptance(_ context.Context, providerID string, latency time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latency < 0 {
		latency = 0
	}
	st := s.latencies[providerID]
	st.count++
	st.total += latency
	s.latencies[providerID] = st
	return nil
}

func (s *Store) AverageLatencies(_ context.Context, providerIDs []string) (map[string]time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Duration)
	for _, id := range providerIDs {
		if st, ok := s.latencies[id]; ok && st.count > 0 {
			out[id] = st.total / time.Duration(st.count)
		}
	}
	return out, nil
}

func cloneRequest(r models.ServiceRequest) models.ServiceRequest {
	if r.AssignedProviderID != nil {
		v := *r.AssignedProviderID
		r.AssignedProviderID = &v
	}
	if r.AcceptedAt != nil {
		v := *r.AcceptedAt
		r.AcceptedAt = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		r.CompletedAt = &v
	}
	if r.EstimatedCost != nil {
		v := *r.EstimatedCost
		r.EstimatedCost = &v
	}
	if r.FinalCost != nil {
		v := *r.FinalCost
		r.FinalCost = &v
	}
	return r
}

func cloneProvider(p models.Provider) models.Provider {
	p.Services = append([]models.ServiceType(nil), p.Services...)
	p.CoverageAreas = append([]string(nil), p.CoverageAreas...)
	return p
}
