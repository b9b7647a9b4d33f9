// Package coordinator drives a service request through candidate selection,
// provider notification, assignment and escalation.
//
// Lifecycle: pending -> notifying -> awaiting_response -> assigned | escalated | cancelled,
// assigned -> completed, and escalated -> pending on operator re-dispatch. Every
// transition is a compare-and-set in the request store, so a reply, a timer and a
// cancellation racing on the same request resolve to exactly one winner.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/metrics"
	"service-dispatch/internal/common/observability"
	"service-dispatch/internal/dispatch/directory"
	"service-dispatch/internal/dispatch/messages"
	"service-dispatch/internal/dispatch/scorer"
	"service-dispatch/internal/dispatch/timer"
	"service-dispatch/internal/models"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// CandidateFinder is the eligibility query the coordinator depends on.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, serviceType models.ServiceType, location string) ([]directory.Candidate, error)
}

// EventSink receives lifecycle events for the dispatch history index.
type EventSink interface {
	Record(ctx context.Context, ev models.DispatchEvent)
}

// Result summarizes one dispatch attempt.
type Result struct {
	RequestID  string                  `json:"requestId"`
	Status     models.RequestStatus    `json:"status"`
	AttemptID  string                  `json:"attemptId,omitempty"`
	Notified   []string                `json:"notifiedProviderIds,omitempty"`
	Deadline   *time.Time              `json:"deadline,omitempty"`
	NoProvider bool                    `json:"noProvider"`
	Ranked     []models.MatchCandidate `json:"-"`
}

type Coordinator struct {
	requests  store.RequestStore
	providers store.ProviderStore
	latencies store.LatencyStore
	finder    CandidateFinder
	scorer    *scorer.Scorer
	timers    timer.Scheduler
	gateway   notify.Gateway
	events    EventSink
	cfg       Config
	now       func() time.Time
	tracer    trace.Tracer
	logger    logger.Logger
}

type Deps struct {
	Requests  store.RequestStore
	Providers store.ProviderStore
	Latencies store.LatencyStore
	Finder    CandidateFinder
	Scorer    *scorer.Scorer
	Timers    timer.Scheduler
	Gateway   notify.Gateway
	// Events is optional.
	Events EventSink
}

// New wires the coordinator and registers HandleTimeout as the timer handler.
func New(cfg Config, deps Deps, log logger.Logger) *Coordinator {
	c := &Coordinator{
		requests:  deps.Requests,
		providers: deps.Providers,
		latencies: deps.Latencies,
		finder:    deps.Finder,
		scorer:    deps.Scorer,
		timers:    deps.Timers,
		gateway:   deps.Gateway,
		events:    deps.Events,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
		tracer:    observability.Tracer(),
		logger:    log.WithFields(map[string]interface{}{"component": "coordinator"}),
	}
	if c.scorer == nil {
		c.scorer = scorer.New(scorer.DefaultWeights())
	}
	c.timers.OnFire(func(ctx context.Context, requestID string) {
		if err := c.HandleTimeout(ctx, requestID); err != nil {
			c.logger.Error("timeout handling failed", map[string]interface{}{"requestId": requestID, "error": err})
		}
	})
	return c
}

// Dispatch validates and persists a new request, then runs selection and fan-out.
// No eligible provider is not an error: the request is escalated and the result
// has NoProvider set.
func (c *Coordinator) Dispatch(ctx context.Context, req *models.ServiceRequest) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Dispatch")
	defer span.End()

	if err := normalizeRequest(req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("request.id", req.ID), attribute.String("request.service", string(req.ServiceType)))

	now := c.now()
	req.Status = models.StatusPending
	req.AssignedProviderID = nil
	req.CreatedAt = now
	req.UpdatedAt = now
	if err := c.requests.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	c.record(ctx, *req, models.EventRequestCreated, nil, "")

	return c.run(ctx, req)
}

// run takes a pending request through one dispatch attempt.
func (c *Coordinator) run(ctx context.Context, req *models.ServiceRequest) (*Result, error) {
	log := c.logger.WithFields(map[string]interface{}{"requestId": req.ID})

	candidates, err := c.finder.FindCandidates(ctx, req.ServiceType, req.Location)
	if err != nil {
		log.Error("directory unavailable, treating as no provider", map[string]interface{}{"error": err})
		candidates = nil
	}
	if len(candidates) == 0 {
		return c.escalateNoProvider(ctx, req)
	}

	if err := c.transition(ctx, req.ID, models.StatusNotifying, models.StatusPending); err != nil {
		return nil, err
	}

	ranked := c.rank(ctx, candidates, *req)
	targets := scorer.Top(ranked, c.cfg.TopN)

	sentAt := c.now()
	notified := make([]string, 0, len(targets))
	for _, t := range targets {
		rec := &models.NotificationRecord{
			RequestID:  req.ID,
			ProviderID: t.Provider.ID,
			ChannelID:  t.Provider.ChannelID,
			SentAt:     sentAt,
		}
		if err := c.requests.SaveNotification(ctx, rec); err != nil {
			c.abortAttempt(ctx, req, models.StatusNotifying, err)
			return nil, err
		}
		notified = append(notified, t.Provider.ID)
	}

	deadline := sentAt.Add(c.cfg.TimeoutFor(req.Urgency))
	attempt := &models.DispatchAttempt{
		ID:                  uuid.NewString(),
		RequestID:           req.ID,
		NotifiedProviderIDs: notified,
		Deadline:            deadline,
		CreatedAt:           sentAt,
	}
	if err := c.requests.SaveAttempt(ctx, attempt); err != nil {
		c.abortAttempt(ctx, req, models.StatusNotifying, err)
		return nil, err
	}

	// Replies are only accepted in awaiting_response, so the state and the timer
	// must be in place before the first message leaves.
	if err := c.transition(ctx, req.ID, models.StatusAwaitingResponse, models.StatusNotifying); err != nil {
		c.resolveAttempt(ctx, req.ID, models.OutcomeCancelled)
		return nil, err
	}
	req.Status = models.StatusAwaitingResponse
	if err := c.timers.Start(ctx, req.ID, deadline); err != nil {
		// without a timer nobody would ever hear back; hand the request to an
		// operator before any offer goes out
		log.Error("failed to arm escalation timer", map[string]interface{}{"error": err, "deadline": deadline})
		if _, escErr := c.escalateAwaiting(ctx, req.ID, "timer_unavailable", "escalation timer unavailable"); escErr != nil {
			return nil, escErr
		}
		return c.haltedResult(ctx, req.ID, attempt.ID)
	}

	// a cancel that landed while the timer was being armed must not reach providers
	current, err := c.requests.GetRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusAwaitingResponse {
		c.timers.Cancel(ctx, req.ID)
		log.Info("request left awaiting_response before fan-out", map[string]interface{}{"status": current.Status})
		return &Result{RequestID: req.ID, Status: current.Status, AttemptID: attempt.ID}, nil
	}

	c.fanOut(ctx, *req, targets)

	metrics.RecordOutcome("notified")
	c.record(ctx, *req, models.EventProvidersNotified, notified, "")
	log.Info("providers notified", map[string]interface{}{
		"attemptId": attempt.ID,
		"providers": notified,
		"deadline":  deadline,
	})

	return &Result{
		RequestID: req.ID,
		Status:    models.StatusAwaitingResponse,
		AttemptID: attempt.ID,
		Notified:  notified,
		Deadline:  &deadline,
		Ranked:    ranked,
	}, nil
}

func (c *Coordinator) rank(ctx context.Context, candidates []directory.Candidate, req models.ServiceRequest) []models.MatchCandidate {
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.Provider.ID
	}

	latencies, err := c.latencies.AverageLatencies(ctx, ids)
	if err != nil {
		c.logger.Warn("latency history unavailable, using neutral response scores", map[string]interface{}{
			"requestId": req.ID,
			"error":     err,
		})
		latencies = nil
	}
	idx := scorer.NewResponseTimeIndex(latencies, c.cfg.LatencyCeiling)
	return c.scorer.Rank(candidates, req, idx)
}

// fanOut sends the offer to every target with bounded concurrency. A failed send
// is logged and counted; it never stops the other sends and is not retried.
func (c *Coordinator) fanOut(ctx context.Context, req models.ServiceRequest, targets []models.MatchCandidate) {
	text := messages.Render(messages.ProviderOffer, messages.RequestData(req))

	var g errgroup.Group
	g.SetLimit(c.cfg.FanoutConcurrency)
	for _, t := range targets {
		p := t.Provider
		g.Go(func() error {
			delivered := c.gateway.Send(ctx, p.ChannelID, text)
			if err := c.requests.MarkDelivered(ctx, req.ID, p.ID, delivered); err != nil {
				c.logger.Warn("failed to record delivery", map[string]interface{}{
					"requestId":  req.ID,
					"providerId": p.ID,
					"error":      err,
				})
			}
			if !delivered {
				stdErr := apperrors.NewNotificationDeliveryError(p.ChannelID)
				c.logger.Warn("provider notification not delivered", map[string]interface{}{
					"requestId":  req.ID,
					"providerId": p.ID,
					"errorCode":  string(stdErr.Code),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) escalateNoProvider(ctx context.Context, req *models.ServiceRequest) (*Result, error) {
	if err := c.transition(ctx, req.ID, models.StatusEscalated, models.StatusPending); err != nil {
		return nil, err
	}
	req.Status = models.StatusEscalated

	c.send(ctx, req.RequesterChannelID, messages.RequesterNoProvider, messages.RequestData(*req))
	metrics.RecordOutcome("no_provider")
	c.record(ctx, *req, models.EventNoProvider, nil, "")
	c.logger.Info("no provider available, request escalated", map[string]interface{}{
		"requestId":   req.ID,
		"serviceType": req.ServiceType,
		"location":    req.Location,
	})

	return &Result{RequestID: req.ID, Status: models.StatusEscalated, NoProvider: true}, nil
}

// abortAttempt moves a request stuck mid-dispatch to escalated so an operator can
// re-dispatch it.
func (c *Coordinator) abortAttempt(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus, cause error) {
	c.logger.Error("dispatch attempt aborted", map[string]interface{}{"requestId": req.ID, "error": cause})
	if _, err := c.requests.UpdateStatus(ctx, req.ID, store.StatusUpdate{
		From: []models.RequestStatus{from},
		To:   models.StatusEscalated,
		At:   c.now(),
	}); err != nil {
		c.logger.Error("failed to escalate aborted request", map[string]interface{}{"requestId": req.ID, "error": err})
	}
}

// Accept assigns the request to providerID if it is still awaiting a response.
// A provider that loses the race gets ErrAssignmentConflict, or ErrRequestClosed
// when the request was cancelled or escalated, and is told so.
func (c *Coordinator) Accept(ctx context.Context, requestID, providerID string) (*models.ServiceRequest, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID), attribute.String("provider.id", providerID))

	now := c.now()
	won, err := c.requests.UpdateStatus(ctx, requestID, store.StatusUpdate{
		From:       []models.RequestStatus{models.StatusAwaitingResponse},
		To:         models.StatusAssigned,
		At:         now,
		ProviderID: providerID,
	})
	if err != nil {
		return nil, err
	}
	c.markResponded(ctx, requestID, providerID, models.DecisionAccept, now)

	provider, perr := c.providers.GetProvider(ctx, providerID)
	if perr != nil {
		c.logger.Warn("accepting provider not found", map[string]interface{}{"providerId": providerID, "error": perr})
	}

	if !won {
		return nil, c.rejectLateAccept(ctx, requestID, providerID, provider)
	}

	c.timers.Cancel(ctx, requestID)
	c.resolveAttempt(ctx, requestID, models.OutcomeAssigned)
	if err := c.providers.IncrementJobs(ctx, providerID); err != nil {
		c.logger.Warn("failed to increment provider jobs", map[string]interface{}{"providerId": providerID, "error": err})
	}
	c.recordLatency(ctx, requestID, providerID, now)

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	data := messages.RequestData(*req)
	if provider != nil {
		messages.WithProvider(data, *provider)
		c.send(ctx, provider.ChannelID, messages.ProviderConfirmed, data)
	}
	c.send(ctx, req.RequesterChannelID, messages.RequesterAssigned, data)

	metrics.RecordOutcome("assigned")
	c.record(ctx, *req, models.EventAssigned, []string{providerID}, "")
	c.logger.Info("request assigned", map[string]interface{}{"requestId": requestID, "providerId": providerID})
	return req, nil
}

func (c *Coordinator) rejectLateAccept(ctx context.Context, requestID, providerID string, provider *models.Provider) error {
	metrics.AssignmentConflicts.Inc()

	current, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}

	kind := messages.ProviderRequestClosed
	result := fmt.Errorf("%w: request %s is %s", apperrors.ErrRequestClosed, requestID, current.Status)
	if current.Status.HasAssignment() {
		kind = messages.ProviderAlreadyAssigned
		result = fmt.Errorf("%w: request %s", apperrors.ErrAssignmentConflict, requestID)
	}

	if provider != nil {
		c.send(ctx, provider.ChannelID, kind, messages.RequestData(*current))
	}
	c.record(ctx, *current, models.EventAssignConflict, []string{providerID}, string(current.Status))
	c.logger.Info("late accept rejected", map[string]interface{}{
		"requestId":  requestID,
		"providerId": providerID,
		"status":     current.Status,
	})
	return result
}

func (c *Coordinator) recordLatency(ctx context.Context, requestID, providerID string, acceptedAt time.Time) {
	records, err := c.requests.ListNotifications(ctx, requestID)
	if err != nil {
		c.logger.Warn("failed to load notification records", map[string]interface{}{"requestId": requestID, "error": err})
		return
	}

	var first *time.Time
	for i := range records {
		r := records[i]
		if first == nil || r.SentAt.Before(*first) {
			first = &r.SentAt
		}
		if r.ProviderID != providerID {
			continue
		}
		if err := c.latencies.RecordAcceptance(ctx, providerID, acceptedAt.Sub(r.SentAt)); err != nil {
			c.logger.Warn("failed to record acceptance latency", map[string]interface{}{"providerId": providerID, "error": err})
		}
	}
	if first != nil {
		metrics.RecordTimeToAssign(acceptedAt.Sub(*first))
	}
}

// Reject records a provider's decline. The request does not change state.
func (c *Coordinator) Reject(ctx context.Context, requestID, providerID string) error {
	c.markResponded(ctx, requestID, providerID, models.DecisionReject, c.now())

	if p, err := c.providers.GetProvider(ctx, providerID); err == nil {
		c.send(ctx, p.ChannelID, messages.ProviderRejectAck, nil)
	}
	if req, err := c.requests.GetRequest(ctx, requestID); err == nil {
		c.record(ctx, *req, models.EventRejected, []string{providerID}, "")
	}
	c.logger.Info("provider declined request", map[string]interface{}{"requestId": requestID, "providerId": providerID})
	return nil
}

// HandleTimeout escalates a request still awaiting a response when its timer
// fires. The request stays open so an operator can re-dispatch or cancel it.
func (c *Coordinator) HandleTimeout(ctx context.Context, requestID string) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.HandleTimeout")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	stdErr := apperrors.NewTimerExpiredError(requestID)
	won, err := c.escalateAwaiting(ctx, requestID, "timed_out", string(stdErr.Code))
	if err != nil {
		return err
	}
	if !won {
		c.logger.Debug("timer fired after request left awaiting_response", map[string]interface{}{"requestId": requestID})
		return nil
	}
	c.logger.Info("no provider accepted in time, request escalated", map[string]interface{}{"requestId": requestID})
	return nil
}

// escalateAwaiting moves an awaiting request to escalated and tells the
// requester the search goes on. It reports false when the request had already
// left awaiting_response.
func (c *Coordinator) escalateAwaiting(ctx context.Context, requestID, outcome, detail string) (bool, error) {
	won, err := c.requests.UpdateStatus(ctx, requestID, store.StatusUpdate{
		From: []models.RequestStatus{models.StatusAwaitingResponse},
		To:   models.StatusEscalated,
		At:   c.now(),
	})
	if err != nil || !won {
		return false, err
	}

	c.resolveAttempt(ctx, requestID, models.OutcomeEscalated)

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return true, err
	}
	c.send(ctx, req.RequesterChannelID, messages.RequesterStillSearching, messages.RequestData(*req))

	metrics.RecordOutcome(outcome)
	c.record(ctx, *req, models.EventEscalated, nil, detail)
	return true, nil
}

func (c *Coordinator) haltedResult(ctx context.Context, requestID, attemptID string) (*Result, error) {
	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &Result{RequestID: requestID, Status: req.Status, AttemptID: attemptID}, nil
}

// Cancel closes an open request. Cancelling an already cancelled request is a
// no-op; assigned or completed requests return ErrRequestClosed.
func (c *Coordinator) Cancel(ctx context.Context, requestID, reason string) (*models.ServiceRequest, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	won, err := c.requests.UpdateStatus(ctx, requestID, store.StatusUpdate{
		From:         models.OpenStatuses,
		To:           models.StatusCancelled,
		At:           c.now(),
		CancelReason: strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, err
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !won {
		if req.Status == models.StatusCancelled {
			return req, nil
		}
		return nil, fmt.Errorf("%w: request %s is %s", apperrors.ErrRequestClosed, requestID, req.Status)
	}

	c.timers.Cancel(ctx, requestID)
	c.resolveAttempt(ctx, requestID, models.OutcomeCancelled)
	c.send(ctx, req.RequesterChannelID, messages.RequesterCancelled, messages.RequestData(*req))

	metrics.RecordOutcome("cancelled")
	c.record(ctx, *req, models.EventCancelled, nil, req.CancelReason)
	c.logger.Info("request cancelled", map[string]interface{}{"requestId": requestID, "reason": req.CancelReason})
	return req, nil
}

// Redispatch runs a new attempt for an escalated request.
func (c *Coordinator) Redispatch(ctx context.Context, requestID string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Redispatch")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	if err := c.transition(ctx, requestID, models.StatusPending, models.StatusEscalated); err != nil {
		return nil, err
	}
	c.resolveAttempt(ctx, requestID, models.OutcomeEscalated)

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	c.record(ctx, *req, models.EventRedispatched, nil, "")
	return c.run(ctx, req)
}

// Complete closes an assigned request and folds the requester's rating, if any,
// into the provider's average.
func (c *Coordinator) Complete(ctx context.Context, requestID string, finalCost, rating *float64) (*models.ServiceRequest, error) {
	if rating != nil && (*rating < 0 || *rating > 5) {
		return nil, fmt.Errorf("%w: rating %.2f outside [0,5]", apperrors.ErrInvalidRequest, *rating)
	}

	won, err := c.requests.UpdateStatus(ctx, requestID, store.StatusUpdate{
		From:      []models.RequestStatus{models.StatusAssigned},
		To:        models.StatusCompleted,
		At:        c.now(),
		FinalCost: finalCost,
	})
	if err != nil {
		return nil, err
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("%w: cannot complete request %s in status %s", apperrors.ErrInvalidTransition, requestID, req.Status)
	}

	if rating != nil && req.AssignedProviderID != nil {
		if err := c.providers.ApplyRating(ctx, *req.AssignedProviderID, *rating); err != nil {
			c.logger.Warn("failed to apply rating", map[string]interface{}{"providerId": *req.AssignedProviderID, "error": err})
		}
	}

	metrics.RecordOutcome("completed")
	c.record(ctx, *req, models.EventCompleted, nil, "")
	return req, nil
}

func (c *Coordinator) Status(ctx context.Context, requestID string) (*models.ServiceRequest, error) {
	return c.requests.GetRequest(ctx, requestID)
}

func (c *Coordinator) History(ctx context.Context, requestID string) (*models.RequestHistory, error) {
	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	attempts, err := c.requests.ListAttempts(ctx, requestID)
	if err != nil {
		return nil, err
	}
	records, err := c.requests.ListNotifications(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &models.RequestHistory{Request: *req, Attempts: attempts, Notifications: records}, nil
}

// Candidates ranks eligible providers for a request without persisting or
// notifying anything.
func (c *Coordinator) Candidates(ctx context.Context, req models.ServiceRequest) ([]models.MatchCandidate, error) {
	candidates, err := c.finder.FindCandidates(ctx, req.ServiceType, req.Location)
	if err != nil {
		return nil, err
	}
	return c.rank(ctx, candidates, req), nil
}

// Recover re-arms timers for attempts still awaiting a response, and escalates
// those whose deadline passed while the process was down.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	open, err := c.requests.OpenAttempts(ctx)
	if err != nil {
		return 0, err
	}

	rearmed := 0
	for _, a := range open {
		req, err := c.requests.GetRequest(ctx, a.RequestID)
		if err != nil || req.Status != models.StatusAwaitingResponse {
			continue
		}
		if !a.Deadline.After(c.now()) {
			if err := c.HandleTimeout(ctx, a.RequestID); err != nil {
				c.logger.Error("recovery timeout failed", map[string]interface{}{"requestId": a.RequestID, "error": err})
			}
			continue
		}
		if err := c.timers.Start(ctx, a.RequestID, a.Deadline); err != nil {
			return rearmed, err
		}
		rearmed++
	}
	return rearmed, nil
}

// transition is a CAS that reports a lost race as ErrRequestClosed, or
// ErrInvalidTransition when the request is still open in another state.
func (c *Coordinator) transition(ctx context.Context, requestID string, to models.RequestStatus, from ...models.RequestStatus) error {
	won, err := c.requests.UpdateStatus(ctx, requestID, store.StatusUpdate{From: from, To: to, At: c.now()})
	if err != nil {
		return err
	}
	if won {
		return nil
	}

	current, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !current.Status.IsOpen() {
		return fmt.Errorf("%w: request %s is %s", apperrors.ErrRequestClosed, requestID, current.Status)
	}
	return fmt.Errorf("%w: request %s is %s, expected %v", apperrors.ErrInvalidTransition, requestID, current.Status, from)
}

func (c *Coordinator) resolveAttempt(ctx context.Context, requestID string, outcome models.AttemptOutcome) {
	if _, err := c.requests.ResolveAttempt(ctx, requestID, outcome); err != nil {
		c.logger.Warn("failed to resolve dispatch attempt", map[string]interface{}{"requestId": requestID, "error": err})
	}
}

func (c *Coordinator) markResponded(ctx context.Context, requestID, providerID string, decision models.ReplyDecision, at time.Time) {
	if err := c.requests.MarkResponded(ctx, requestID, providerID, decision, at); err != nil {
		c.logger.Warn("failed to record provider response", map[string]interface{}{
			"requestId":  requestID,
			"providerId": providerID,
			"error":      err,
		})
	}
}

func (c *Coordinator) send(ctx context.Context, channelID string, kind messages.Kind, data map[string]interface{}) bool {
	if channelID == "" {
		return false
	}
	if c.gateway.Send(ctx, channelID, messages.Render(kind, data)) {
		return true
	}
	c.logger.Warn("message not delivered", map[string]interface{}{
		"channelId": channelID,
		"kind":      string(kind),
		"errorCode": string(apperrors.ErrCodeNotificationDelivery),
	})
	return false
}

func (c *Coordinator) record(ctx context.Context, req models.ServiceRequest, typ models.EventType, providers []string, detail string) {
	if c.events == nil {
		return
	}
	c.events.Record(ctx, models.DispatchEvent{
		RequestID:   req.ID,
		Type:        typ,
		Status:      req.Status,
		ServiceType: req.ServiceType,
		ProviderIDs: providers,
		Detail:      detail,
		At:          c.now(),
	})
}

var knownServices = map[models.ServiceType]bool{
	models.ServicePlumbing:        true,
	models.ServiceElectrical:      true,
	models.ServiceApplianceRepair: true,
}

func normalizeRequest(req *models.ServiceRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", apperrors.ErrInvalidRequest)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Urgency == "" {
		req.Urgency = models.UrgencyNormal
	}
	req.Location = strings.TrimSpace(req.Location)

	var problems []string
	if req.RequesterChannelID == "" {
		problems = append(problems, "requesterChannelId is required")
	}
	if !knownServices[req.ServiceType] {
		problems = append(problems, fmt.Sprintf("unknown serviceType %q", req.ServiceType))
	}
	if strings.TrimSpace(req.Description) == "" {
		problems = append(problems, "description is required")
	}
	if req.Location == "" {
		problems = append(problems, "location is required")
	}
	if !req.Urgency.Valid() {
		problems = append(problems, fmt.Sprintf("unknown urgency %q", req.Urgency))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// IsConflict reports whether err is a lost assignment race or a closed request.
func IsConflict(err error) bool {
	return errors.Is(err, apperrors.ErrAssignmentConflict) || errors.Is(err, apperrors.ErrRequestClosed)
}
