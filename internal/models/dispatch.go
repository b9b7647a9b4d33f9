// internal/models/dispatch.go
package models

import "time"

// AttemptOutcome records how a dispatch attempt was resolved.
type AttemptOutcome string

const (
	OutcomeAssigned  AttemptOutcome = "assigned"
	OutcomeEscalated AttemptOutcome = "escalated"
	OutcomeCancelled AttemptOutcome = "cancelled"
)

// DispatchAttempt is one round of selection, ranking and notification for a request.
// At most one unresolved attempt exists per request.
type DispatchAttempt struct {
	ID                  string          `json:"id"`
	RequestID           string          `json:"requestId"`
	NotifiedProviderIDs []string        `json:"notifiedProviderIds"`
	Deadline            time.Time       `json:"deadline"`
	Resolved            bool            `json:"resolved"`
	Outcome             *AttemptOutcome `json:"outcome,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// MatchCandidate is a provider with its ranking breakdown for one dispatch attempt.
// It is never cached across requests.
type MatchCandidate struct {
	Provider       Provider `json:"provider"`
	Proximity      float64  `json:"proximity"`
	Rating         float64  `json:"rating"`
	ResponseTime   float64  `json:"responseTime"`
	Specialization float64  `json:"specialization"`
	Availability   float64  `json:"availability"`
	Total          float64  `json:"total"`
}

// RequestHistory is the read-only view exposed to operational tooling.
type RequestHistory struct {
	Request       ServiceRequest       `json:"request"`
	Attempts      []DispatchAttempt    `json:"attempts"`
	Notifications []NotificationRecord `json:"notifications"`
}

// EventType names a dispatch lifecycle event written to the history index.
type EventType string

const (
	EventRequestCreated    EventType = "request_created"
	EventProvidersNotified EventType = "providers_notified"
	EventNoProvider        EventType = "no_provider"
	EventAssigned          EventType = "assigned"
	EventAssignConflict    EventType = "assignment_conflict"
	EventRejected          EventType = "rejected"
	EventEscalated         EventType = "escalated"
	EventCancelled         EventType = "cancelled"
	EventRedispatched      EventType = "redispatched"
	EventCompleted         EventType = "completed"
)

type DispatchEvent struct {
	RequestID   string        `json:"requestId"`
	Type        EventType     `json:"type"`
	Status      RequestStatus `json:"status"`
	ServiceType ServiceType   `json:"serviceType,omitempty"`
	ProviderIDs []string      `json:"providerIds,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	At          time.Time     `json:"at"`
}
