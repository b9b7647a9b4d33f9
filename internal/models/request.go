// internal/models/request.go
package models

import "time"

// Urgency as captured by the conversational front-end.
type Urgency string

const (
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
	UrgencyFlexible Urgency = "flexible"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyUrgent, UrgencyNormal, UrgencyFlexible:
		return true
	}
	return false
}

// RequestStatus is the dispatch lifecycle state of a ServiceRequest.
type RequestStatus string

const (
	StatusPending          RequestStatus = "pending"
	StatusNotifying        RequestStatus = "notifying"
	StatusAwaitingResponse RequestStatus = "awaiting_response"
	StatusAssigned         RequestStatus = "assigned"
	StatusEscalated        RequestStatus = "escalated"
	StatusCancelled        RequestStatus = "cancelled"
	StatusCompleted        RequestStatus = "completed"
)

// OpenStatuses are the states from which a request may still be cancelled.
var OpenStatuses = []RequestStatus{
	StatusPending,
	StatusNotifying,
	StatusAwaitingResponse,
	StatusEscalated,
}

// HasAssignment reports whether the status carries an assigned provider.
func (s RequestStatus) HasAssignment() bool {
	return s == StatusAssigned || s == StatusCompleted
}

// IsOpen reports whether the request can still be cancelled or re-dispatched.
func (s RequestStatus) IsOpen() bool {
	for _, o := range OpenStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// ServiceRequest is a normalized home-service request.
// AssignedProviderID is set iff Status is assigned or completed, and never changes once set.
type ServiceRequest struct {
	ID                 string        `json:"id"`
	RequesterID        string        `json:"requesterId"`
	RequesterChannelID string        `json:"requesterChannelId"`
	ServiceType        ServiceType   `json:"serviceType"`
	Description        string        `json:"description"`
	Location           string        `json:"location"`
	Urgency            Urgency       `json:"urgency"`
	Status             RequestStatus `json:"status"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	AcceptedAt         *time.Time    `json:"acceptedAt,omitempty"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
	AssignedProviderID *string       `json:"assignedProviderId,omitempty"`
	EstimatedCost      *float64      `json:"estimatedCost,omitempty"`
	FinalCost          *float64      `json:"finalCost,omitempty"`
	CancelReason       string        `json:"cancelReason,omitempty"`
}
