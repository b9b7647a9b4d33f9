// Package store defines the persistence contracts of the dispatch engine. Every
// request status change goes through UpdateStatus, a compare-and-set on the
// current status, so concurrent replies and timers cannot both win.
package store

import (
	"context"
	"time"

	"service-dispatch/internal/models"
)

// StatusUpdate describes a conditional transition. It applies only while the
// request's status is one of From.
type StatusUpdate struct {
	From []models.RequestStatus
	To   models.RequestStatus
	At   time.Time

	// Set with To == assigned. The update also requires no provider to be assigned yet.
	ProviderID string
	// Set with To == cancelled.
	CancelReason string
	// Set with To == completed.
	FinalCost *float64
}

// Allows reports whether the update applies to a request in status s.
func (u StatusUpdate) Allows(s models.RequestStatus) bool {
	for _, f := range u.From {
		if f == s {
			return true
		}
	}
	return false
}

type RequestStore interface {
	CreateRequest(ctx context.Context, req *models.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	// UpdateStatus returns false without error when the CAS lost.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (bool, error)

	SaveAttempt(ctx context.Context, attempt *models.DispatchAttempt) error
	// ResolveAttempt marks the request's unresolved attempt, if any, as resolved.
	ResolveAttempt(ctx context.Context, requestID string, outcome models.AttemptOutcome) (bool, error)
	ListAttempts(ctx context.Context, requestID string) ([]models.DispatchAttempt, error)
	// OpenAttempts lists unresolved attempts across requests, used to re-arm timers on start.
	OpenAttempts(ctx context.Context) ([]models.DispatchAttempt, error)

	SaveNotification(ctx context.Context, rec *models.NotificationRecord) error
	MarkDelivered(ctx context.Context, requestID, providerID string, delivered bool) error
	MarkResponded(ctx context.Context, requestID, providerID string, decision models.ReplyDecision, at time.Time) error
	// LatestOpenNotification returns the most recent record on the channel still
	// waiting for a decisive reply, or ErrNoPendingRequest.
	LatestOpenNotification(ctx context.Context, channelID string) (*models.NotificationRecord, error)
	ListNotifications(ctx context.Context, requestID string) ([]models.NotificationRecord, error)
}

type ProviderStore interface {
	SaveProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	GetProviderByChannel(ctx context.Context, channelID string) (*models.Provider, error)
	// ListEligible returns active, available providers offering the service. Zone
	// filtering is the directory's job.
	ListEligible(ctx context.Context, serviceType models.ServiceType) ([]models.Provider, error)
	SetAvailability(ctx context.Context, id string, available bool) error
	Deactivate(ctx context.Context, id string) error
	IncrementJobs(ctx context.Context, id string) error
	ApplyRating(ctx context.Context, id string, score float64) error
}

// LatencyStore keeps acceptance latency history per provider.
type LatencyStore interface {
	RecordAcceptance(ctx context.Context, providerID string, latency time.Duration) error
	// AverageLatencies omits providers without history.
	AverageLatencies(ctx context.Context, providerIDs []string) (map[string]time.Duration, error)
}
