package dispatchrequest

import (
	"time"

	"service-dispatch/internal/models"
)

// Input mirrors the dispatch-request activity schema.
type Input struct {
	RequestID          string   `json:"requestId"`
	RequesterID        string   `json:"requesterId"`
	RequesterChannelID string   `json:"requesterChannelId"`
	ServiceType        string   `json:"serviceType"`
	Description        string   `json:"description"`
	Location           string   `json:"location"`
	Urgency            string   `json:"urgency"`
	EstimatedCost      *float64 `json:"estimatedCost,omitempty"`
}

func (in *Input) toRequest() *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:                 in.RequestID,
		RequesterID:        in.RequesterID,
		RequesterChannelID: in.RequesterChannelID,
		ServiceType:        models.ServiceType(in.ServiceType),
		Description:        in.Description,
		Location:           in.Location,
		Urgency:            models.Urgency(in.Urgency),
		EstimatedCost:      in.EstimatedCost,
	}
}

type Output struct {
	RequestID           string     `json:"requestId"`
	Status              string     `json:"status"`
	AttemptID           string     `json:"attemptId,omitempty"`
	NotifiedProviderIDs []string   `json:"notifiedProviderIds"`
	Deadline            *time.Time `json:"deadline,omitempty"`
}

func (o *Output) variables() map[string]interface{} {
	vars := map[string]interface{}{
		"requestId":           o.RequestID,
		"dispatchStatus":      o.Status,
		"notifiedProviderIds": o.NotifiedProviderIDs,
		"noProvider":          false,
	}
	if o.AttemptID != "" {
		vars["attemptId"] = o.AttemptID
	}
	if o.Deadline != nil {
		vars["acceptanceDeadline"] = o.Deadline.Format(time.RFC3339)
	}
	return vars
}
