package redispatchrequest

import (
	"time"

	"service-dispatch/internal/dispatch/coordinator"
)

type Input struct {
	RequestID string `json:"requestId"`
}

type Output struct {
	RequestID           string
	Status              string
	AttemptID           string
	NotifiedProviderIDs []string
	Deadline            *time.Time
}

func fromResult(res *coordinator.Result) *Output {
	notified := res.Notified
	if notified == nil {
		notified = []string{}
	}
	return &Output{
		RequestID:           res.RequestID,
		Status:              string(res.Status),
		AttemptID:           res.AttemptID,
		NotifiedProviderIDs: notified,
		Deadline:            res.Deadline,
	}
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
