package providerreply

import "service-dispatch/internal/dispatch/response"

type Input struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

// Output is the reply as seen by the process. Conflict is set when an accept lost
// the assignment race or arrived after the request closed.
type Output struct {
	Decision   string `json:"decision"`
	RequestID  string `json:"requestId,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	Status     string `json:"status,omitempty"`
	Pending    bool   `json:"pending"`
	Assigned   bool   `json:"assigned"`
	Conflict   bool   `json:"conflict"`
	ErrorCode  string `json:"errorCode,omitempty"`
}

func fromOutcome(o *response.Outcome) *Output {
	return &Output{
		Decision:   string(o.Decision),
		RequestID:  o.RequestID,
		ProviderID: o.ProviderID,
		Status:     string(o.Status),
		Pending:    o.Pending,
	}
}

func (o *Output) variables() map[string]interface{} {
	vars := map[string]interface{}{
		"replyDecision": o.Decision,
		"replyPending":  o.Pending,
		"replyAssigned": o.Assigned,
		"replyConflict": o.Conflict,
	}
	if o.RequestID != "" {
		vars["requestId"] = o.RequestID
	}
	if o.ProviderID != "" {
		vars["providerId"] = o.ProviderID
	}
	if o.Status != "" {
		vars["dispatchStatus"] = o.Status
	}
	if o.ErrorCode != "" {
		vars["replyErrorCode"] = o.ErrorCode
	}
	return vars
}
