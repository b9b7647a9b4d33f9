package cancelrequest

type Input struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason"`
}

type Output struct {
	RequestID    string `json:"requestId"`
	Status       string `json:"status"`
	CancelReason string `json:"cancelReason,omitempty"`
}

func (o *Output) variables() map[string]interface{} {
	return map[string]interface{}{
		"requestId":      o.RequestID,
		"dispatchStatus": o.Status,
		"cancelReason":   o.CancelReason,
	}
}
