package completerequest

type Input struct {
	RequestID string   `json:"requestId"`
	FinalCost *float64 `json:"finalCost,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

type Output struct {
	RequestID  string
	Status     string
	ProviderID string
	FinalCost  *float64
}

func (o *Output) variables() map[string]interface{} {
	vars := map[string]interface{}{
		"requestId":      o.RequestID,
		"dispatchStatus": o.Status,
	}
	if o.ProviderID != "" {
		vars["providerId"] = o.ProviderID
	}
	if o.FinalCost != nil {
		vars["finalCost"] = *o.FinalCost
	}
	return vars
}
