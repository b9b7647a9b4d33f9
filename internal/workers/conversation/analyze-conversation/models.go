package analyzeconversation

import (
	"service-dispatch/internal/conversation/complexity"
	"service-dispatch/internal/models"
)

type Input struct {
	Conversation models.Conversation `json:"conversation"`
}

type Output struct {
	Assessment complexity.Assessment
	Routed     bool
}

func (o *Output) variables() map[string]interface{} {
	a := o.Assessment
	vars := map[string]interface{}{
		"complexityScore": a.Score,
		"escalate":        a.Escalate,
		"humanRequested":  a.HumanRequested,
		"routedToAgent":   o.Routed,
		"complexityBreakdown": map[string]interface{}{
			"frustration": a.Frustration,
			"technical":   a.Technical,
			"turns":       a.Turns,
			"urgency":     a.Urgency,
		},
	}
	if a.Trigger != "" {
		vars["escalationTrigger"] = a.Trigger
	}
	return vars
}
