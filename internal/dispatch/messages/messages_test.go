package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"service-dispatch/internal/models"
)

func TestRender_RequestAndProvider(t *testing.T) {
	req := models.ServiceRequest{
		ID:          "req-1",
		ServiceType: models.ServicePlumbing,
		Location:    "Bonamoussadi",
		Urgency:     models.UrgencyUrgent,
		Description: "fuite sous l'évier",
	}

	offer := Render(ProviderOffer, RequestData(req))
	assert.Equal(t, "Nouvelle demande de plomberie à Bonamoussadi (urgent) : fuite sous l'évier. "+
		"Répondez OUI pour accepter ou NON pour refuser.", offer)

	assigned := Render(RequesterAssigned, WithProvider(RequestData(req), models.Provider{DisplayName: "Jean", Phone: "+237699000001"}))
	assert.Contains(t, assigned, "Jean a accepté")
	assert.Contains(t, assigned, "+237699000001")
}

func TestRender_MissingPlaceholdersAreDropped(t *testing.T) {
	out := Render(RequesterAssigned, map[string]interface{}{"service": "plomberie"})
	assert.NotContains(t, out, "{{")
	assert.Contains(t, out, "demande de plomberie")
}

func TestCatalog_EveryKindHasText(t *testing.T) {
	for kind, text := range catalog {
		assert.NotEmpty(t, text, string(kind))
	}
}
