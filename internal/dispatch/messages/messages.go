// Package messages holds the outbound text sent to requesters and providers.
package messages

import (
	"fmt"
	"strings"

	"service-dispatch/internal/models"
)

type Kind string

const (
	ProviderOffer           Kind = "provider_offer"
	ProviderConfirmed       Kind = "provider_confirmed"
	ProviderAlreadyAssigned Kind = "provider_already_assigned"
	ProviderRequestClosed   Kind = "provider_request_closed"
	ProviderNoPending       Kind = "provider_no_pending"
	ProviderHelp            Kind = "provider_help"
	ProviderRejectAck       Kind = "provider_reject_ack"

	RequesterAssigned       Kind = "requester_assigned"
	RequesterNoProvider     Kind = "requester_no_provider"
	RequesterStillSearching Kind = "requester_still_searching"
	RequesterCancelled      Kind = "requester_cancelled"

	ConversationHandoff Kind = "conversation_handoff"
)

var catalog = map[Kind]string{
	ProviderOffer: "Nouvelle demande de {{service}} à {{location}} ({{urgency}}) : {{description}}. " +
		"Répondez OUI pour accepter ou NON pour refuser.",
	ProviderConfirmed: "C'est confirmé ! Intervention de {{service}} à {{location}}. " +
		"Détails : {{description}}. Contact client : {{requesterChannel}}.",
	ProviderAlreadyAssigned: "Merci pour votre réponse, mais cette demande a déjà été attribuée à un autre prestataire.",
	ProviderRequestClosed:   "Cette demande n'est plus disponible. Merci pour votre réactivité.",
	ProviderNoPending:       "Vous n'avez aucune demande en attente de réponse.",
	ProviderHelp:            "Réponse non comprise. Répondez OUI pour accepter ou NON pour refuser la demande.",
	ProviderRejectAck:       "Bien noté, merci. Nous vous proposerons d'autres demandes.",

	RequesterAssigned: "Bonne nouvelle ! {{providerName}} a accepté votre demande de {{service}}. " +
		"Vous pouvez le joindre au {{providerPhone}}.",
	RequesterNoProvider: "Désolé, aucun prestataire de {{service}} n'est disponible pour le moment à {{location}}. " +
		"Notre équipe vous recontacte rapidement.",
	RequesterStillSearching: "Nous recherchons toujours un prestataire pour votre demande de {{service}}. " +
		"Nous vous tenons informé.",
	RequesterCancelled: "Votre demande de {{service}} a bien été annulée.",

	ConversationHandoff: "Je vous mets en relation avec un conseiller qui va prendre le relais.",
}

var serviceLabels = map[models.ServiceType]string{
	models.ServicePlumbing:        "plomberie",
	models.ServiceElectrical:      "électricité",
	models.ServiceApplianceRepair: "réparation d'électroménager",
}

var urgencyLabels = map[models.Urgency]string{
	models.UrgencyUrgent:   "urgent",
	models.UrgencyNormal:   "normal",
	models.UrgencyFlexible: "flexible",
}

// Render fills the template for kind. Missing values render as empty text.
func Render(kind Kind, data map[string]interface{}) string {
	return renderTemplate(catalog[kind], data)
}

// RequestData is the placeholder set shared by request-related messages.
func RequestData(req models.ServiceRequest) map[string]interface{} {
	service, ok := serviceLabels[req.ServiceType]
	if !ok {
		service = string(req.ServiceType)
	}
	return map[string]interface{}{
		"service":          service,
		"location":         req.Location,
		"urgency":          urgencyLabels[req.Urgency],
		"description":      req.Description,
		"requesterChannel": req.RequesterChannelID,
		"requestId":        req.ID,
	}
}

// WithProvider adds provider contact placeholders to data.
func WithProvider(data map[string]interface{}, p models.Provider) map[string]interface{} {
	data["providerName"] = p.DisplayName
	data["providerPhone"] = p.Phone
	return data
}

func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}

	return result
}
