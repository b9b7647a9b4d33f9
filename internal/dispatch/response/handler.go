// Package response turns inbound provider replies into coordinator decisions.
package response

import (
	"context"
	"errors"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/dispatch/messages"
	"service-dispatch/internal/models"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/store"
)

// Decider applies a classified reply to a request.
type Decider interface {
	Accept(ctx context.Context, requestID, providerID string) (*models.ServiceRequest, error)
	Reject(ctx context.Context, requestID, providerID string) error
}

// Outcome describes what a reply resolved to.
type Outcome struct {
	Decision   models.ReplyDecision `json:"decision"`
	RequestID  string               `json:"requestId,omitempty"`
	ProviderID string               `json:"providerId,omitempty"`
	Status     models.RequestStatus `json:"status,omitempty"`
	Pending    bool                 `json:"pending"`
}

type Handler struct {
	requests   store.RequestStore
	decider    Decider
	classifier Classifier
	gateway    notify.Gateway
	logger     logger.Logger
}

func NewHandler(requests store.RequestStore, decider Decider, classifier Classifier, gw notify.Gateway, log logger.Logger) *Handler {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Handler{
		requests:   requests,
		decider:    decider,
		classifier: classifier,
		gateway:    gw,
		logger:     log.WithFields(map[string]interface{}{"component": "response_handler"}),
	}
}

func (h *Handler) Classify(text string) models.ReplyDecision {
	return h.classifier.Classify(text)
}

// Resolve returns the notification on the channel still waiting for a decisive
// reply. Offers on requests still awaiting a response come first, newest first.
func (h *Handler) Resolve(ctx context.Context, channelID string) (*models.NotificationRecord, error) {
	return h.requests.LatestOpenNotification(ctx, channelID)
}

// OnReply classifies text, correlates it to the pending request and applies it.
// Lost races are reported in the returned error and the provider has already
// been told by the coordinator.
func (h *Handler) OnReply(ctx context.Context, channelID, text string) (*Outcome, error) {
	rec, err := h.Resolve(ctx, channelID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoPendingRequest) {
			h.gateway.Send(ctx, channelID, messages.Render(messages.ProviderNoPending, nil))
			h.logger.Info("reply without pending request", map[string]interface{}{"channelId": channelID})
			return &Outcome{Decision: h.classifier.Classify(text)}, nil
		}
		return nil, err
	}

	out := &Outcome{
		Decision:   h.classifier.Classify(text),
		RequestID:  rec.RequestID,
		ProviderID: rec.ProviderID,
		Pending:    true,
	}
	log := h.logger.WithFields(map[string]interface{}{
		"requestId":  rec.RequestID,
		"providerId": rec.ProviderID,
		"decision":   string(out.Decision),
	})

	switch out.Decision {
	case models.DecisionAccept:
		req, err := h.decider.Accept(ctx, rec.RequestID, rec.ProviderID)
		if err != nil {
			log.Info("accept not applied", map[string]interface{}{"error": err})
			return out, err
		}
		out.Status = req.Status
	case models.DecisionReject:
		if err := h.decider.Reject(ctx, rec.RequestID, rec.ProviderID); err != nil {
			return out, err
		}
	default:
		h.gateway.Send(ctx, channelID, messages.Render(messages.ProviderHelp, nil))
		log.Debug("reply not understood", map[string]interface{}{"text": text})
	}
	return out, nil
}
