package complexity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/metrics"
	"service-dispatch/internal/dispatch/messages"
	"service-dispatch/internal/models"
	"service-dispatch/internal/notify"
)

const (
	escalatedKeyPrefix   = "conversation:escalated:"
	DefaultAgentQueueKey = "conversation:agent_queue"
	defaultMarkerTTL     = 24 * time.Hour
)

// Handoff is the entry pushed on the agent queue.
type Handoff struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId,omitempty"`
	ChannelID      string     `json:"channelId,omitempty"`
	Trigger        string     `json:"trigger"`
	Assessment     Assessment `json:"assessment"`
	At             time.Time  `json:"at"`
}

// RouterOptions holds the optional collaborators of a Router.
type RouterOptions struct {
	QueueKey  string
	MarkerTTL time.Duration
	// Mailer and DeskEmail enable the agent desk alert.
	Mailer    notify.Mailer
	DeskEmail string
	// Gateway tells the user a human is taking over.
	Gateway notify.Gateway
}

// Router routes escalating conversations to the human agent queue at most once
// per conversation.
type Router struct {
	analyzer *Analyzer
	client   redis.Cmdable
	opts     RouterOptions
	now      func() time.Time
	logger   logger.Logger
}

func NewRouter(analyzer *Analyzer, client redis.Cmdable, opts RouterOptions, log logger.Logger) *Router {
	if opts.QueueKey == "" {
		opts.QueueKey = DefaultAgentQueueKey
	}
	if opts.MarkerTTL <= 0 {
		opts.MarkerTTL = defaultMarkerTTL
	}
	return &Router{
		analyzer: analyzer,
		client:   client,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.WithFields(map[string]interface{}{"component": "complexity_router"}),
	}
}

func escalatedKey(conversationID string) string {
	return escalatedKeyPrefix + conversationID
}

// Evaluate analyzes conv and, when it escalates and has not been routed yet,
// pushes it on the agent queue. routed is false for non-escalating conversations
// and for repeats.
func (r *Router) Evaluate(ctx context.Context, conv models.Conversation) (as Assessment, routed bool, err error) {
	if conv.ID == "" {
		return Assessment{}, false, fmt.Errorf("%w: conversation id is required", apperrors.ErrInvalidRequest)
	}

	as = r.analyzer.Analyze(conv)
	log := r.logger.WithFields(map[string]interface{}{
		"conversationId": conv.ID,
		"score":          as.Score,
	})
	if !as.Escalate {
		log.Debug("conversation below escalation threshold", nil)
		return as, false, nil
	}

	key := escalatedKey(conv.ID)
	first, err := r.client.SetNX(ctx, key, as.Trigger, r.opts.MarkerTTL).Result()
	if err != nil {
		return as, false, apperrors.NewAgentQueueFailedError(err)
	}
	if !first {
		log.Debug("conversation already with an agent", nil)
		return as, false, nil
	}

	handoff := Handoff{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		ChannelID:      conv.ChannelID,
		Trigger:        as.Trigger,
		Assessment:     as,
		At:             r.now(),
	}
	payload, err := json.Marshal(handoff)
	if err != nil {
		return as, false, err
	}
	if err := r.client.LPush(ctx, r.opts.QueueKey, payload).Err(); err != nil {
		// release the marker so a retry can route it
		r.client.Del(ctx, key)
		return as, false, apperrors.NewAgentQueueFailedError(err)
	}

	metrics.ConversationEscalations.WithLabelValues(as.Trigger).Inc()
	log.Info("conversation routed to human agent", map[string]interface{}{"trigger": as.Trigger})

	if r.opts.Gateway != nil && conv.ChannelID != "" {
		r.opts.Gateway.Send(ctx, conv.ChannelID, messages.Render(messages.ConversationHandoff, nil))
	}
	r.alertDesk(ctx, handoff, log)
	return as, true, nil
}

func (r *Router) alertDesk(ctx context.Context, h Handoff, log logger.Logger) {
	if r.opts.Mailer == nil || r.opts.DeskEmail == "" {
		return
	}
	subject := fmt.Sprintf("Conversation %s à reprendre (%s)", h.ConversationID, h.Trigger)
	body := fmt.Sprintf(
		"Conversation : %s\nUtilisateur : %s\nCanal : %s\nScore : %.2f (frustration %.2f, technique %.2f, échanges %.2f, urgence %.2f)\n",
		h.ConversationID, h.UserID, h.ChannelID, h.Assessment.Score,
		h.Assessment.Frustration, h.Assessment.Technical, h.Assessment.Turns, h.Assessment.Urgency,
	)
	if err := r.opts.Mailer.SendEmail(ctx, r.opts.DeskEmail, subject, body); err != nil {
		log.Warn("agent desk alert failed", map[string]interface{}{"error": err})
	}
}

// Release clears the routed marker once an agent hands the conversation back.
func (r *Router) Release(ctx context.Context, conversationID string) error {
	return r.client.Del(ctx, escalatedKey(conversationID)).Err()
}
