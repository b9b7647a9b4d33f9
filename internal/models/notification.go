// internal/models/notification.go
package models

import "time"

// ReplyDecision is the classified meaning of a provider's free-text reply.
type ReplyDecision string

const (
	DecisionAccept  ReplyDecision = "accept"
	DecisionReject  ReplyDecision = "reject"
	DecisionUnknown ReplyDecision = "unknown"
)

// NotificationRecord correlates a fan-out message with the request it was about.
// It is persisted before the message is sent.
type NotificationRecord struct {
	RequestID   string         `json:"requestId"`
	ProviderID  string         `json:"providerId"`
	ChannelID   string         `json:"channelId"`
	SentAt      time.Time      `json:"sentAt"`
	Delivered   bool           `json:"delivered"`
	RespondedAt *time.Time     `json:"respondedAt,omitempty"`
	Response    *ReplyDecision `json:"response,omitempty"`
}

// Open reports whether the provider has not yet given a decisive reply.
func (n NotificationRecord) Open() bool {
	return n.RespondedAt == nil
}
