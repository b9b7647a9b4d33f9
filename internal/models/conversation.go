// internal/models/conversation.go
package models

import "time"

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationMessage struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Conversation is the chat state the complexity analyzer reads. It is unrelated to
// request dispatch state.
type Conversation struct {
	ID        string                `json:"id"`
	UserID    string                `json:"userId"`
	ChannelID string                `json:"channelId"`
	Messages  []ConversationMessage `json:"messages"`
}

// UserTurns counts the messages sent by the user.
func (c Conversation) UserTurns() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
