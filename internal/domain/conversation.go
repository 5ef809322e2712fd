package domain

import (
	"time"
)

// Channel scopes a conversation to the transport the user talks through.
type Channel string

const (
	// ChannelWeb is the primary channel, created eagerly at registration.
	ChannelWeb Channel = "web"
	// ChannelTelegram is the messaging bot channel.
	ChannelTelegram Channel = "telegram"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelTelegram:
		return true
	default:
		return false
	}
}

// Conversation is the single dialogue a user holds on one channel.
type Conversation struct {
	ID             int64
	UserID         int64
	Channel        Channel
	NativeThreadID string // channel-native thread id, e.g. a bot chat id
	CreatedAt      time.Time
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable turn in a conversation.
type Message struct {
	ID             int64     `json:"-"`
	ConversationID int64     `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"timestamp"`
}
