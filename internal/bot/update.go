package bot

import "strconv"

// Update is the subset of a Telegram Bot API update the bot consumes.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User is the Telegram account that sent a message.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat identifies where a reply goes.
type Chat struct {
	ID int64 `json:"id"`
}

// SendMessage is returned as the webhook response body so Telegram delivers
// the reply without a separate API call.
type SendMessage struct {
	Method           string `json:"method"`
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

func newSendMessage(msg *Message, text string) *SendMessage {
	return &SendMessage{
		Method:           "sendMessage",
		ChatID:           msg.Chat.ID,
		Text:             text,
		ReplyToMessageID: msg.MessageID,
	}
}

func (u *User) secondaryID() string {
	return strconv.FormatInt(u.ID, 10)
}

func (u *User) handle() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}
