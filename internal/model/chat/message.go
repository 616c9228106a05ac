package chat

import "time"

// MessageType distinguishes the two sides of a conversation.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// AssistantAuthorID is the author recorded on every assistant message.
const AssistantAuthorID = "ai"

// Message is a single entry in a session log. Messages are never edited.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"userId"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Valid reports whether the message type is known.
func (t MessageType) Valid() bool {
	return t == MessageUser || t == MessageAssistant
}
