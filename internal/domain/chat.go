package domain

import "time"

// MessageKind - kind of chat message.
type MessageKind string

const (
	MessageText MessageKind = "TEXT"
	MessagePoll MessageKind = "POLL"
)

// ChatMessage - structure for storing a single message of a session's chat feed.
// Messages are append-only, ID grows monotonically inside a session.
type ChatMessage struct {
	ID        int64
	SessionID string
	SenderID  string
	SentAt    time.Time
	Content   string
	Kind      MessageKind
	// PollID - set only for messages of kind MessagePoll.
	PollID string
}

func NewTextMessage(sessionID, senderID, content string, sentAt time.Time) *ChatMessage {
	return &ChatMessage{
		SessionID: sessionID,
		SenderID:  senderID,
		SentAt:    sentAt,
		Content:   content,
		Kind:      MessageText,
	}
}

func NewPollMessage(sessionID, senderID, pollID, question string, sentAt time.Time) *ChatMessage {
	return &ChatMessage{
		SessionID: sessionID,
		SenderID:  senderID,
		SentAt:    sentAt,
		Content:   question,
		Kind:      MessagePoll,
		PollID:    pollID,
	}
}
