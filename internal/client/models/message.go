package models

import "time"

// MessageType classifies message payloads.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeImage      MessageType = "image"
	MessageTypeVideo      MessageType = "video"
	MessageTypeVoice      MessageType = "voice"
	MessageTypeFile       MessageType = "file"
	MessageTypeMediaGroup MessageType = "media_group"
)

// Message is one message within a conversation. ID is server-assigned and
// globally unique; it is the deduplication key, so reconciliation stays
// idempotent under at-least-once delivery. Optimistically inserted messages
// carry a client-generated id and Pending=true until the server-confirmed
// copy arrives.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageType `json:"message_type"`
	Content    string      `json:"content"`
	IsRead     bool        `json:"is_read"`

	Pending bool `json:"-"`
}
