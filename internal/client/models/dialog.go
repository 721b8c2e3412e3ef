package models

import "time"

// Presence values reported by user_status events.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// DialogEntry is a conversation summary between the current user and one
// counterpart. Entries are unique per UserID and kept sorted by
// LastMessageTime descending.
type DialogEntry struct {
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	Presence        string    `json:"status"`
	LastSeen        time.Time `json:"last_seen"`
}

// User is a cached counterpart record.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Presence string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}
