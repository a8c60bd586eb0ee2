package models

import "time"

// Conversation is the stored pair of two users. UserLowID is always the
// smaller id so a pair maps to exactly one row.
type Conversation struct {
	ID         int64     `json:"id"`
	UserLowID  int64     `json:"user_low_id"`
	UserHighID int64     `json:"user_high_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PeerOf returns the other participant of the conversation.
func (c Conversation) PeerOf(userID int64) int64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// OrderedPair returns a and b with the smaller id first.
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationSummary struct {
	ConversationID int64        `json:"conversation_id"`
	PeerID         int64        `json:"peer_id"`
	LastMessage    *ChatMessage `json:"last_message,omitempty"`
	UnreadCount    int          `json:"unread_count"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
