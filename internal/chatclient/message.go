package chatclient

import (
	"strconv"
	"time"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Message is one entry of a conversation. ID holds the server id once the
// message is confirmed and a temp_<timestamp> placeholder while Pending.
type Message struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
	Pending    bool      `json:"pending"`
}

const tempIDPrefix = "temp_"

// seedClockSkew bounds how far the server clock may lag the local one when
// history is matched against pending sends.
const seedClockSkew = time.Minute

func tempID(ts int64) string {
	return tempIDPrefix + strconv.FormatInt(ts, 10)
}

func messageFromRecord(record models.ChatMessage) Message {
	return Message{
		ID:         strconv.FormatInt(record.ID, 10),
		SenderID:   record.SenderID,
		ReceiverID: record.ReceiverID,
		Content:    record.Content,
		CreatedAt:  record.CreatedAt,
		IsRead:     record.IsRead,
	}
}

// Conversation is the local state kept for one peer.
type Conversation struct {
	PeerID      int64
	Messages    []Message
	UnreadCount int
	Loaded      bool
	Loading     bool
}

func (c *Conversation) indexOf(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// storedCopyOf returns the first pending entry, not in taken, that record
// confirms: same content and sender, stored no earlier than the entry was
// created minus seedClockSkew. Zero sender or timestamps are not compared.
func (c *Conversation) storedCopyOf(record Message, taken map[int]struct{}) int {
	for i := range c.Messages {
		entry := c.Messages[i]
		if _, used := taken[i]; used || !entry.Pending || entry.Content != record.Content {
			continue
		}
		if record.SenderID != 0 && record.SenderID != entry.SenderID {
			continue
		}
		if !record.CreatedAt.IsZero() && !entry.CreatedAt.IsZero() &&
			record.CreatedAt.Before(entry.CreatedAt.Add(-seedClockSkew)) {
			continue
		}
		return i
	}
	return -1
}

func (c *Conversation) firstPending(content string) int {
	for i := range c.Messages {
		if c.Messages[i].Pending && c.Messages[i].Content == content {
			return i
		}
	}
	return -1
}

type ConversationSummary struct {
	PeerID      int64    `json:"peer_id"`
	UnreadCount int      `json:"unread_count"`
	Active      bool     `json:"active"`
	LastMessage *Message `json:"last_message,omitempty"`
}

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return "unknown"
	}
}
