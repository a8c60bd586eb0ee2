package chatws

import (
	"encoding/json"
	"time"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

const (
	frameTypeMessage = "message"
	frameTypePing    = "ping"
	frameTypeError   = "error"
)

// MessageFrame is what both participants receive for a stored message.
// The sender treats its copy as the echo of its own send.
type MessageFrame struct {
	ID        int64     `json:"id"`
	From      int64     `json:"from"`
	To        int64     `json:"to"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type controlFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// inboundFrame is a client frame: {"to":..,"message":..} to send, or
// {"type":"ping"}.
type inboundFrame struct {
	Type    string `json:"type"`
	To      int64  `json:"to"`
	Message string `json:"message"`
}

func frameFromMessage(message *models.ChatMessage) MessageFrame {
	return MessageFrame{
		ID:        message.ID,
		From:      message.SenderID,
		To:        message.ReceiverID,
		Message:   message.Content,
		CreatedAt: message.CreatedAt.UTC(),
	}
}

func encodeFrame(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

func decodeInbound(payload []byte, frame *inboundFrame) error {
	return json.Unmarshal(payload, frame)
}
