package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errMalformedFrame = errors.New("malformed frame")

// Event is a decoded message frame. The direction is decided once, at
// decode time, against the current user id.
type Event interface {
	event()
}

// EchoEvent is the server's confirmation of a message this user sent.
type EchoEvent struct {
	ID        string
	To        int64
	Content   string
	CreatedAt time.Time
}

// InboundEvent is a message sent to this user by a peer.
type InboundEvent struct {
	ID        string
	From      int64
	To        int64
	Content   string
	CreatedAt time.Time
}

func (EchoEvent) event()    {}
func (InboundEvent) event() {}

type messageFrame struct {
	Type      string    `json:"type,omitempty"`
	ID        int64     `json:"id"`
	From      int64     `json:"from"`
	To        int64     `json:"to"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type sendFrame struct {
	To      int64  `json:"to"`
	Message string `json:"message"`
}

type controlFrame struct {
	Type string `json:"type"`
}

var pingFrame = controlFrame{Type: "ping"}

// decodeEvent parses a raw transport frame. Control frames (any frame
// carrying a type) decode to a nil Event and a nil error.
func decodeEvent(data []byte, selfID int64) (Event, error) {
	var frame messageFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if frame.Type != "" {
		return nil, nil
	}
	if frame.ID <= 0 || frame.From <= 0 || frame.To <= 0 {
		return nil, fmt.Errorf("%w: missing id, from or to", errMalformedFrame)
	}
	if strings.TrimSpace(frame.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", errMalformedFrame)
	}

	id := strconv.FormatInt(frame.ID, 10)
	if frame.From == selfID {
		return EchoEvent{
			ID:        id,
			To:        frame.To,
			Content:   frame.Message,
			CreatedAt: frame.CreatedAt,
		}, nil
	}
	if frame.To != selfID {
		return nil, fmt.Errorf("%w: frame addressed to %d", errMalformedFrame, frame.To)
	}
	return InboundEvent{
		ID:        id,
		From:      frame.From,
		To:        frame.To,
		Content:   frame.Message,
		CreatedAt: frame.CreatedAt,
	}, nil
}

func controlType(data []byte) string {
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ""
	}
	return frame.Type
}
