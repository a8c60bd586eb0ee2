package chatclient

import (
	"strings"

	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/clock"
)

type frameSender interface {
	Send(receiverID int64, content string) bool
}

type readScheduler interface {
	scheduleRead(peerID int64)
}

// Reconciler merges optimistic sends, server echoes and peer messages
// into the Store without producing duplicates.
type Reconciler struct {
	store  *Store
	selfID int64
	sender frameSender
	reads  readScheduler
	clock  clock.Clock
	logger *zap.Logger

	lastTemp int64
}

func NewReconciler(
	store *Store,
	selfID int64,
	sender frameSender,
	reads readScheduler,
	clk clock.Clock,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:  store,
		selfID: selfID,
		sender: sender,
		reads:  reads,
		clock:  clk,
		logger: logger,
	}
}

// Apply reconciles one decoded event and reports whether the store changed.
func (r *Reconciler) Apply(ev Event) bool {
	switch ev := ev.(type) {
	case EchoEvent:
		return r.applyEcho(ev)
	case InboundEvent:
		return r.applyInbound(ev)
	default:
		return false
	}
}

func (r *Reconciler) applyEcho(ev EchoEvent) bool {
	conversation, ok := r.store.Lookup(ev.To)
	if !ok {
		r.logger.Debug("echo for unknown conversation", zap.Int64("peer_id", ev.To), zap.String("message_id", ev.ID))
		return false
	}
	if conversation.indexOf(ev.ID) >= 0 {
		return false
	}

	index := conversation.firstPending(ev.Content)
	if index < 0 {
		r.logger.Debug("echo without pending entry", zap.Int64("peer_id", ev.To), zap.String("message_id", ev.ID))
		return false
	}

	confirmed := conversation.Messages[index]
	confirmed.ID = ev.ID
	confirmed.Pending = false
	if !ev.CreatedAt.IsZero() {
		confirmed.CreatedAt = ev.CreatedAt
	}
	return r.store.Replace(ev.To, index, confirmed)
}

func (r *Reconciler) applyInbound(ev InboundEvent) bool {
	conversation := r.store.GetOrCreate(ev.From)
	if conversation.indexOf(ev.ID) >= 0 {
		return false
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clock.Now().UTC()
	}

	active := r.store.IsActive(ev.From)
	r.store.Append(ev.From, Message{
		ID:         ev.ID,
		SenderID:   ev.From,
		ReceiverID: ev.To,
		Content:    ev.Content,
		CreatedAt:  createdAt,
		IsRead:     active,
	})

	if active {
		r.reads.scheduleRead(ev.From)
	} else {
		r.store.IncrementUnread(ev.From)
	}
	return true
}

// SendOptimistic appends a pending entry before handing the message to the
// transport, so it is visible whether or not the send goes out.
func (r *Reconciler) SendOptimistic(receiverID int64, content string) (Message, bool) {
	// The wire form is JSON, which carries invalid UTF-8 as U+FFFD. Store the
	// same text the echo will carry.
	trimmed := strings.ToValidUTF8(strings.TrimSpace(content), "\uFFFD")
	if trimmed == "" || receiverID <= 0 {
		return Message{}, false
	}

	now := r.clock.Now().UTC()
	stamp := now.UnixMilli()
	if stamp <= r.lastTemp {
		stamp = r.lastTemp + 1
	}
	r.lastTemp = stamp

	msg := Message{
		ID:         tempID(stamp),
		SenderID:   r.selfID,
		ReceiverID: receiverID,
		Content:    trimmed,
		CreatedAt:  now,
		IsRead:     false,
		Pending:    true,
	}
	r.store.Append(receiverID, msg)

	if !r.sender.Send(receiverID, trimmed) {
		r.logger.Debug("message kept pending, transport not open", zap.Int64("peer_id", receiverID), zap.String("temp_id", msg.ID))
	}
	return msg, true
}
