package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/khanhquoc4114/app-sub000/internal/chatclient"
)

type fakeView struct {
	self     chatclient.User
	updates  chan struct{}
	status   chatclient.Status
	messages map[int64][]chatclient.Message
	unread   map[int64]int
	active   int64
	sent     []string
	reads    []int64
}

func newFakeView() *fakeView {
	return &fakeView{
		self:     chatclient.User{ID: 1, Name: "alice"},
		updates:  make(chan struct{}, 1),
		status:   chatclient.StatusOpen,
		messages: make(map[int64][]chatclient.Message),
		unread:   make(map[int64]int),
	}
}

func (f *fakeView) Self() chatclient.User { return f.self }
func (f *fakeView) Updates() <-chan struct{} { return f.updates }
func (f *fakeView) Status() chatclient.Status { return f.status }

func (f *fakeView) MarkRead(peerID int64) error {
	f.reads = append(f.reads, peerID)
	return nil
}

func (f *fakeView) ActiveMessages() []chatclient.Message {
	if f.active == 0 {
		return nil
	}
	return f.messages[f.active]
}

func (f *fakeView) SendMessage(peerID int64, text string) (chatclient.Message, error) {
	f.sent = append(f.sent, text)
	msg := chatclient.Message{ID: "temp_1", SenderID: f.self.ID, ReceiverID: peerID, Content: text, Pending: true, CreatedAt: time.Now()}
	f.messages[peerID] = append(f.messages[peerID], msg)
	return msg, nil
}

func (f *fakeView) SelectConversation(peerID int64) error {
	if peerID == f.self.ID {
		return chatclient.ErrInvalidPeer
	}
	f.active = peerID
	f.unread[peerID] = 0
	return nil
}

func (f *fakeView) Conversations() []chatclient.ConversationSummary {
	var out []chatclient.ConversationSummary
	for peerID, count := range f.unread {
		out = append(out, chatclient.ConversationSummary{PeerID: peerID, UnreadCount: count, Active: peerID == f.active})
	}
	return out
}

func TestSessionOpenSendAndRender(t *testing.T) {
	view := newFakeView()
	view.messages[2] = []chatclient.Message{
		{ID: "5", SenderID: 2, ReceiverID: 1, Content: "court 2 at six?", CreatedAt: time.Now()},
	}
	var out bytes.Buffer
	s := newSession(view, strings.NewReader(""), &out)

	s.handleLine("/open 2")
	s.handleLine("  sounds good  ")
	s.render()

	if len(view.sent) != 1 || view.sent[0] != "sounds good" {
		t.Fatalf("unexpected sends: %v", view.sent)
	}
	got := out.String()
	if !strings.Contains(got, "2: court 2 at six?") {
		t.Fatalf("history not rendered:\n%s", got)
	}
	if !strings.Contains(got, "me: sounds good (sending)") {
		t.Fatalf("pending send not rendered:\n%s", got)
	}

	// A confirmed echo replaces the entry in place and is not reprinted.
	view.messages[2][1].Pending = false
	view.messages[2][1].ID = "6"
	before := out.Len()
	s.render()
	if out.Len() != before {
		t.Fatalf("expected no output for in-place confirmation, got %q", out.String()[before:])
	}
}

func TestSessionReportsUnreadElsewhere(t *testing.T) {
	view := newFakeView()
	var out bytes.Buffer
	s := newSession(view, strings.NewReader(""), &out)
	s.handleLine("/open 2")

	view.unread[3] = 2
	s.render()
	if !strings.Contains(out.String(), "(2 unread from 3)") {
		t.Fatalf("unread notice missing:\n%s", out.String())
	}

	before := out.Len()
	s.render()
	if out.Len() != before {
		t.Fatalf("unread notice repeated: %q", out.String()[before:])
	}
}

func TestSessionCommands(t *testing.T) {
	view := newFakeView()
	var out bytes.Buffer
	s := newSession(view, strings.NewReader(""), &out)

	s.handleLine("hello")
	if len(view.sent) != 0 || !strings.Contains(out.String(), "open a conversation first") {
		t.Fatalf("send without conversation should be refused:\n%s", out.String())
	}

	s.handleLine("/open 1")
	if !strings.Contains(out.String(), "cannot open 1") {
		t.Fatalf("expected self-open error:\n%s", out.String())
	}

	s.handleLine("/open 2")
	s.handleLine("/read")
	if len(view.reads) != 1 || view.reads[0] != 2 {
		t.Fatalf("expected read for 2, got %v", view.reads)
	}

	s.handleLine("/status")
	if !strings.Contains(out.String(), "connection open") {
		t.Fatalf("status missing:\n%s", out.String())
	}
	if !s.handleLine("/quit") {
		t.Fatalf("expected /quit to end the session")
	}
}

func TestSessionRunStopsAtEndOfInput(t *testing.T) {
	view := newFakeView()
	var out bytes.Buffer
	s := newSession(view, strings.NewReader("/open 2\nhi there\n"), &out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(view.sent) != 1 || view.sent[0] != "hi there" {
		t.Fatalf("unexpected sends: %v", view.sent)
	}
}
