package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/khanhquoc4114/app-sub000/internal/chatclient"
)

type chatView interface {
	Self() chatclient.User
	Updates() <-chan struct{}
	Status() chatclient.Status
	SendMessage(peerID int64, text string) (chatclient.Message, error)
	SelectConversation(peerID int64) error
	MarkRead(peerID int64) error
	Conversations() []chatclient.ConversationSummary
	ActiveMessages() []chatclient.Message
}

// session renders a chatView to a terminal and turns input lines into
// client calls.
type session struct {
	client chatView
	in     io.Reader
	out    io.Writer

	active int64
	shown  int
	status chatclient.Status
	unread map[int64]int
}

func newSession(client chatView, in io.Reader, out io.Writer) *session {
	return &session{
		client: client,
		in:     in,
		out:    out,
		status: chatclient.StatusDisconnected,
		unread: make(map[int64]int),
	}
}

func (s *session) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintf(s.out, "signed in as %s (id %d). /help for commands\n", s.client.Self().Name, s.client.Self().ID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case <-s.client.Updates():
			s.render()
		case line := <-lines:
			if quit := s.handleLine(line); quit {
				return nil
			}
		}
	}
}

func (s *session) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.send(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, "/open <user id>  switch conversation")
		fmt.Fprintln(s.out, "/list            conversations with unread counts")
		fmt.Fprintln(s.out, "/read            mark the open conversation read")
		fmt.Fprintln(s.out, "/status          connection state")
		fmt.Fprintln(s.out, "/quit            leave")
	case "/open":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: /open <user id>")
			return false
		}
		peerID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintf(s.out, "invalid user id %q\n", fields[1])
			return false
		}
		s.open(peerID)
	case "/list":
		s.list()
	case "/read":
		if s.active == 0 {
			fmt.Fprintln(s.out, "no conversation open")
			return false
		}
		if err := s.client.MarkRead(s.active); err != nil {
			fmt.Fprintf(s.out, "mark read failed: %v\n", err)
		}
	case "/status":
		fmt.Fprintf(s.out, "connection %s\n", s.client.Status())
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", fields[0])
	}
	return false
}

func (s *session) open(peerID int64) {
	if err := s.client.SelectConversation(peerID); err != nil {
		fmt.Fprintf(s.out, "cannot open %d: %v\n", peerID, err)
		return
	}
	s.active = peerID
	s.shown = 0
	delete(s.unread, peerID)
	fmt.Fprintf(s.out, "-- conversation with %d --\n", peerID)
	s.render()
}

func (s *session) send(text string) {
	if s.active == 0 {
		fmt.Fprintln(s.out, "open a conversation first: /open <user id>")
		return
	}
	if _, err := s.client.SendMessage(s.active, text); err != nil {
		if errors.Is(err, chatclient.ErrEmptyMessage) {
			return
		}
		fmt.Fprintf(s.out, "send failed: %v\n", err)
	}
}

func (s *session) list() {
	summaries := s.client.Conversations()
	if len(summaries) == 0 {
		fmt.Fprintln(s.out, "no conversations yet")
		return
	}
	for _, summary := range summaries {
		marker := " "
		if summary.Active {
			marker = "*"
		}
		last := ""
		if summary.LastMessage != nil {
			last = summary.LastMessage.Content
		}
		fmt.Fprintf(s.out, "%s %d  unread=%d  %s\n", marker, summary.PeerID, summary.UnreadCount, last)
	}
}

// render prints what changed since the previous call: connection state,
// new entries in the open conversation and unread counters elsewhere.
// Entries are printed once; an echo confirming a pending entry replaces
// it in place and is not printed again.
func (s *session) render() {
	if status := s.client.Status(); status != s.status {
		s.status = status
		fmt.Fprintf(s.out, "[%s]\n", status)
	}

	if s.active != 0 {
		messages := s.client.ActiveMessages()
		if len(messages) < s.shown {
			s.shown = 0
		}
		for _, msg := range messages[s.shown:] {
			fmt.Fprintln(s.out, s.formatMessage(msg))
		}
		s.shown = len(messages)
	}

	for _, summary := range s.client.Conversations() {
		if summary.Active {
			continue
		}
		if summary.UnreadCount > s.unread[summary.PeerID] {
			fmt.Fprintf(s.out, "(%d unread from %d)\n", summary.UnreadCount, summary.PeerID)
		}
		s.unread[summary.PeerID] = summary.UnreadCount
	}
}

func (s *session) formatMessage(msg chatclient.Message) string {
	who := strconv.FormatInt(msg.SenderID, 10)
	if msg.SenderID == s.client.Self().ID {
		who = "me"
	}
	line := fmt.Sprintf("%s %s: %s", msg.CreatedAt.Local().Format("15:04"), who, msg.Content)
	if msg.Pending {
		line += " (sending)"
	}
	return line
}
