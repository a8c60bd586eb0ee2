package chatclient

// Store holds every conversation of the session. It is confined to the
// client's event loop and is not safe for concurrent use.
type Store struct {
	conversations map[int64]*Conversation
	// order lists peer ids, most recent activity first.
	order      []int64
	activePeer int64
}

func NewStore() *Store {
	return &Store{conversations: make(map[int64]*Conversation)}
}

func (s *Store) GetOrCreate(peerID int64) *Conversation {
	if conversation, ok := s.conversations[peerID]; ok {
		return conversation
	}
	conversation := &Conversation{PeerID: peerID, Messages: []Message{}}
	s.conversations[peerID] = conversation
	s.order = append(s.order, peerID)
	return conversation
}

func (s *Store) Lookup(peerID int64) (*Conversation, bool) {
	conversation, ok := s.conversations[peerID]
	return conversation, ok
}

func (s *Store) Active() (int64, bool) {
	return s.activePeer, s.activePeer != 0
}

func (s *Store) IsActive(peerID int64) bool {
	return s.activePeer != 0 && s.activePeer == peerID
}

// SetActive marks peerID as the displayed conversation and clears its
// unread counter. It returns the unread count that was cleared and whether
// the conversation history still has to be loaded.
func (s *Store) SetActive(peerID int64) (cleared int, needsHistory bool) {
	conversation := s.GetOrCreate(peerID)
	s.activePeer = peerID
	cleared = conversation.UnreadCount
	conversation.UnreadCount = 0
	return cleared, !conversation.Loaded && !conversation.Loading
}

// ClearActive leaves no conversation displayed.
func (s *Store) ClearActive() {
	s.activePeer = 0
}

// Append adds msg at the end of the peer's sequence and moves the
// conversation to the front of the list. Read state is the caller's job.
func (s *Store) Append(peerID int64, msg Message) {
	conversation := s.GetOrCreate(peerID)
	conversation.Messages = append(conversation.Messages, msg)
	s.moveToFront(peerID)
}

// Replace overwrites the entry at index without changing its position.
func (s *Store) Replace(peerID int64, index int, msg Message) bool {
	conversation, ok := s.conversations[peerID]
	if !ok || index < 0 || index >= len(conversation.Messages) {
		return false
	}
	conversation.Messages[index] = msg
	return true
}

func (s *Store) IncrementUnread(peerID int64) {
	s.GetOrCreate(peerID).UnreadCount++
}

// MarkRead clears the unread counter and returns its previous value.
func (s *Store) MarkRead(peerID int64) int {
	conversation, ok := s.conversations[peerID]
	if !ok {
		return 0
	}
	cleared := conversation.UnreadCount
	conversation.UnreadCount = 0
	return cleared
}

// Seed replaces the peer's sequence with history. Entries already present
// whose id is not part of history (live messages that raced the fetch,
// pending sends) are kept after it in their arrival order, except pending
// sends that history already holds as stored: each stored record confirms
// the first matching pending entry, which is then dropped.
func (s *Store) Seed(peerID int64, history []Message) {
	conversation := s.GetOrCreate(peerID)

	seeded := make([]Message, 0, len(history)+len(conversation.Messages))
	seen := make(map[string]struct{}, len(history))
	confirmed := make(map[int]struct{})
	for _, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		seeded = append(seeded, msg)
		if index := conversation.storedCopyOf(msg, confirmed); index >= 0 {
			confirmed[index] = struct{}{}
		}
	}
	for i, msg := range conversation.Messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		if _, ok := confirmed[i]; ok {
			continue
		}
		seeded = append(seeded, msg)
	}

	conversation.Messages = seeded
	conversation.Loaded = true
	conversation.Loading = false
}

func (s *Store) Messages(peerID int64) []Message {
	conversation, ok := s.conversations[peerID]
	if !ok {
		return []Message{}
	}
	out := make([]Message, len(conversation.Messages))
	copy(out, conversation.Messages)
	return out
}

// Summaries returns the sidebar view, most recent conversation first.
func (s *Store) Summaries() []ConversationSummary {
	summaries := make([]ConversationSummary, 0, len(s.order))
	for _, peerID := range s.order {
		conversation := s.conversations[peerID]
		summary := ConversationSummary{
			PeerID:      peerID,
			UnreadCount: conversation.UnreadCount,
			Active:      s.IsActive(peerID),
		}
		if n := len(conversation.Messages); n > 0 {
			last := conversation.Messages[n-1]
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func (s *Store) moveToFront(peerID int64) {
	index := -1
	for i, id := range s.order {
		if id == peerID {
			index = i
			break
		}
	}
	if index == 0 {
		return
	}
	if index > 0 {
		copy(s.order[1:index+1], s.order[:index])
		s.order[0] = peerID
		return
	}
	s.order = append([]int64{peerID}, s.order...)
}
