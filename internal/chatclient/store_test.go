package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func storeMessage(id string, from, to int64, text string) Message {
	return Message{ID: id, SenderID: from, ReceiverID: to, Content: text, CreatedAt: testEpoch}
}

func TestStoreGetOrCreateStartsEmpty(t *testing.T) {
	store := NewStore()

	conversation := store.GetOrCreate(bobID)
	require.Equal(t, bobID, conversation.PeerID)
	require.Empty(t, conversation.Messages)
	require.Zero(t, conversation.UnreadCount)
	require.Same(t, conversation, store.GetOrCreate(bobID))
	require.Equal(t, []Message{}, store.Messages(carlID))
}

func TestStoreAppendMovesConversationToFront(t *testing.T) {
	store := NewStore()
	store.Append(bobID, storeMessage("1", bobID, selfID, "hi"))
	store.Append(carlID, storeMessage("2", carlID, selfID, "hey"))

	summaries := store.Summaries()
	require.Len(t, summaries, 2)
	require.Equal(t, carlID, summaries[0].PeerID)
	require.Equal(t, bobID, summaries[1].PeerID)

	store.Append(bobID, storeMessage("3", bobID, selfID, "again"))
	summaries = store.Summaries()
	require.Equal(t, bobID, summaries[0].PeerID)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "again", summaries[0].LastMessage.Content)
}

func TestStoreSetActiveResetsUnread(t *testing.T) {
	store := NewStore()
	store.Append(bobID, storeMessage("1", bobID, selfID, "one"))
	store.IncrementUnread(bobID)
	store.IncrementUnread(bobID)

	cleared, needsHistory := store.SetActive(bobID)
	require.Equal(t, 2, cleared)
	require.True(t, needsHistory)
	require.Zero(t, store.GetOrCreate(bobID).UnreadCount)

	active, ok := store.Active()
	require.True(t, ok)
	require.Equal(t, bobID, active)
	require.True(t, store.Summaries()[0].Active)

	store.GetOrCreate(bobID).Loading = true
	_, needsHistory = store.SetActive(bobID)
	require.False(t, needsHistory)

	store.ClearActive()
	_, ok = store.Active()
	require.False(t, ok)
}

func TestStoreMarkRead(t *testing.T) {
	store := NewStore()
	require.Zero(t, store.MarkRead(bobID))

	store.IncrementUnread(bobID)
	require.Equal(t, 1, store.MarkRead(bobID))
	require.Zero(t, store.GetOrCreate(bobID).UnreadCount)
}

func TestStoreSeedReplacesHistoryKeepingLiveEntries(t *testing.T) {
	store := NewStore()
	pending := Message{ID: "temp_1", SenderID: selfID, ReceiverID: bobID, Content: "queued", Pending: true}
	store.Append(bobID, storeMessage("7", bobID, selfID, "raced the fetch"))
	store.Append(bobID, pending)
	store.GetOrCreate(bobID).Loading = true

	store.Seed(bobID, []Message{
		storeMessage("5", bobID, selfID, "old"),
		storeMessage("6", selfID, bobID, "older reply"),
		storeMessage("6", selfID, bobID, "older reply"),
		storeMessage("7", bobID, selfID, "raced the fetch"),
	})

	ids := make([]string, 0)
	for _, msg := range store.Messages(bobID) {
		ids = append(ids, msg.ID)
	}
	require.Equal(t, []string{"5", "6", "7", "temp_1"}, ids)

	conversation := store.GetOrCreate(bobID)
	require.True(t, conversation.Loaded)
	require.False(t, conversation.Loading)
}

func TestStoreSeedDropsPendingSendsHistoryAlreadyHolds(t *testing.T) {
	store := NewStore()
	sentAt := testEpoch.Add(time.Hour)
	pending := func(id, text string) Message {
		return Message{ID: id, SenderID: selfID, ReceiverID: bobID, Content: text, CreatedAt: sentAt, Pending: true}
	}
	store.Append(bobID, pending("temp_1", "ok"))
	store.Append(bobID, pending("temp_2", "ok"))
	store.Append(bobID, pending("temp_3", "later"))

	stored := storeMessage("20", selfID, bobID, "ok")
	stored.CreatedAt = sentAt.Add(time.Second)
	store.Seed(bobID, []Message{
		storeMessage("10", selfID, bobID, "later"),
		storeMessage("11", bobID, selfID, "ok"),
		stored,
	})

	ids := make([]string, 0)
	for _, msg := range store.Messages(bobID) {
		ids = append(ids, msg.ID)
	}
	// "10" predates the pending "later" and "11" came from the peer, so
	// neither confirms a local send; "20" confirms the first "ok".
	require.Equal(t, []string{"10", "11", "20", "temp_2", "temp_3"}, ids)
}

func TestStoreReplaceKeepsPosition(t *testing.T) {
	store := NewStore()
	store.Append(bobID, storeMessage("1", selfID, bobID, "a"))
	store.Append(bobID, storeMessage("2", selfID, bobID, "b"))

	require.True(t, store.Replace(bobID, 0, storeMessage("9", selfID, bobID, "a")))
	require.False(t, store.Replace(bobID, 5, Message{}))
	require.False(t, store.Replace(carlID, 0, Message{}))

	messages := store.Messages(bobID)
	require.Equal(t, "9", messages[0].ID)
	require.Equal(t, "2", messages[1].ID)
}

func TestStoreMessagesReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Append(bobID, storeMessage("1", bobID, selfID, "a"))

	messages := store.Messages(bobID)
	messages[0].Content = "mutated"
	require.Equal(t, "a", store.Messages(bobID)[0].Content)
}
