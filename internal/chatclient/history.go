package chatclient

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// HistoryLoader seeds a conversation from the REST history endpoint. Load
// runs on the event loop; the fetch itself runs in its own goroutine.
type HistoryLoader struct {
	api     HistoryAPI
	store   *Store
	logger  *zap.Logger
	metrics *Metrics

	ctx      context.Context
	wg       *sync.WaitGroup
	post     func(fn func()) bool
	onChange func()
}

// Load fetches the latest limit messages for peerID and replaces the
// conversation's sequence with them. On failure the sequence is left as
// is and nothing is retried until the conversation is selected again.
func (l *HistoryLoader) Load(peerID int64, limit int) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	conversation := l.store.GetOrCreate(peerID)
	if conversation.Loading {
		return
	}
	conversation.Loading = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		messages, err := l.api.FetchHistory(l.ctx, peerID, limit)
		l.post(func() { l.finish(peerID, messages, err) })
	}()
}

func (l *HistoryLoader) finish(peerID int64, messages []Message, err error) {
	if err != nil {
		if conversation, ok := l.store.Lookup(peerID); ok {
			conversation.Loading = false
		}
		l.metrics.HistoryFailures.Inc()
		l.logger.Warn("load conversation history", zap.Int64("peer_id", peerID), zap.Error(err))
		l.onChange()
		return
	}

	l.store.Seed(peerID, messages)
	l.logger.Debug("conversation history loaded", zap.Int64("peer_id", peerID), zap.Int("count", len(messages)))
	l.onChange()
}
