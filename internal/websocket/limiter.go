package chatws

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSendRate  = 5
	defaultSendBurst = 10
	limiterIdleTTL   = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per user so reconnecting does not
// refill it. Idle entries are pruned by the hub loop.
type limiterPool struct {
	mu      sync.Mutex
	entries map[int64]*limiterEntry
	limit   rate.Limit
	burst   int
}

func newLimiterPool(perSecond float64, burst int) *limiterPool {
	if perSecond <= 0 {
		perSecond = defaultSendRate
	}
	if burst <= 0 {
		burst = defaultSendBurst
	}
	return &limiterPool{
		entries: make(map[int64]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (p *limiterPool) Allow(userID int64) bool {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.entries[userID] = entry
	}
	entry.lastSeen = time.Now()
	p.mu.Unlock()
	return entry.limiter.Allow()
}

func (p *limiterPool) prune(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for userID, entry := range p.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(p.entries, userID)
			removed++
		}
	}
	return removed
}
