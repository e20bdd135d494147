package webhook

import (
	"sync"
	"time"
)

// defaultDedupWindow matches the platform's documented retry window.
// A message id older than this can no longer be redelivered, so its
// entry is evictable.
const defaultDedupWindow = 10 * time.Minute

// dedupSet tracks recently seen message ids so platform retries are
// delivered to the sink at most once.
type dedupSet struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func newDedupSet(window time.Duration) *dedupSet {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &dedupSet{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// observe records the message id and reports whether it was already
// seen inside the window. Expired entries are evicted on the way.
func (d *dedupSet) observe(messageID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	for id, firstSeen := range d.seen {
		if firstSeen.Before(cutoff) {
			delete(d.seen, id)
		}
	}

	if _, dup := d.seen[messageID]; dup {
		return true
	}
	d.seen[messageID] = now
	return false
}

// size reports how many ids are currently tracked.
func (d *dedupSet) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
