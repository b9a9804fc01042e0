// Package tracker correlates submitted media requests with the backend's
// completion webhooks. Entries are keyed by item id and media kind, since a
// movie and a show can share a numeric id.
package tracker

import (
	"sync"
	"time"

	"github.com/reelgate/reelgate/internal/catalog"
)

// DefaultMaxAge bounds how long an unresolved request entry is retained.
// Requests older than this never match a webhook again.
const DefaultMaxAge = 30 * 24 * time.Hour

type key struct {
	itemID int
	kind   catalog.MediaKind
}

// Request is one tracked submission awaiting a completion webhook.
type Request struct {
	Identifier string
	Title      string
	TrackedAt  time.Time
}

// Tracker maps pending requests to their requesting identifiers. Safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]Request
	maxAge  time.Duration
	now     func() time.Time
}

// New creates a tracker with the default retention.
func New() *Tracker {
	return &Tracker{
		entries: map[key]Request{},
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
}

// Track records a submitted request. A second submission for the same item
// overwrites the earlier requester. Stale entries are evicted on each call
// so the map cannot grow without bound.
func (t *Tracker) Track(itemID int, kind catalog.MediaKind, identifier, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked()
	t.entries[key{itemID: itemID, kind: kind}] = Request{
		Identifier: identifier,
		Title:      title,
		TrackedAt:  t.now(),
	}
}

// Requester looks up the pending request for an item.
func (t *Tracker) Requester(itemID int, kind catalog.MediaKind) (Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[key{itemID: itemID, kind: kind}]
	return req, ok
}

// Remove drops a tracked entry once its final webhook has been delivered.
func (t *Tracker) Remove(itemID int, kind catalog.MediaKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key{itemID: itemID, kind: kind})
}

// Cleanup evicts entries older than maxAge. Track already runs this with
// the default retention; explicit calls are for tests and maintenance.
func (t *Tracker) Cleanup(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	for k, req := range t.entries {
		if req.TrackedAt.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// Len reports the number of pending entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) evictLocked() {
	cutoff := t.now().Add(-t.maxAge)
	for k, req := range t.entries {
		if req.TrackedAt.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}
