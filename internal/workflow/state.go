// Package workflow keeps the per-identifier conversation workflow state:
// whether a wallet is mid-selection and which search results it is
// selecting from. State is ephemeral and lives only in process memory.
package workflow

import (
	"sync"

	"github.com/reelgate/reelgate/internal/catalog"
)

// State is the workflow position of a single identifier.
type State int

const (
	// StateUnspecified means no selection is pending.
	StateUnspecified State = iota
	// StateAwaitingMovieSelection means the identifier's last search was a
	// movie search and a numeric reply selects from its results.
	StateAwaitingMovieSelection
	// StateAwaitingTvSelection is the TV counterpart.
	StateAwaitingTvSelection
)

// MaxResults bounds the stored result list. Truncation to 5 is a UX bound
// for numeric selection over chat, not a backend limit.
const MaxResults = 5

type entry struct {
	state   State
	results []catalog.Result
}

// Store maps an identifier to its workflow state plus the transient search
// result context. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewStore creates an empty workflow state store.
func NewStore() *Store {
	return &Store{entries: map[string]entry{}}
}

// Get returns the identifier's state and result context. Absent identifiers
// yield StateUnspecified and a nil list.
func (s *Store) Get(id string) (State, []catalog.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return StateUnspecified, nil
	}
	return e.state, e.results
}

// Set replaces the identifier's state and result context. A later search
// always overwrites an earlier pending selection. The stored list is
// truncated to MaxResults.
func (s *Store) Set(id string, state State, results []catalog.Result) {
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry{state: state, results: results}
}

// Clear removes the identifier's entry entirely.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}
