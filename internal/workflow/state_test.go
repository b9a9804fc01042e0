package workflow

import (
	"fmt"
	"testing"

	"github.com/reelgate/reelgate/internal/catalog"
)

func TestGetAbsentIdentifier(t *testing.T) {
	t.Parallel()

	s := NewStore()
	state, results := s.Get("0xabc")
	if state != StateUnspecified {
		t.Fatalf("expected StateUnspecified, got %v", state)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestSetTruncatesResults(t *testing.T) {
	t.Parallel()

	results := make([]catalog.Result, 0, MaxResults+3)
	for i := 0; i < MaxResults+3; i++ {
		results = append(results, catalog.Result{ID: i + 1, Kind: catalog.KindMovie, Title: fmt.Sprintf("m%d", i+1)})
	}

	s := NewStore()
	s.Set("0xabc", StateAwaitingMovieSelection, results)

	state, stored := s.Get("0xabc")
	if state != StateAwaitingMovieSelection {
		t.Fatalf("unexpected state: %v", state)
	}
	if len(stored) != MaxResults {
		t.Fatalf("expected %d stored results, got %d", MaxResults, len(stored))
	}
	if stored[MaxResults-1].ID != MaxResults {
		t.Fatalf("truncation kept wrong tail: %+v", stored[MaxResults-1])
	}
}

func TestSetOverwritesPendingSelection(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Set("0xabc", StateAwaitingMovieSelection, []catalog.Result{{ID: 1, Kind: catalog.KindMovie}})
	s.Set("0xabc", StateAwaitingTvSelection, []catalog.Result{{ID: 2, Kind: catalog.KindTV}})

	state, results := s.Get("0xabc")
	if state != StateAwaitingTvSelection {
		t.Fatalf("expected tv selection state, got %v", state)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Fatalf("expected replaced results, got %v", results)
	}
}

func TestClearRemovesEntry(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Set("0xabc", StateAwaitingMovieSelection, []catalog.Result{{ID: 1}})
	s.Clear("0xabc")

	if state, results := s.Get("0xabc"); state != StateUnspecified || results != nil {
		t.Fatalf("expected cleared entry, got state=%v results=%v", state, results)
	}
}

func TestStatesAreIndependentPerIdentifier(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Set("0xaaa", StateAwaitingMovieSelection, nil)
	s.Set("0xbbb", StateAwaitingTvSelection, nil)

	if state, _ := s.Get("0xaaa"); state != StateAwaitingMovieSelection {
		t.Fatalf("unexpected state for first identifier: %v", state)
	}
	if state, _ := s.Get("0xbbb"); state != StateAwaitingTvSelection {
		t.Fatalf("unexpected state for second identifier: %v", state)
	}
}
