// Package intercept keeps resource URLs observed on browser tabs and lets
// callers wait for them to appear.
package intercept

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FallbackKey is the per-tab logical key that always holds the most recent
// URL recorded for the tab, whatever its page.
const FallbackKey = "last"

// Key addresses one entry of the store.
type Key struct {
	TabID   string
	Logical string
}

type waiter struct {
	logical string
	ch      chan string
}

// Store is a keyed registry of intercepted resource URLs. Entries live as long
// as their tab; Purge is wired to tab close.
type Store struct {
	mu      sync.Mutex
	entries map[Key]string
	waiters map[string][]*waiter
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[Key]string),
		waiters: make(map[string][]*waiter),
	}
}

// Record stores url under (tabID, logical) and under the tab's fallback key.
// Last write wins. Pending waiters for the tab are released with url.
func (s *Store) Record(tabID, logical, url string) {
	if logical == "" {
		logical = FallbackKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[Key{TabID: tabID, Logical: logical}] = url
	s.entries[Key{TabID: tabID, Logical: FallbackKey}] = url

	pending := s.waiters[tabID]
	if len(pending) == 0 {
		return
	}
	delete(s.waiters, tabID)
	for _, w := range pending {
		// Any recording satisfies a waiter: the exact key matches it directly,
		// otherwise the fallback key now holds url.
		w.ch <- url
	}
	slog.Debug("intercept waiters released", "tab_id", tabID, "logical", logical, "count", len(pending))
}

// Lookup returns the exact entry for (tabID, logical), falling back to the
// tab's fallback entry.
func (s *Store) Lookup(tabID, logical string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(tabID, logical)
}

func (s *Store) lookupLocked(tabID, logical string) (string, bool) {
	if url, ok := s.entries[Key{TabID: tabID, Logical: logical}]; ok {
		return url, true
	}
	url, ok := s.entries[Key{TabID: tabID, Logical: FallbackKey}]
	return url, ok
}

// AwaitMatch returns the URL recorded for (tabID, logical). An existing exact
// entry is returned without waiting. Otherwise it waits for the next recording
// on the tab until timeout or ctx ends, then makes one last two-tier lookup.
// An empty string means nothing was observed; it is not an error.
func (s *Store) AwaitMatch(ctx context.Context, tabID, logical string, timeout time.Duration) string {
	if logical == "" {
		logical = FallbackKey
	}

	s.mu.Lock()
	if url, ok := s.entries[Key{TabID: tabID, Logical: logical}]; ok {
		s.mu.Unlock()
		return url
	}
	w := &waiter{logical: logical, ch: make(chan string, 1)}
	s.waiters[tabID] = append(s.waiters[tabID], w)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case url := <-w.ch:
		if url != "" {
			return url
		}
	case <-timer.C:
		slog.Debug("intercept wait timed out", "tab_id", tabID, "logical", logical, "timeout", timeout)
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWaiterLocked(tabID, w)
	url, _ := s.lookupLocked(tabID, logical)
	return url
}

func (s *Store) removeWaiterLocked(tabID string, target *waiter) {
	pending := s.waiters[tabID]
	for i, w := range pending {
		if w == target {
			pending = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(pending) == 0 {
		delete(s.waiters, tabID)
		return
	}
	s.waiters[tabID] = pending
}

// Purge drops every entry of tabID and releases its waiters empty-handed.
func (s *Store) Purge(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if k.TabID == tabID {
			delete(s.entries, k)
			removed++
		}
	}
	for _, w := range s.waiters[tabID] {
		w.ch <- ""
	}
	delete(s.waiters, tabID)

	if removed > 0 {
		slog.Debug("intercept entries purged", "tab_id", tabID, "count", removed)
	}
}

// Len returns the number of stored entries, fallback keys included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
