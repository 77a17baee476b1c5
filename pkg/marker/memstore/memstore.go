// Package memstore provides an in-memory marker.Store for testing and
// lightweight deployments. Items are lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memstore

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/marker"
)

// entry holds a stored item and its position in the LRU list.
type entry struct {
	item    marker.StoredItem
	chatID  string
	lruElem *list.Element
}

// Store is an in-memory marker store with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ marker.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows without
// limit; otherwise the least recently used item is evicted at capacity.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Persist stores the given items, evicting the oldest entries at capacity.
func (s *Store) Persist(_ context.Context, chatID string, items []marker.StoredItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if prev, exists := s.entries[item.ID]; exists {
			s.lruList.MoveToFront(prev.lruElem)
			prev.item = item
			prev.chatID = chatID
			continue
		}
		if s.maxSize > 0 && len(s.entries) >= s.maxSize {
			s.evictOldest()
		}
		elem := s.lruList.PushFront(item.ID)
		s.entries[item.ID] = &entry{item: item, chatID: chatID, lruElem: elem}
	}
	return nil
}

// Fetch returns the payloads for the requested ids, scoped to the chat and
// optionally to the producing model. Unknown ids are absent from the result.
func (s *Store) Fetch(_ context.Context, chatID string, ids []string, model string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		if chatID != "" && e.chatID != chatID {
			continue
		}
		if model != "" && e.item.Model != model {
			continue
		}
		s.lruList.MoveToFront(e.lruElem)
		out[id] = e.item.Payload
	}
	return out, nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
