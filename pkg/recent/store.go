// Package recent persists the bounded list of past user selections shown
// ahead of scored results on an empty query.
package recent

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/pkg/entity"
	"github.com/geosift/geosift/pkg/storage"
)

// DefaultMaxEntries bounds the recent-search list.
const DefaultMaxEntries = 10

// Search is one persisted past selection, newest first in storage.
type Search struct {
	Term      string      `json:"term"`
	Name      string      `json:"name"`
	Type      entity.Type `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// Store keeps at most max entries, one per name, persisted synchronously
// after every change under the fixed recentSearches key.
type Store struct {
	mu      sync.Mutex
	storage *storage.SafeStorage
	max     int
	entries []Search
	logger  *log.Logger
	now     func() int64
}

// NewStore loads any persisted list and applies the size bound to it, so a
// lowered limit takes effect immediately.
func NewStore(s *storage.SafeStorage, max int, logger *log.Logger) *Store {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if logger == nil {
		logger = log.Default()
	}
	st := &Store{
		storage: s,
		max:     max,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	st.load()
	return st
}

func (st *Store) load() {
	raw, ok := st.storage.GetItem(storage.RecentKey)
	if !ok {
		return
	}
	var entries []Search
	if err := json.Unmarshal(raw, &entries); err != nil {
		st.logger.Warnf("Corrupt recent searches, discarding: %v", err)
		st.storage.RemoveItem(storage.RecentKey)
		return
	}
	if len(entries) > st.max {
		entries = entries[:st.max]
	}
	st.entries = entries
}

// persist writes the current list synchronously. Caller holds mu.
func (st *Store) persist() {
	data, err := json.Marshal(st.entries)
	if err != nil {
		st.logger.Errorf("Failed to encode recent searches: %v", err)
		return
	}
	st.storage.SetItem(storage.RecentKey, data)
}

// Add records a selection. An existing entry with the same name is dropped
// first so the new entry moves to the front; the list never exceeds max.
func (st *Store) Add(term, name string, typ entity.Type) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.removeLocked(name)
	st.entries = append([]Search{{
		Term:      term,
		Name:      name,
		Type:      typ,
		Timestamp: st.now(),
	}}, st.entries...)
	if len(st.entries) > st.max {
		st.entries = st.entries[:st.max]
	}
	st.persist()
}

// Remove deletes the entry with the given name, reporting whether one existed.
func (st *Store) Remove(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.removeLocked(name) {
		return false
	}
	st.persist()
	return true
}

func (st *Store) removeLocked(name string) bool {
	for i, e := range st.entries {
		if e.Name == name {
			st.entries = append(st.entries[:i], st.entries[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the entries, newest first.
func (st *Store) List() []Search {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Search, len(st.entries))
	copy(out, st.entries)
	return out
}

// Len reports the current entry count.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Clear drops every entry and the persisted key.
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = nil
	st.storage.RemoveItem(storage.RecentKey)
}

// Results converts the stored entries into result rows for the default view.
func (st *Store) Results() []entity.ScoredResult {
	entries := st.List()
	out := make([]entity.ScoredResult, 0, len(entries))
	for _, e := range entries {
		out = append(out, entity.ScoredResult{
			Entity: entity.Entity{
				Name:      e.Name,
				NameLower: strings.ToLower(e.Name),
				Type:      e.Type,
			},
			Score:    1,
			IsRecent: true,
		})
	}
	return out
}
