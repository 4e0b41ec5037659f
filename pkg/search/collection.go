// Package search holds the pure scoring and ranking core: it maps a query and
// an entity collection to a ranked, capped, deduplicated result slice without
// touching any view or storage concern.
package search

import (
	"math/rand"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/pkg/entity"
)

// Collection owns the loaded entity slices per taxonomy level, the per-load
// shuffled orders used by the default view, and the name index.
//
// A dataset load replaces a whole slice; entities are never patched in place.
// The shuffle happens once per load, not per query, so the default view varies
// across sessions at zero per-keystroke cost.
type Collection struct {
	mu       sync.RWMutex
	byType   map[entity.Type][]entity.Entity
	shuffled map[entity.Type][]*entity.Entity
	index    *Index
	logger   *log.Logger
}

// NewCollection creates an empty entity collection.
func NewCollection(logger *log.Logger) *Collection {
	if logger == nil {
		logger = log.Default()
	}
	return &Collection{
		byType:   make(map[entity.Type][]entity.Entity),
		shuffled: make(map[entity.Type][]*entity.Entity),
		index:    NewIndex(),
		logger:   logger,
	}
}

// SetEntities replaces the slice for one taxonomy level, reshuffles its
// default-view order and rebuilds the name index.
func (c *Collection) SetEntities(typ entity.Type, ents []entity.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byType[typ] = ents

	order := make([]*entity.Entity, len(ents))
	for i := range ents {
		order[i] = &ents[i]
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	c.shuffled[typ] = order

	c.rebuildIndex()
	c.logger.Debugf("Loaded %d entities for type %s", len(ents), typ)
}

// rebuildIndex reconstructs the trie from every loaded slice. Caller holds mu.
func (c *Collection) rebuildIndex() {
	ix := NewIndex()
	for _, ents := range c.byType {
		for i := range ents {
			ix.Insert(&ents[i])
		}
	}
	c.index = ix
}

// All returns a snapshot of pointers to every loaded entity across all levels.
func (c *Collection) All() []*entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, ents := range c.byType {
		total += len(ents)
	}
	all := make([]*entity.Entity, 0, total)
	for _, typ := range entity.Types {
		ents := c.byType[typ]
		for i := range ents {
			all = append(all, &ents[i])
		}
	}
	return all
}

// Shuffled returns the per-load shuffled order for one taxonomy level.
func (c *Collection) Shuffled(typ entity.Type) []*entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shuffled[typ]
}

// Lookup resolves a name to a loaded entity, preferring the taxonomy order
// region > subregion > locality > settlement > territory when several levels
// share the name.
func (c *Collection) Lookup(nameLower string) (*entity.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := c.index.Exact(nameLower)
	if len(matches) == 0 {
		return nil, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if categoryRank(m.Type) < categoryRank(best.Type) {
			best = m
		}
	}
	return best, true
}

// VisitPrefix walks loaded entities by lowercase name prefix.
func (c *Collection) VisitPrefix(prefixLower string, fn func(e *entity.Entity) bool) {
	c.mu.RLock()
	ix := c.index
	c.mu.RUnlock()
	ix.VisitPrefix(prefixLower, fn)
}

// Count returns the number of loaded entities for one level.
func (c *Collection) Count(typ entity.Type) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byType[typ])
}

// Stats reports per-level and total entity counts.
func (c *Collection) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make(map[string]int, len(c.byType)+1)
	total := 0
	for typ, ents := range c.byType {
		stats[string(typ)] = len(ents)
		total += len(ents)
	}
	stats["total"] = total
	return stats
}
