package search

import (
	"errors"

	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/geosift/geosift/pkg/entity"
)

// Index is a patricia trie over lowercase entity names. Names are not unique
// across taxonomy levels, so each leaf holds every entity sharing the name.
type Index struct {
	trie *patricia.Trie
}

// NewIndex creates an empty name index.
func NewIndex() *Index {
	return &Index{trie: patricia.NewTrie()}
}

// Insert adds an entity under its lowercase name.
func (ix *Index) Insert(e *entity.Entity) {
	key := patricia.Prefix(e.NameLower)
	if item := ix.trie.Get(key); item != nil {
		ix.trie.Set(key, append(item.([]*entity.Entity), e))
		return
	}
	ix.trie.Insert(key, []*entity.Entity{e})
}

// Exact returns every entity whose lowercase name equals nameLower.
func (ix *Index) Exact(nameLower string) []*entity.Entity {
	item := ix.trie.Get(patricia.Prefix(nameLower))
	if item == nil {
		return nil
	}
	return item.([]*entity.Entity)
}

// VisitPrefix walks all entities whose lowercase name starts with prefixLower.
// Returning false from fn stops the walk.
func (ix *Index) VisitPrefix(prefixLower string, fn func(e *entity.Entity) bool) {
	_ = ix.trie.VisitSubtree(patricia.Prefix(prefixLower), func(_ patricia.Prefix, item patricia.Item) error {
		for _, e := range item.([]*entity.Entity) {
			if !fn(e) {
				return errStopWalk
			}
		}
		return nil
	})
}

// errStopWalk aborts a trie walk early; it never escapes VisitPrefix.
var errStopWalk = errors.New("stop walk")
