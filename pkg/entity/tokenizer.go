package entity

import (
	"strings"
	"sync"
)

// SearchTokens holds the precomputed token forms of one lowercase name.
// Never mutated after Tokenize returns it.
type SearchTokens struct {
	Tokens []string
	NGrams []string
}

// Tokenize splits a name into lowercase whitespace tokens and character
// n-grams of length 2 and 3, taken at every position without deduplication.
// Pure and deterministic: repeated calls with the same input yield equal
// results. Callers memoize through a TokenCache.
func Tokenize(name string) SearchTokens {
	lower := strings.ToLower(name)
	tokens := strings.Fields(lower)

	var ngrams []string
	for size := 2; size <= 3; size++ {
		for i := 0; i+size <= len(lower); i++ {
			ngrams = append(ngrams, lower[i:i+size])
		}
	}

	return SearchTokens{Tokens: tokens, NGrams: ngrams}
}

// DefaultTokenCacheSize bounds the token memo. A full dataset holds a few
// thousand distinct names, so this keeps every name resident in practice
// while capping memory for pathological inputs.
const DefaultTokenCacheSize = 8192

// TokenCache memoizes Tokenize by lowercase name with FIFO eviction at a
// fixed capacity, so memory behavior stays deterministic.
type TokenCache struct {
	mu       sync.Mutex
	entries  map[string]*SearchTokens
	order    []string
	capacity int
}

// NewTokenCache creates a bounded token memo. Non-positive capacity falls
// back to DefaultTokenCacheSize.
func NewTokenCache(capacity int) *TokenCache {
	if capacity <= 0 {
		capacity = DefaultTokenCacheSize
	}
	return &TokenCache{
		entries:  make(map[string]*SearchTokens, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Get returns the token forms for a lowercase name, computing them on first
// use. The returned value is shared and must be treated as read-only.
func (tc *TokenCache) Get(nameLower string) *SearchTokens {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if cached, ok := tc.entries[nameLower]; ok {
		return cached
	}

	st := Tokenize(nameLower)
	if len(tc.order) >= tc.capacity {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.entries, oldest)
	}
	tc.entries[nameLower] = &st
	tc.order = append(tc.order, nameLower)
	return &st
}

// Len reports how many names are currently memoized.
func (tc *TokenCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.entries)
}

// Clear drops every memoized entry.
func (tc *TokenCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries = make(map[string]*SearchTokens, tc.capacity)
	tc.order = tc.order[:0]
}
