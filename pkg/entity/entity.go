// Package entity defines the searchable geographic records and their token forms.
package entity

import "strings"

// Type identifies which level of the geographic taxonomy a record belongs to.
type Type string

const (
	TypeRegion     Type = "region"
	TypeSubregion  Type = "subregion"
	TypeLocality   Type = "locality"
	TypeSettlement Type = "settlement"
	TypeTerritory  Type = "territory"
)

// Types lists every taxonomy level in display order.
var Types = []Type{TypeRegion, TypeSubregion, TypeLocality, TypeSettlement, TypeTerritory}

// Valid reports whether t is one of the known taxonomy levels.
func (t Type) Valid() bool {
	switch t {
	case TypeRegion, TypeSubregion, TypeLocality, TypeSettlement, TypeTerritory:
		return true
	}
	return false
}

// Coordinates is a WGS84 point carried through from the source dataset.
// The search core never computes on it; it is handed back on selection.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Entity is one searchable geographic record. Entities are built once per
// dataset load and never mutated afterwards; a reload replaces the whole slice.
type Entity struct {
	Name        string       `json:"name"`
	NameLower   string       `json:"nameLower"`
	Type        Type         `json:"type"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Region      string       `json:"region,omitempty"`
	SubRegion   string       `json:"subRegion,omitempty"`
	Territory   string       `json:"territory,omitempty"`

	// Tokens is filled from the shared TokenCache at load time and is
	// identical for every entity sharing the same lowercase name.
	Tokens *SearchTokens `json:"-"`
}

// New builds an entity for a name, resolving its token forms through cache.
func New(name string, typ Type, cache *TokenCache) Entity {
	lower := strings.ToLower(name)
	return Entity{
		Name:      name,
		NameLower: lower,
		Type:      typ,
		Tokens:    cache.Get(lower),
	}
}

// MatchType names the scoring rule that produced a result's final score.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchPrefix    MatchType = "prefix"
	MatchSubstring MatchType = "substring"
	MatchToken     MatchType = "token"
	MatchFuzzy     MatchType = "fuzzy"
)

// ScoredResult is an entity paired with its match score for one query.
type ScoredResult struct {
	Entity
	Score     float64   `json:"score"`
	MatchType MatchType `json:"matchType"`
	IsRecent  bool      `json:"isRecent,omitempty"`
}
