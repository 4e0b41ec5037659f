package search

import (
	"strings"

	"github.com/geosift/geosift/pkg/entity"
)

// Score weights per matching rule. Later rules only ever raise the running
// candidate, never lower it.
const (
	exactScore      = 1.0
	prefixScore     = 0.9
	substringScore  = 0.7
	tokenWeight     = 0.8
	fuzzyWeight     = 0.6
	fuzzyScoreLimit = 0.5
)

// DefaultScoreThreshold is the minimum score a result must exceed to appear.
const DefaultScoreThreshold = 0.3

// Scorer computes the match score of one entity against one query.
type Scorer struct {
	// Threshold excludes results scoring at or below it.
	Threshold float64
	// Fuzzy enables bigram matching for weak candidates.
	Fuzzy bool
}

// NewScorer creates a scorer with the given threshold and fuzzy toggle.
func NewScorer(threshold float64, fuzzy bool) Scorer {
	return Scorer{Threshold: threshold, Fuzzy: fuzzy}
}

// Score evaluates the matching rules in order against a lowercase query and
// its whitespace tokens. It returns the final score and the rule that
// produced it. An exact name match short-circuits at 1.0.
func (s Scorer) Score(queryLower string, queryTokens []string, e *entity.Entity) (float64, entity.MatchType) {
	if e.NameLower == queryLower {
		return exactScore, entity.MatchExact
	}

	var candidate float64
	var match entity.MatchType

	if strings.HasPrefix(e.NameLower, queryLower) {
		candidate, match = prefixScore, entity.MatchPrefix
	} else if strings.Contains(e.NameLower, queryLower) {
		candidate, match = substringScore, entity.MatchSubstring
	}

	tokens := e.Tokens
	if tokens == nil {
		// Entities built outside the loader have no memoized tokens.
		st := entity.Tokenize(e.NameLower)
		tokens = &st
	}

	if len(queryTokens) > 1 {
		matched := 0
		for _, qt := range queryTokens {
			for _, et := range tokens.Tokens {
				if strings.Contains(et, qt) {
					matched++
					break
				}
			}
		}
		if frac := float64(matched) / float64(len(queryTokens)); frac*tokenWeight > candidate {
			candidate, match = frac*tokenWeight, entity.MatchToken
		}
	}

	if s.Fuzzy && candidate < fuzzyScoreLimit {
		if f := bigramOverlap(queryLower, tokens.NGrams); f*fuzzyWeight > candidate {
			candidate, match = f*fuzzyWeight, entity.MatchFuzzy
		}
	}

	return candidate, match
}

// Accepts reports whether a score clears the exclusion threshold.
func (s Scorer) Accepts(score float64) bool {
	return score > s.Threshold
}

// bigramOverlap returns the fraction of the query's distinct 2-grams that
// occur anywhere in the entity's n-gram list.
func bigramOverlap(queryLower string, ngrams []string) float64 {
	set := make(map[string]struct{}, len(queryLower))
	for i := 0; i+2 <= len(queryLower); i++ {
		set[queryLower[i:i+2]] = struct{}{}
	}

	size := len(set)
	if size == 0 {
		size = 1
	}

	hits := 0
	for bigram := range set {
		for _, ng := range ngrams {
			if ng == bigram {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(size)
}
