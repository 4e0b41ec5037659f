package search

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/pkg/entity"
)

// Default-view slot counts per taxonomy level when the query is empty.
const (
	defaultRecentSlots     = 5
	defaultRegionSlots     = 3
	defaultSubregionSlots  = 3
	defaultLocalitySlots   = 5
	defaultSettlementSlots = 3
)

// Post-sort caps for scored result sets.
const (
	// adminCap bounds region+subregion entries combined in one result set.
	adminCap = 3
	// DefaultMaxResults bounds the total result set.
	DefaultMaxResults = 200
)

// scoreTieBand: scores closer than this are treated as tied and fall through
// to the category and name tie-breaks. The epsilon keeps a full 0.1 gap
// (exact vs prefix) ordered despite float rounding.
const scoreTieBand = 0.1 - 1e-9

// RankerOptions configures result assembly.
type RankerOptions struct {
	MaxResults     int
	ScoreThreshold float64
	Fuzzy          bool
	// CacheSize bounds the per-query result memo. Zero keeps the default.
	CacheSize int
}

// Ranker assembles, orders and caps the scored result set for a query,
// merging recent searches into the empty-query default view.
type Ranker struct {
	col    *Collection
	scorer Scorer
	max    int
	cache  *queryCache
	logger *log.Logger
}

// NewRanker creates a ranker over a collection.
func NewRanker(col *Collection, opts RankerOptions, logger *log.Logger) *Ranker {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = DefaultScoreThreshold
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Ranker{
		col:    col,
		scorer: NewScorer(opts.ScoreThreshold, opts.Fuzzy),
		max:    opts.MaxResults,
		cache:  newQueryCache(opts.CacheSize),
		logger: logger,
	}
}

// Scorer exposes the ranker's scorer, mainly for tests and stats.
func (r *Ranker) Scorer() Scorer { return r.scorer }

// Rank returns the ranked result set for a query. Recents are prepended only
// on the empty query; they never participate in the scored sort.
func (r *Ranker) Rank(query string, recents []entity.ScoredResult) []entity.ScoredResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.defaultView(recents)
	}
	return r.scored(strings.ToLower(query))
}

// defaultView builds the empty-query listing: recent searches first in stored
// order, then fixed slices of each level from the per-load shuffled order.
func (r *Ranker) defaultView(recents []entity.ScoredResult) []entity.ScoredResult {
	out := make([]entity.ScoredResult, 0, defaultRecentSlots+defaultRegionSlots+defaultSubregionSlots+defaultLocalitySlots+defaultSettlementSlots)

	for i, rec := range recents {
		if i >= defaultRecentSlots {
			break
		}
		rec.Score = 1
		rec.IsRecent = true
		out = append(out, rec)
	}

	out = r.appendShuffled(out, entity.TypeRegion, defaultRegionSlots)
	out = r.appendShuffled(out, entity.TypeSubregion, defaultSubregionSlots)
	out = r.appendShuffled(out, entity.TypeLocality, defaultLocalitySlots)
	out = r.appendShuffled(out, entity.TypeSettlement, defaultSettlementSlots)
	return out
}

func (r *Ranker) appendShuffled(out []entity.ScoredResult, typ entity.Type, slots int) []entity.ScoredResult {
	for i, e := range r.col.Shuffled(typ) {
		if i >= slots {
			break
		}
		out = append(out, entity.ScoredResult{Entity: *e, Score: 1, MatchType: entity.MatchExact})
	}
	return out
}

// scored runs the full scoring pass over every level including territories,
// sorts, and applies the admin and total caps.
func (r *Ranker) scored(queryLower string) []entity.ScoredResult {
	if cached, ok := r.cache.get(queryLower); ok {
		return cached
	}

	queryTokens := strings.Fields(queryLower)

	var results []entity.ScoredResult
	for _, e := range r.col.All() {
		score, match := r.scorer.Score(queryLower, queryTokens, e)
		if !r.scorer.Accepts(score) {
			continue
		}
		results = append(results, entity.ScoredResult{Entity: *e, Score: score, MatchType: match})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if diff := a.Score - b.Score; math.Abs(diff) >= scoreTieBand {
			return diff > 0
		}
		if ca, cb := categoryRank(a.Type), categoryRank(b.Type); ca != cb {
			return ca < cb
		}
		return a.Name < b.Name
	})

	results = applyCaps(results, r.max)
	r.cache.put(queryLower, results)
	return results
}

// applyCaps enforces the combined region+subregion cap and the total cap on
// an already-sorted result slice.
func applyCaps(sorted []entity.ScoredResult, maxTotal int) []entity.ScoredResult {
	out := sorted[:0]
	admins := 0
	for _, res := range sorted {
		if res.Type == entity.TypeRegion || res.Type == entity.TypeSubregion {
			if admins >= adminCap {
				continue
			}
			admins++
		}
		out = append(out, res)
		if len(out) >= maxTotal {
			break
		}
	}
	return out
}

// categoryRank orders taxonomy levels for score ties: administrative levels
// ahead of populated places, territories last.
func categoryRank(typ entity.Type) int {
	switch typ {
	case entity.TypeRegion:
		return 0
	case entity.TypeSubregion:
		return 1
	case entity.TypeLocality:
		return 2
	case entity.TypeSettlement:
		return 3
	default:
		return 4
	}
}

// ClearCache drops memoized query results. Called after selections and
// dataset reloads so stale result slices never resurface.
func (r *Ranker) ClearCache() {
	r.cache.clear()
}

// defaultQueryCacheSize bounds the query result memo.
const defaultQueryCacheSize = 64

// queryCache is a bounded FIFO memo of query -> ranked results.
type queryCache struct {
	mu       sync.Mutex
	entries  map[string][]entity.ScoredResult
	order    []string
	capacity int
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = defaultQueryCacheSize
	}
	return &queryCache{
		entries:  make(map[string][]entity.ScoredResult, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

func (qc *queryCache) get(query string) ([]entity.ScoredResult, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	res, ok := qc.entries[query]
	return res, ok
}

func (qc *queryCache) put(query string, results []entity.ScoredResult) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if _, ok := qc.entries[query]; ok {
		qc.entries[query] = results
		return
	}
	if len(qc.order) >= qc.capacity {
		oldest := qc.order[0]
		qc.order = qc.order[1:]
		delete(qc.entries, oldest)
	}
	qc.entries[query] = results
	qc.order = append(qc.order, query)
}

func (qc *queryCache) clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries = make(map[string][]entity.ScoredResult, qc.capacity)
	qc.order = qc.order[:0]
}
