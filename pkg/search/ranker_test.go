package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geosift/geosift/pkg/entity"
)

func buildEntities(cache *entity.TokenCache, typ entity.Type, names ...string) []entity.Entity {
	ents := make([]entity.Entity, len(names))
	for i, name := range names {
		ents[i] = entity.New(name, typ, cache)
	}
	return ents
}

func testCollection(t *testing.T) *Collection {
	t.Helper()
	cache := entity.NewTokenCache(256)
	col := NewCollection(nil)
	col.SetEntities(entity.TypeRegion, buildEntities(cache, entity.TypeRegion, "West Bank", "Gaza Strip North"))
	col.SetEntities(entity.TypeSubregion, buildEntities(cache, entity.TypeSubregion, "Ramallah and al-Bireh", "Hebron Hills"))
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality,
		"Ramallah", "Gaza", "Hebron", "Nablus", "Jericho", "Bethlehem", "Qalqilya", "Tulkarm"))
	col.SetEntities(entity.TypeSettlement, buildEntities(cache, entity.TypeSettlement, "Beit El", "Ariel"))
	col.SetEntities(entity.TypeTerritory, buildEntities(cache, entity.TypeTerritory, "Gaza Strip"))
	return col
}

func testRanker(t *testing.T, col *Collection) *Ranker {
	t.Helper()
	return NewRanker(col, RankerOptions{Fuzzy: true}, nil)
}

func TestRankExactBeforeEverything(t *testing.T) {
	r := testRanker(t, testCollection(t))

	results := r.Rank("gaza", nil)
	require.NotEmpty(t, results)
	assert.Equal(t, "Gaza", results[0].Name)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, entity.MatchExact, results[0].MatchType)

	// The territory only prefix-matches and must come after.
	for _, res := range results[1:] {
		assert.Less(t, res.Score, 1.0)
	}
}

func TestRankPrefixScenario(t *testing.T) {
	r := testRanker(t, testCollection(t))

	results := r.Rank("ramal", nil)
	require.NotEmpty(t, results)

	// Subregion and locality both prefix-match at 0.9; the tie falls to the
	// taxonomy order, so the subregion leads.
	assert.Equal(t, "Ramallah and al-Bireh", results[0].Name)
	assert.Equal(t, "Ramallah", results[1].Name)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, entity.MatchPrefix, results[1].MatchType)
}

func TestRankExactOutranksPrefixDespiteTieBand(t *testing.T) {
	cache := entity.NewTokenCache(64)
	col := NewCollection(nil)
	// The region prefix-matches at 0.9 and ranks first by category on a tie;
	// the locality's exact 1.0 must still win because a full 0.1 gap is not
	// a tie.
	col.SetEntities(entity.TypeRegion, buildEntities(cache, entity.TypeRegion, "Gaza Strip North"))
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality, "Gaza"))
	r := testRanker(t, col)

	results := r.Rank("gaza", nil)
	require.Len(t, results, 2)
	assert.Equal(t, "Gaza", results[0].Name)
	assert.Equal(t, "Gaza Strip North", results[1].Name)
}

func TestRankTieBreaksByName(t *testing.T) {
	cache := entity.NewTokenCache(64)
	col := NewCollection(nil)
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality, "Beit Sahour", "Beit Jala", "Beit Hanoun"))
	r := testRanker(t, col)

	results := r.Rank("beit", nil)
	require.Len(t, results, 3)
	assert.Equal(t, "Beit Hanoun", results[0].Name)
	assert.Equal(t, "Beit Jala", results[1].Name)
	assert.Equal(t, "Beit Sahour", results[2].Name)
}

func TestRankAdminCap(t *testing.T) {
	cache := entity.NewTokenCache(64)
	col := NewCollection(nil)
	col.SetEntities(entity.TypeRegion, buildEntities(cache, entity.TypeRegion, "North A", "North B", "North C"))
	col.SetEntities(entity.TypeSubregion, buildEntities(cache, entity.TypeSubregion, "North D", "North E"))
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality, "North Town"))
	r := testRanker(t, col)

	results := r.Rank("north", nil)

	admins := 0
	locality := false
	for _, res := range results {
		switch res.Type {
		case entity.TypeRegion, entity.TypeSubregion:
			admins++
		case entity.TypeLocality:
			locality = true
		}
	}
	assert.Equal(t, adminCap, admins, "region+subregion entries are capped")
	assert.True(t, locality, "capping admins must not drop other levels")
}

func TestRankMaxResults(t *testing.T) {
	cache := entity.NewTokenCache(64)
	col := NewCollection(nil)
	names := make([]string, 20)
	for i := range names {
		names[i] = "Kafr " + string(rune('A'+i))
	}
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality, names...))
	r := NewRanker(col, RankerOptions{MaxResults: 5, Fuzzy: true}, nil)

	results := r.Rank("kafr", nil)
	assert.Len(t, results, 5)
}

func TestRankThresholdExcludes(t *testing.T) {
	r := testRanker(t, testCollection(t))
	results := r.Rank("zzqq", nil)
	assert.Empty(t, results)
}

func TestRankDefaultView(t *testing.T) {
	col := testCollection(t)
	r := testRanker(t, col)

	recents := []entity.ScoredResult{
		{Entity: entity.Entity{Name: "Hebron", NameLower: "hebron", Type: entity.TypeLocality}},
		{Entity: entity.Entity{Name: "Gaza", NameLower: "gaza", Type: entity.TypeLocality}},
	}

	results := r.Rank("", recents)
	// 2 recents, 2 regions, 2 subregions, 5 of 8 localities, 2 settlements.
	require.Len(t, results, 13)

	assert.Equal(t, "Hebron", results[0].Name)
	assert.True(t, results[0].IsRecent)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "Gaza", results[1].Name)

	counts := map[entity.Type]int{}
	for _, res := range results[2:] {
		assert.False(t, res.IsRecent)
		counts[res.Type]++
	}
	assert.Equal(t, defaultRegionSlots-1, counts[entity.TypeRegion])
	assert.Equal(t, defaultLocalitySlots, counts[entity.TypeLocality])
	assert.Zero(t, counts[entity.TypeTerritory], "territories never appear in the default view")
}

func TestRankDefaultViewCapsRecents(t *testing.T) {
	r := testRanker(t, testCollection(t))

	recents := make([]entity.ScoredResult, 9)
	for i := range recents {
		recents[i] = entity.ScoredResult{Entity: entity.Entity{Name: "R" + string(rune('0'+i))}}
	}

	results := r.Rank("", recents)
	seen := 0
	for _, res := range results {
		if res.IsRecent {
			seen++
		}
	}
	assert.Equal(t, defaultRecentSlots, seen)
}

func TestRankWhitespaceQueryIsDefaultView(t *testing.T) {
	r := testRanker(t, testCollection(t))
	results := r.Rank("   ", nil)
	for _, res := range results {
		assert.Equal(t, 1.0, res.Score)
	}
	assert.NotEmpty(t, results)
}

func TestRankRecentsIgnoredOnScoredQueries(t *testing.T) {
	r := testRanker(t, testCollection(t))
	recents := []entity.ScoredResult{
		{Entity: entity.Entity{Name: "Hebron", NameLower: "hebron", Type: entity.TypeLocality}},
	}
	for _, res := range r.Rank("gaza", recents) {
		assert.False(t, res.IsRecent)
	}
}

func TestRankQueryCache(t *testing.T) {
	r := testRanker(t, testCollection(t))

	first := r.Rank("ramal", nil)
	second := r.Rank("ramal", nil)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	r.ClearCache()
	third := r.Rank("ramal", nil)
	assert.Equal(t, first, third)
}

func TestQueryCacheEviction(t *testing.T) {
	qc := newQueryCache(2)
	qc.put("a", []entity.ScoredResult{{Score: 1}})
	qc.put("b", []entity.ScoredResult{{Score: 2}})
	qc.put("c", []entity.ScoredResult{{Score: 3}})

	_, ok := qc.get("a")
	assert.False(t, ok, "oldest entry is evicted")
	_, ok = qc.get("c")
	assert.True(t, ok)
}

func TestCollectionLookupPrefersHigherLevel(t *testing.T) {
	cache := entity.NewTokenCache(64)
	col := NewCollection(nil)
	col.SetEntities(entity.TypeLocality, buildEntities(cache, entity.TypeLocality, "Gaza"))
	col.SetEntities(entity.TypeTerritory, buildEntities(cache, entity.TypeTerritory, "Gaza"))

	e, ok := col.Lookup("gaza")
	require.True(t, ok)
	assert.Equal(t, entity.TypeLocality, e.Type)

	_, ok = col.Lookup("atlantis")
	assert.False(t, ok)
}

func TestCollectionVisitPrefix(t *testing.T) {
	col := testCollection(t)

	var names []string
	col.VisitPrefix("ramal", func(e *entity.Entity) bool {
		names = append(names, e.Name)
		return true
	})
	assert.ElementsMatch(t, []string{"Ramallah", "Ramallah and al-Bireh"}, names)

	// Early stop after the first hit.
	visits := 0
	col.VisitPrefix("ramal", func(e *entity.Entity) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestCollectionStats(t *testing.T) {
	col := testCollection(t)
	stats := col.Stats()
	assert.Equal(t, 8, stats["locality"])
	assert.Equal(t, 15, stats["total"])
}
