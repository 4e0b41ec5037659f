package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSplitsOnWhitespace(t *testing.T) {
	st := Tokenize("Beit Sahour")
	assert.Equal(t, []string{"beit", "sahour"}, st.Tokens)
}

func TestTokenizeNGrams(t *testing.T) {
	st := Tokenize("Gaza")
	// 2-grams at every position, then 3-grams at every position.
	assert.Equal(t, []string{"ga", "az", "za", "gaz", "aza"}, st.NGrams)
}

func TestTokenizeKeepsDuplicateNGrams(t *testing.T) {
	st := Tokenize("aaa")
	assert.Equal(t, []string{"aa", "aa", "aaa"}, st.NGrams)
}

func TestTokenizeIdempotent(t *testing.T) {
	for _, name := range []string{"Ramallah", "Beit Sahour", "", "a", "Tel Aviv-Yafo"} {
		first := Tokenize(name)
		second := Tokenize(name)
		assert.Equal(t, first, second, "tokenize must be deterministic for %q", name)
	}
}

func TestTokenizeShortInput(t *testing.T) {
	st := Tokenize("a")
	assert.Equal(t, []string{"a"}, st.Tokens)
	assert.Empty(t, st.NGrams)
}

func TestTokenCacheSharesResults(t *testing.T) {
	cache := NewTokenCache(16)
	first := cache.Get("ramallah")
	second := cache.Get("ramallah")
	require.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestTokenCacheEvictsFIFO(t *testing.T) {
	cache := NewTokenCache(2)
	a := cache.Get("aaa")
	cache.Get("bbb")
	cache.Get("ccc")

	assert.Equal(t, 2, cache.Len())

	// "aaa" was evicted, so a fresh value is computed.
	again := cache.Get("aaa")
	assert.NotSame(t, a, again)
	assert.Equal(t, *a, *again)
}

func TestTokenCacheClear(t *testing.T) {
	cache := NewTokenCache(8)
	cache.Get("ramallah")
	cache.Get("gaza")
	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestNewEntity(t *testing.T) {
	cache := NewTokenCache(8)
	e := New("Beit Sahour", TypeLocality, cache)

	assert.Equal(t, "Beit Sahour", e.Name)
	assert.Equal(t, "beit sahour", e.NameLower)
	assert.Equal(t, TypeLocality, e.Type)
	require.NotNil(t, e.Tokens)
	assert.Equal(t, []string{"beit", "sahour"}, e.Tokens.Tokens)

	// Equal names share one memoized token value.
	other := New("beit sahour", TypeSettlement, cache)
	assert.Same(t, e.Tokens, other.Tokens)
}

func TestTypeValid(t *testing.T) {
	for _, typ := range Types {
		assert.True(t, typ.Valid())
	}
	assert.False(t, Type("city").Valid())
	assert.False(t, Type("").Valid())
}
