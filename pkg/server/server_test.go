package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/geosift/geosift/pkg/engine"
	"github.com/geosift/geosift/pkg/entity"
	"github.com/geosift/geosift/pkg/storage"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(nil, storage.NewMemoryBackend(), nil)
	t.Cleanup(func() { eng.Close() })

	cache := entity.NewTokenCache(0)
	names := []string{"Ramallah", "Gaza", "Hebron", "Nablus"}
	ents := make([]entity.Entity, len(names))
	for i, name := range names {
		ents[i] = entity.New(name, entity.TypeLocality, cache)
	}
	eng.SetEntities(entity.TypeLocality, ents)
	return eng
}

// runRequests feeds encoded requests through a server and returns a decoder
// positioned after the ready banner.
func runRequests(t *testing.T, eng *engine.Engine, reqs ...Request) *msgpack.Decoder {
	t.Helper()

	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, req := range reqs {
		require.NoError(t, enc.Encode(req))
	}

	var out bytes.Buffer
	srv := NewServerWithIO(eng, &in, &out, nil)
	require.NoError(t, srv.Start())

	dec := msgpack.NewDecoder(&out)
	var ready StatusResponse
	require.NoError(t, dec.Decode(&ready))
	require.Equal(t, "ready", ready.Status)
	return dec
}

func TestServerSearch(t *testing.T) {
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "search", Query: "ramal"})

	var resp SearchResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "r1", resp.ID)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Ramallah", resp.Rows[0].Name)
	assert.Equal(t, "locality", resp.Rows[0].Type)
	assert.Equal(t, 0.9, resp.Rows[0].Score)
	assert.Equal(t, "prefix", resp.Rows[0].MatchType)
}

func TestServerSearchLimit(t *testing.T) {
	eng := testEngine(t)
	dec := runRequests(t, eng, Request{ID: "r1", Cmd: "search", Query: "a", Limit: 2})

	var resp SearchResponse
	require.NoError(t, dec.Decode(&resp))
	assert.LessOrEqual(t, resp.Count, 2)
}

func TestServerSearchTooLong(t *testing.T) {
	long := make([]byte, maxQueryLen+1)
	for i := range long {
		long[i] = 'a'
	}
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "search", Query: string(long)})

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, 400, resp.Code)
}

func TestServerPrefix(t *testing.T) {
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "prefix", Query: "Ram"})

	var resp SearchResponse
	require.NoError(t, dec.Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Ramallah", resp.Rows[0].Name)
}

func TestServerPrefixMissingQuery(t *testing.T) {
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "prefix"})

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, 400, resp.Code)
}

func TestServerSelectAndRecent(t *testing.T) {
	eng := testEngine(t)
	dec := runRequests(t, eng,
		Request{ID: "r1", Cmd: "select", Query: "ga", Name: "Gaza"},
		Request{ID: "r2", Cmd: "recent"},
		Request{ID: "r3", Cmd: "recent", Action: "remove", Name: "Gaza"},
		Request{ID: "r4", Cmd: "recent"},
	)

	var sel SelectResponse
	require.NoError(t, dec.Decode(&sel))
	assert.Equal(t, "ok", sel.Status)
	assert.Equal(t, "Gaza", sel.Row.Name)

	var list RecentResponse
	require.NoError(t, dec.Decode(&list))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "Gaza", list.Entries[0].Name)
	assert.Equal(t, "ga", list.Entries[0].Term)

	var removed RecentResponse
	require.NoError(t, dec.Decode(&removed))
	assert.Equal(t, "ok", removed.Status)

	var empty RecentResponse
	require.NoError(t, dec.Decode(&empty))
	assert.Empty(t, empty.Entries)
}

func TestServerSelectUnknownName(t *testing.T) {
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "select", Name: "Atlantis"})

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, 404, resp.Code)
}

func TestServerStatsAndHealth(t *testing.T) {
	dec := runRequests(t, testEngine(t),
		Request{ID: "r1", Cmd: "stats"},
		Request{ID: "r2", Cmd: "health"},
	)

	var stats StatsResponse
	require.NoError(t, dec.Decode(&stats))
	assert.Equal(t, 4, stats.Stats["locality"])

	var health StatusResponse
	require.NoError(t, dec.Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestServerUnknownCommand(t *testing.T) {
	dec := runRequests(t, testEngine(t), Request{ID: "r1", Cmd: "teleport"})

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "r1", resp.ID)
	assert.Equal(t, 400, resp.Code)
}
