/*
Package server implements msgpack IPC for the geographic search engine.

The server operates on a request/response model: clients send structured
messages via stdin and receive responses through stdout. Every message
carries an id field the response echoes back.

A search request scores the loaded taxonomy against a query:

	{"id": "req_001", "cmd": "search", "q": "ramal", "l": 20}

The response holds ranked rows with scores and match kinds:

	{"id": "req_001", "rows": [{"n": "Ramallah", "t": "locality", "s": 0.9, "m": "prefix"}], "c": 1, "tt": 120}

An empty query returns the default view: recent searches first, then a
rotating sample of each taxonomy level.

"prefix" lists raw name completions straight from the name index, "select"
commits a selection (persisting it as a recent search), and "recent" manages
the stored list with the actions list, remove and clear. "stats" and
"health" report engine state.

msgpack keeps messages compact and cheap to parse compared to JSON; the
binary framing needs no per-line delimiting.
*/
package server

// Request is the single envelope for every client message.
type Request struct {
	ID     string `msgpack:"id"`
	Cmd    string `msgpack:"cmd"`
	Query  string `msgpack:"q,omitempty"`
	Limit  int    `msgpack:"l,omitempty"`
	Name   string `msgpack:"name,omitempty"`
	Action string `msgpack:"action,omitempty"`
}

// ResultRow is one ranked entity in a search response.
type ResultRow struct {
	Name      string  `msgpack:"n"`
	Type      string  `msgpack:"t"`
	Score     float64 `msgpack:"s"`
	MatchType string  `msgpack:"m,omitempty"`
	Recent    bool    `msgpack:"r,omitempty"`
}

// SearchResponse answers search and prefix requests.
type SearchResponse struct {
	ID        string      `msgpack:"id"`
	Rows      []ResultRow `msgpack:"rows"`
	Count     int         `msgpack:"c"`
	TimeTaken int64       `msgpack:"tt"`
}

// RecentRow is one stored recent search.
type RecentRow struct {
	Term      string `msgpack:"term"`
	Name      string `msgpack:"name"`
	Type      string `msgpack:"type"`
	Timestamp int64  `msgpack:"ts"`
}

// RecentResponse answers recent-list management requests.
type RecentResponse struct {
	ID      string      `msgpack:"id"`
	Status  string      `msgpack:"status"`
	Entries []RecentRow `msgpack:"entries,omitempty"`
}

// SelectResponse confirms a committed selection.
type SelectResponse struct {
	ID     string    `msgpack:"id"`
	Status string    `msgpack:"status"`
	Row    ResultRow `msgpack:"row"`
}

// StatsResponse reports engine counters.
type StatsResponse struct {
	ID    string         `msgpack:"id"`
	Stats map[string]int `msgpack:"stats"`
}

// StatusResponse answers health checks.
type StatusResponse struct {
	ID     string `msgpack:"id"`
	Status string `msgpack:"status"`
}

// ErrorResponse carries request failures.
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
