package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/geosift/geosift/pkg/engine"
	"github.com/geosift/geosift/pkg/entity"
)

// defaultLimit caps search responses when the client sends none.
const defaultLimit = 24

// maxQueryLen rejects oversized queries before scoring them.
const maxQueryLen = 120

// Server handles the IPC for geographic search.
type Server struct {
	engine *engine.Engine
	dec    *msgpack.Decoder
	enc    *msgpack.Encoder
	logger *log.Logger
}

// NewServer creates a search server using stdin/stdout for IPC.
func NewServer(eng *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine: eng,
		dec:    msgpack.NewDecoder(os.Stdin),
		enc:    msgpack.NewEncoder(os.Stdout),
		logger: logger,
	}
}

// NewServerWithIO creates a server on explicit streams, for tests.
func NewServerWithIO(eng *engine.Engine, r io.Reader, w io.Writer, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine: eng,
		dec:    msgpack.NewDecoder(r),
		enc:    msgpack.NewEncoder(w),
		logger: logger,
	}
}

// Start signals readiness and processes requests until EOF.
func (s *Server) Start() error {
	s.logger.Debug("Starting server")
	s.send(StatusResponse{Status: "ready"})

	for {
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Errorf("Decoding request: %v", err)
			return err
		}
		s.handle(req)
	}
}

func (s *Server) handle(req Request) {
	switch req.Cmd {
	case "search":
		s.handleSearch(req)
	case "prefix":
		s.handlePrefix(req)
	case "select":
		s.handleSelect(req)
	case "recent":
		s.handleRecent(req)
	case "stats":
		s.send(StatsResponse{ID: req.ID, Stats: s.engine.Stats()})
	case "health":
		s.send(StatusResponse{ID: req.ID, Status: "ok"})
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown command: %s", req.Cmd), 400)
	}
}

func (s *Server) handleSearch(req Request) {
	if len(req.Query) > maxQueryLen {
		s.sendError(req.ID, "Query exceeds maximum length", 400)
		return
	}
	limit := req.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	start := time.Now()
	results := s.engine.Results(req.Query)
	elapsed := time.Since(start)

	if len(results) > limit {
		results = results[:limit]
	}
	rows := make([]ResultRow, len(results))
	for i, res := range results {
		rows[i] = ResultRow{
			Name:      res.Name,
			Type:      string(res.Type),
			Score:     res.Score,
			MatchType: string(res.MatchType),
			Recent:    res.IsRecent,
		}
	}

	s.send(SearchResponse{
		ID:        req.ID,
		Rows:      rows,
		Count:     len(rows),
		TimeTaken: elapsed.Microseconds(),
	})
}

// handlePrefix lists raw name completions from the trie, unscored.
func (s *Server) handlePrefix(req Request) {
	if req.Query == "" {
		s.sendError(req.ID, "Missing 'q' parameter", 400)
		return
	}
	limit := req.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	start := time.Now()
	var rows []ResultRow
	s.engine.Collection().VisitPrefix(strings.ToLower(req.Query), func(e *entity.Entity) bool {
		rows = append(rows, ResultRow{Name: e.Name, Type: string(e.Type), Score: 1})
		return len(rows) < limit
	})

	s.send(SearchResponse{
		ID:        req.ID,
		Rows:      rows,
		Count:     len(rows),
		TimeTaken: time.Since(start).Microseconds(),
	})
}

// handleSelect resolves a name against the collection, persists it as a
// recent search and echoes the committed row.
func (s *Server) handleSelect(req Request) {
	if req.Name == "" {
		s.sendError(req.ID, "Missing 'name' parameter", 400)
		return
	}
	e, ok := s.engine.Collection().Lookup(strings.ToLower(req.Name))
	if !ok {
		s.sendError(req.ID, fmt.Sprintf("Unknown entity: %s", req.Name), 404)
		return
	}

	s.engine.Recents().Add(req.Query, e.Name, e.Type)
	s.engine.ClearCaches()

	s.send(SelectResponse{
		ID:     req.ID,
		Status: "ok",
		Row:    ResultRow{Name: e.Name, Type: string(e.Type), Score: 1},
	})
}

func (s *Server) handleRecent(req Request) {
	switch req.Action {
	case "", "list":
		entries := s.engine.Recents().List()
		rows := make([]RecentRow, len(entries))
		for i, e := range entries {
			rows[i] = RecentRow{Term: e.Term, Name: e.Name, Type: string(e.Type), Timestamp: e.Timestamp}
		}
		s.send(RecentResponse{ID: req.ID, Status: "ok", Entries: rows})
	case "remove":
		if req.Name == "" {
			s.sendError(req.ID, "Missing 'name' parameter", 400)
			return
		}
		if !s.engine.Recents().Remove(req.Name) {
			s.sendError(req.ID, fmt.Sprintf("No recent entry: %s", req.Name), 404)
			return
		}
		s.send(RecentResponse{ID: req.ID, Status: "ok"})
	case "clear":
		s.engine.Recents().Clear()
		s.send(RecentResponse{ID: req.ID, Status: "ok"})
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown recent action: %s", req.Action), 400)
	}
}

func (s *Server) send(response any) {
	if err := s.enc.Encode(response); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int) {
	s.send(ErrorResponse{ID: id, Error: message, Code: code})
}
