// Package cli handles command line input for testing and debugging searches
// without a connected host.
package cli

import (
	"bufio"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/internal/logger"
	"github.com/geosift/geosift/pkg/engine"
)

// InputHandler reads queries from stdin and prints ranked results.
type InputHandler struct {
	engine       *engine.Engine
	out          *log.Logger
	limit        int
	maxQueryLen  int
	requestCount int
}

// NewInputHandler creates the interactive handler.
func NewInputHandler(eng *engine.Engine, limit, maxQueryLen int) *InputHandler {
	if limit < 1 {
		limit = 15
	}
	if maxQueryLen < 1 {
		maxQueryLen = 120
	}
	return &InputHandler{
		engine:      eng,
		out:         logger.Quiet("cli"),
		limit:       limit,
		maxQueryLen: maxQueryLen,
	}
}

// Start runs the interface loop until stdin closes.
func (h *InputHandler) Start() error {
	h.out.Print("geosift CLI")
	h.out.Print("type a place name and press Enter (empty line for the default view, Ctrl+C to exit):")
	reader := bufio.NewReader(os.Stdin)

	for {
		h.out.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		h.handleInput(strings.TrimRight(line, "\r\n"))
	}
}

func (h *InputHandler) handleInput(query string) {
	h.requestCount++

	if len(query) > h.maxQueryLen {
		h.out.Errorf("Query too long: %d chars", len(query))
		return
	}

	results := h.engine.Results(query)
	if len(results) == 0 {
		h.out.Printf("no results for %q", query)
		return
	}
	if len(results) > h.limit {
		results = results[:h.limit]
	}

	for i, res := range results {
		marker := ""
		if res.IsRecent {
			marker = " (recent)"
		}
		h.out.Printf("%2d. %-28s %-10s %.2f %s%s", i+1, res.Name, res.Type, res.Score, res.MatchType, marker)
	}
}
