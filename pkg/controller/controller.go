// Package controller implements the input and keyboard state machine over the
// search core: debounced queries, circular result navigation, selection
// dispatch into the host, and coalesced rendering.
package controller

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/pkg/entity"
	"github.com/geosift/geosift/pkg/recent"
)

// State of the input machine.
type State int

const (
	StateIdle State = iota
	StateShowingResults
	StateNavigating
)

// Key identifies the keyboard events the controller understands.
type Key int

const (
	KeyArrowDown Key = iota
	KeyArrowUp
	KeyHome
	KeyEnd
	KeyEnter
	KeyEscape
	KeyDelete
	KeyBackspace
)

// Default timings.
const (
	DefaultDebounce   = 50 * time.Millisecond
	defaultBlurGrace  = 150 * time.Millisecond
	defaultGuardDelay = 250 * time.Millisecond
)

// Source produces ranked results for a query. The engine implements it.
type Source interface {
	Results(query string) []entity.ScoredResult
	ClearCaches()
}

// SelectionHandlers are the five host callbacks, one per taxonomy level.
// Exactly one fires per selection; the core hands over only the result row.
type SelectionHandlers struct {
	Region     func(res entity.ScoredResult)
	Subregion  func(res entity.ScoredResult)
	Locality   func(res entity.ScoredResult)
	Settlement func(res entity.ScoredResult)
	Territory  func(res entity.ScoredResult)
}

func (h SelectionHandlers) dispatch(res entity.ScoredResult) {
	var fn func(entity.ScoredResult)
	switch res.Type {
	case entity.TypeRegion:
		fn = h.Region
	case entity.TypeSubregion:
		fn = h.Subregion
	case entity.TypeLocality:
		fn = h.Locality
	case entity.TypeSettlement:
		fn = h.Settlement
	case entity.TypeTerritory:
		fn = h.Territory
	}
	if fn != nil {
		fn(res)
	}
}

// Options tunes the controller's timers.
type Options struct {
	Debounce      time.Duration
	BlurGrace     time.Duration
	GuardDelay    time.Duration
	FrameInterval time.Duration
}

// Controller is the input state machine. All entry points are safe for
// concurrent use; timer callbacks re-enter under the same mutex.
type Controller struct {
	mu       sync.Mutex
	source   Source
	recents  *recent.Store
	view     View
	handlers SelectionHandlers
	logger   *log.Logger

	debounce   time.Duration
	blurGrace  time.Duration
	guardDelay time.Duration

	state    State
	open     bool
	query    string
	items    []entity.ScoredResult
	rendered []entity.ScoredResult
	active   int

	clicking    bool
	markerGuard bool

	debounceTimer *time.Timer
	sched         *frameScheduler
}

// New creates a controller wired to a source, recent store, view and the
// five selection handlers.
func New(source Source, recents *recent.Store, view View, handlers SelectionHandlers, opts Options, logger *log.Logger) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BlurGrace <= 0 {
		opts.BlurGrace = defaultBlurGrace
	}
	if opts.GuardDelay <= 0 {
		opts.GuardDelay = defaultGuardDelay
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{
		source:     source,
		recents:    recents,
		view:       view,
		handlers:   handlers,
		logger:     logger,
		debounce:   opts.Debounce,
		blurGrace:  opts.BlurGrace,
		guardDelay: opts.GuardDelay,
		active:     -1,
	}
	c.sched = newFrameScheduler(opts.FrameInterval, c.flushFrame)
	return c
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open reports whether the dropdown is showing.
func (c *Controller) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// ActiveIndex returns the highlighted item index, -1 when none.
func (c *Controller) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Items returns a copy of the current result rows.
func (c *Controller) Items() []entity.ScoredResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.ScoredResult, len(c.items))
	copy(out, c.items)
	return out
}

// MarkerGuardActive reports whether a selection just happened; the host uses
// it to suppress the map click that follows a marker selection.
func (c *Controller) MarkerGuardActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markerGuard
}

// Input handles a text change. Rapid keystrokes coalesce: each call cancels
// the previous pending timer, so only the last value of a burst is scored.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = text
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.debounce, func() {
		c.runSearch(text)
	})
}

// Focus handles the input gaining focus. A non-empty existing value shows
// results immediately, without the debounce.
func (c *Controller) Focus(text string) {
	c.mu.Lock()
	c.query = text
	c.mu.Unlock()
	c.runSearch(text)
}

// runSearch executes the scoring pass and opens the dropdown.
func (c *Controller) runSearch(query string) {
	results := c.source.Results(query)

	c.mu.Lock()
	if query != c.query {
		// A newer input superseded this pass while it ran.
		c.mu.Unlock()
		return
	}
	c.items = results
	c.active = -1
	c.open = true
	c.state = StateShowingResults
	c.scheduleRenderLocked()
	c.mu.Unlock()
}

// KeyPress handles one keyboard event.
func (c *Controller) KeyPress(key Key, ctrl bool) {
	c.mu.Lock()

	if !c.open {
		c.mu.Unlock()
		return
	}

	switch key {
	case KeyArrowDown:
		c.moveActiveLocked(+1)
		c.mu.Unlock()
	case KeyArrowUp:
		c.moveActiveLocked(-1)
		c.mu.Unlock()
	case KeyHome:
		if len(c.items) > 0 {
			c.setActiveLocked(0)
		}
		c.mu.Unlock()
	case KeyEnd:
		if len(c.items) > 0 {
			c.setActiveLocked(len(c.items) - 1)
		}
		c.mu.Unlock()
	case KeyEnter:
		idx := c.active
		c.mu.Unlock()
		if idx >= 0 {
			c.Select(idx)
		}
	case KeyEscape:
		c.hideLocked()
		c.mu.Unlock()
		c.view.Blur()
	case KeyDelete, KeyBackspace:
		idx := c.active
		isRecent := ctrl && idx >= 0 && idx < len(c.items) && c.items[idx].IsRecent
		c.mu.Unlock()
		if isRecent {
			c.removeRecentAt(idx)
		}
	default:
		c.mu.Unlock()
	}
}

// moveActiveLocked steps the highlight circularly: past the last item wraps
// to the first and vice versa.
func (c *Controller) moveActiveLocked(delta int) {
	n := len(c.items)
	if n == 0 {
		return
	}
	var next int
	switch {
	case c.active < 0 && delta > 0:
		next = 0
	case c.active < 0 && delta < 0:
		next = n - 1
	default:
		next = ((c.active+delta)%n + n) % n
	}
	c.setActiveLocked(next)
}

func (c *Controller) setActiveLocked(index int) {
	c.active = index
	c.state = StateNavigating
	c.scheduleRenderLocked()
}

// Click handles a pointer selection on a rendered item. Ctrl+Click on a
// recent entry removes it instead of selecting.
func (c *Controller) Click(index int, ctrl bool) {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return
	}
	isRecent := c.items[index].IsRecent
	c.mu.Unlock()

	if ctrl && isRecent {
		c.removeRecentAt(index)
		return
	}
	c.Select(index)
}

// SetClicking marks an in-progress item press so the blur that precedes the
// click event does not hide the dropdown underneath it.
func (c *Controller) SetClicking(v bool) {
	c.mu.Lock()
	c.clicking = v
	c.mu.Unlock()
}

// Blur hides the dropdown after a short grace delay, unless an item click is
// in progress.
func (c *Controller) Blur() {
	c.mu.Lock()
	if c.clicking {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	time.AfterFunc(c.blurGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.clicking {
			c.hideLocked()
		}
	})
}

// Select commits the item at index: persists it as a recent search (unless
// the item is itself a recent entry), clears scoring caches, fires exactly
// one per-type host callback, and raises the marker guard briefly.
func (c *Controller) Select(index int) {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return
	}
	item := c.items[index]
	query := c.query
	c.markerGuard = true
	c.hideLocked()
	c.mu.Unlock()

	if !item.IsRecent {
		c.recents.Add(query, item.Name, item.Type)
	}
	c.source.ClearCaches()
	c.handlers.dispatch(item)

	time.AfterFunc(c.guardDelay, func() {
		c.mu.Lock()
		c.markerGuard = false
		c.mu.Unlock()
	})
}

// removeRecentAt drops a recent entry and refreshes the list if still open.
func (c *Controller) removeRecentAt(index int) {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) || !c.items[index].IsRecent {
		c.mu.Unlock()
		return
	}
	name := c.items[index].Name
	query := c.query
	open := c.open
	c.mu.Unlock()

	c.recents.Remove(name)
	if open {
		c.runSearch(query)
	}
}

// hideLocked closes the dropdown and resets the machine. Caller holds mu.
func (c *Controller) hideLocked() {
	c.open = false
	c.active = -1
	c.state = StateIdle
	c.view.Hide()
}

// scheduleRenderLocked queues a coalesced render of the current items.
// Caller holds mu.
func (c *Controller) scheduleRenderLocked() {
	items := make([]entity.ScoredResult, len(c.items))
	copy(items, c.items)
	c.sched.schedule(frame{
		items:     items,
		active:    c.active,
		query:     c.query,
		noResults: len(items) == 0 && c.query != "",
	})
}

// flushFrame applies one coalesced frame to the view, choosing between the
// full rebuild and the highlight-only partial update.
func (c *Controller) flushFrame(f frame) {
	if f.noResults {
		c.mu.Lock()
		c.rendered = nil
		c.mu.Unlock()
		c.view.RenderNoResults(f.query)
		return
	}

	c.mu.Lock()
	full := ShouldFullRender(f.items, c.rendered)
	c.rendered = f.items
	c.mu.Unlock()

	if !full {
		if u, ok := c.view.(ActiveUpdater); ok {
			u.UpdateActive(f.active)
			return
		}
	}
	c.view.RenderResults(f.items, f.active)
}
