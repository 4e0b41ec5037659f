package controller

import (
	"sync"
	"time"

	"github.com/geosift/geosift/pkg/entity"
)

// View is the host-side result list. The core drives it but never reads it.
type View interface {
	// RenderResults replaces the visible list. activeIndex is -1 when no
	// item is highlighted.
	RenderResults(items []entity.ScoredResult, activeIndex int)
	// RenderNoResults shows the distinct empty state for a non-empty query.
	RenderNoResults(query string)
	// Hide closes the dropdown.
	Hide()
	// Blur removes focus from the input.
	Blur()
}

// ActiveUpdater is an optional View extension: when only the highlight moved,
// the controller calls UpdateActive instead of re-rendering the whole list.
type ActiveUpdater interface {
	UpdateActive(index int)
}

// ShouldFullRender decides between a full list rebuild and a partial update.
// A full render is needed when lengths differ, on first render, or when any
// item at the same index changed identity (name, type, recency).
func ShouldFullRender(newItems, oldItems []entity.ScoredResult) bool {
	if len(newItems) != len(oldItems) || len(oldItems) == 0 {
		return true
	}
	for i := range newItems {
		if newItems[i].Name != oldItems[i].Name ||
			newItems[i].Type != oldItems[i].Type ||
			newItems[i].IsRecent != oldItems[i].IsRecent {
			return true
		}
	}
	return false
}

// defaultFrameInterval approximates one display frame.
const defaultFrameInterval = 16 * time.Millisecond

// frame is one pending render: the data to show and how to show it.
type frame struct {
	items     []entity.ScoredResult
	active    int
	query     string
	noResults bool
}

// frameScheduler coalesces render requests: at most one frame is pending at
// a time, and requests arriving before it fires collapse into the latest.
type frameScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	pending  bool
	latest   frame
	flush    func(frame)
}

func newFrameScheduler(interval time.Duration, flush func(frame)) *frameScheduler {
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	return &frameScheduler{interval: interval, flush: flush}
}

func (fs *frameScheduler) schedule(f frame) {
	fs.mu.Lock()
	fs.latest = f
	if fs.pending {
		fs.mu.Unlock()
		return
	}
	fs.pending = true
	fs.mu.Unlock()

	time.AfterFunc(fs.interval, fs.fire)
}

func (fs *frameScheduler) fire() {
	fs.mu.Lock()
	f := fs.latest
	fs.pending = false
	fs.mu.Unlock()

	fs.flush(f)
}
