package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/geosift/geosift/pkg/entity"
	"github.com/geosift/geosift/pkg/storage"
)

// LoaderOptions configures processing policy and fetch behavior.
type LoaderOptions struct {
	// SyncThreshold is the feature count below which processing stays on the
	// caller's goroutine. Zero keeps DefaultSyncThreshold.
	SyncThreshold int
	// WorkerTimeout bounds pooled task waits. Zero keeps DefaultWorkerTimeout.
	WorkerTimeout time.Duration
	// PoolSize sizes the worker pool; zero derives it from the CPU count.
	PoolSize int
	// HTTPClient overrides the fetch client, mainly for tests.
	HTTPClient *http.Client
}

// Loader fetches raw feature collections and turns them into entities.
//
// The worker pool is created lazily on the first large dataset; any creation
// or runtime failure permanently falls back to synchronous processing for
// the rest of the session. Fetches of the same URL are deduplicated so
// concurrent callers share one in-flight request.
type Loader struct {
	cache  *storage.Cache
	tokens *entity.TokenCache
	client *http.Client
	group  singleflight.Group
	logger *log.Logger

	syncProc      *SyncProcessor
	syncThreshold int
	poolSize      int
	timeout       time.Duration

	workerMu     sync.Mutex
	worker       *WorkerProcessor
	workerBroken bool

	syncRuns   atomic.Int64
	workerRuns atomic.Int64
}

// NewLoader creates a loader. cache may be nil to disable caching entirely.
func NewLoader(cache *storage.Cache, tokens *entity.TokenCache, opts LoaderOptions, logger *log.Logger) *Loader {
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = DefaultSyncThreshold
	}
	if opts.WorkerTimeout <= 0 {
		opts.WorkerTimeout = DefaultWorkerTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	if tokens == nil {
		tokens = entity.NewTokenCache(0)
	}
	return &Loader{
		cache:         cache,
		tokens:        tokens,
		client:        opts.HTTPClient,
		logger:        logger,
		syncProc:      NewSyncProcessor(tokens),
		syncThreshold: opts.SyncThreshold,
		poolSize:      opts.PoolSize,
		timeout:       opts.WorkerTimeout,
	}
}

// ProcessData converts a feature collection into entities, picking the
// processing strategy by dataset size. A pooled task timeout propagates to
// the caller; any other worker failure falls back to synchronous processing
// and disables the pool for the session.
func (l *Loader) ProcessData(typ entity.Type, fc *FeatureCollection) ([]entity.Entity, error) {
	proc := l.chooseProcessor(len(fc.Features))
	if _, sync := proc.(*SyncProcessor); sync {
		l.syncRuns.Add(1)
		return proc.Process(typ, fc)
	}

	l.workerRuns.Add(1)
	ents, err := proc.Process(typ, fc)
	if err == nil {
		return ents, nil
	}
	if errors.Is(err, ErrTaskTimeout) {
		return nil, err
	}

	l.logger.Warnf("Worker processing failed, using sync fallback for the session: %v", err)
	l.disableWorker()
	l.syncRuns.Add(1)
	return l.syncProc.Process(typ, fc)
}

// chooseProcessor is the size policy over the two strategies.
func (l *Loader) chooseProcessor(featureCount int) Processor {
	if featureCount < l.syncThreshold {
		return l.syncProc
	}

	l.workerMu.Lock()
	defer l.workerMu.Unlock()

	if l.workerBroken {
		return l.syncProc
	}
	if l.worker == nil {
		w, err := NewWorkerProcessor(l.poolSize, l.tokens, l.timeout, l.logger)
		if err != nil {
			l.logger.Warnf("Worker pool creation failed, sync processing for the session: %v", err)
			l.workerBroken = true
			return l.syncProc
		}
		l.worker = w
	}
	return l.worker
}

func (l *Loader) disableWorker() {
	l.workerMu.Lock()
	defer l.workerMu.Unlock()
	l.workerBroken = true
	if l.worker != nil {
		l.worker.Release()
		l.worker = nil
	}
}

// FetchCollection downloads and decodes a feature collection. Concurrent
// calls for the same URL share one request and one result.
func (l *Loader) FetchCollection(ctx context.Context, url string) (*FeatureCollection, error) {
	v, err, _ := l.group.Do(url, func() (any, error) {
		return l.fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FeatureCollection), nil
}

func (l *Loader) fetch(ctx context.Context, url string) (*FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	var fc FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return &fc, nil
}

// Load returns the entities for one taxonomy level. Fresh cached data skips
// the network; a failed fetch falls back to a stale cached copy when one
// exists, and to an empty slice otherwise. Load never returns a fatal error
// for network problems.
func (l *Loader) Load(ctx context.Context, typ entity.Type, storeName, url string) ([]entity.Entity, error) {
	var cached FeatureCollection
	if l.cache != nil && l.cache.IsDataFresh(url) && l.cache.Get(storeName, &cached) {
		l.logger.Debugf("Using fresh cached dataset %s", storeName)
		return l.ProcessData(typ, &cached)
	}

	fetched, err := l.FetchCollection(ctx, url)
	if err != nil {
		l.logger.Warnf("Fetch failed for %s: %v", storeName, err)
		if l.cache != nil && l.cache.Get(storeName, &cached) {
			l.logger.Debugf("Falling back to stale cached dataset %s", storeName)
			return l.ProcessData(typ, &cached)
		}
		return []entity.Entity{}, nil
	}

	if l.cache != nil {
		l.cache.Set(storeName, fetched, url)
	}
	return l.ProcessData(typ, fetched)
}

// Stats reports processing path counters and pool state.
func (l *Loader) Stats() map[string]int {
	l.workerMu.Lock()
	broken := l.workerBroken
	pending := 0
	if l.worker != nil {
		pending = l.worker.Pending()
	}
	l.workerMu.Unlock()

	stats := map[string]int{
		"syncRuns":    int(l.syncRuns.Load()),
		"workerRuns":  int(l.workerRuns.Load()),
		"pendingTask": pending,
	}
	if broken {
		stats["workerBroken"] = 1
	}
	return stats
}

// Close releases the worker pool if one was created.
func (l *Loader) Close() {
	l.workerMu.Lock()
	defer l.workerMu.Unlock()
	if l.worker != nil {
		l.worker.Release()
		l.worker = nil
	}
}
