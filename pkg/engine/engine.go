// Package engine assembles the search core: storage, dataset cache, loader,
// entity collection, ranker and recent-search store behind one value with no
// global state.
package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/internal/logger"
	"github.com/geosift/geosift/pkg/config"
	"github.com/geosift/geosift/pkg/controller"
	"github.com/geosift/geosift/pkg/dataset"
	"github.com/geosift/geosift/pkg/entity"
	"github.com/geosift/geosift/pkg/recent"
	"github.com/geosift/geosift/pkg/search"
	"github.com/geosift/geosift/pkg/storage"
)

// Engine is the assembled search core. It implements controller.Source.
type Engine struct {
	cfg     *config.Config
	backend storage.Backend
	safe    *storage.SafeStorage
	cache   *storage.Cache
	tokens  *entity.TokenCache
	col     *search.Collection
	ranker  *search.Ranker
	recents *recent.Store
	loader  *dataset.Loader
	logger  *log.Logger
}

var _ controller.Source = (*Engine)(nil)

// New builds an engine over an already-open backend. A nil backend degrades
// to non-persistent mode through the SafeStorage probe.
func New(cfg *config.Config, backend storage.Backend, lg *log.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if lg == nil {
		lg = logger.New("engine")
	}

	if cfg.Cache.MaxBytes > 0 && backend != nil {
		backend = storage.NewQuotaBackend(backend, cfg.Cache.MaxBytes)
	}

	safe := storage.NewSafeStorage(backend, cfg.Cache.TTLMinutes, lg)
	cache := storage.NewCache(safe, cfg.Cache.TTLMinutes, lg)
	tokens := entity.NewTokenCache(0)
	col := search.NewCollection(lg)

	return &Engine{
		cfg:     cfg,
		backend: backend,
		safe:    safe,
		cache:   cache,
		tokens:  tokens,
		col:     col,
		ranker: search.NewRanker(col, search.RankerOptions{
			MaxResults:     cfg.Search.MaxResults,
			ScoreThreshold: cfg.Search.ScoreThreshold,
			Fuzzy:          cfg.Search.Fuzzy,
		}, lg),
		recents: recent.NewStore(safe, cfg.Search.MaxRecent, lg),
		loader: dataset.NewLoader(cache, tokens, dataset.LoaderOptions{
			SyncThreshold: cfg.Processor.SyncThreshold,
			WorkerTimeout: cfg.Processor.WorkerTimeout(),
			PoolSize:      cfg.Processor.PoolSize,
		}, lg),
		logger: lg,
	}
}

// Open builds an engine with a badger backend per the storage config. A
// backend that fails to open degrades to non-persistent mode rather than
// failing the engine.
func Open(cfg *config.Config, lg *log.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if lg == nil {
		lg = logger.New("engine")
	}

	backend, err := storage.OpenBadger(cfg.Storage.Dir, cfg.Storage.InMemory, lg)
	if err != nil {
		lg.Warnf("Storage open failed, running without persistence: %v", err)
		return New(cfg, nil, lg)
	}
	return New(cfg, backend, lg)
}

// Results ranks the current collection for a query, merging stored recent
// searches into the empty-query default view.
func (e *Engine) Results(query string) []entity.ScoredResult {
	return e.ranker.Rank(query, e.recents.Results())
}

// ClearCaches drops memoized query results, e.g. after a selection.
func (e *Engine) ClearCaches() {
	e.ranker.ClearCache()
}

// SetEntities replaces one taxonomy level and invalidates query memos.
func (e *Engine) SetEntities(typ entity.Type, ents []entity.Entity) {
	e.col.SetEntities(typ, ents)
	e.ranker.ClearCache()
}

// LoadDatasets loads every configured dataset. Individual failures degrade
// to empty slices inside the loader; only config mistakes error out.
func (e *Engine) LoadDatasets(ctx context.Context) error {
	for _, ds := range e.cfg.Datasets {
		typ := entity.Type(ds.Type)
		if !typ.Valid() {
			return fmt.Errorf("unknown dataset type %q", ds.Type)
		}
		ents, err := e.loader.Load(ctx, typ, ds.Name, ds.URL)
		if err != nil {
			e.logger.Warnf("Dataset %s failed to process: %v", ds.Name, err)
			continue
		}
		e.SetEntities(typ, ents)
	}
	return nil
}

// NewController wires a controller around this engine.
func (e *Engine) NewController(view controller.View, handlers controller.SelectionHandlers) *controller.Controller {
	return controller.New(e, e.recents, view, handlers, controller.Options{
		Debounce: e.cfg.Search.DebounceDuration(),
	}, logger.New("input"))
}

// Recents exposes the recent-search store.
func (e *Engine) Recents() *recent.Store { return e.recents }

// Collection exposes the loaded entities.
func (e *Engine) Collection() *search.Collection { return e.col }

// Loader exposes the dataset loader.
func (e *Engine) Loader() *dataset.Loader { return e.loader }

// Cache exposes the dataset cache.
func (e *Engine) Cache() *storage.Cache { return e.cache }

// Stats merges collection, loader and recency counters.
func (e *Engine) Stats() map[string]int {
	stats := e.col.Stats()
	for k, v := range e.loader.Stats() {
		stats[k] = v
	}
	stats["recentSearches"] = e.recents.Len()
	if e.safe.Available() {
		stats["storage"] = 1
	} else {
		stats["storage"] = 0
	}
	return stats
}

// Close releases the worker pool and the storage backend.
func (e *Engine) Close() error {
	e.loader.Close()
	if e.backend != nil {
		return e.backend.Close()
	}
	return nil
}
