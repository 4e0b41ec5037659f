package dataset

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"

	"github.com/geosift/geosift/pkg/entity"
)

const (
	// DefaultSyncThreshold: collections below this size are processed on the
	// caller's goroutine; handing them to the pool costs more than the work.
	DefaultSyncThreshold = 100

	// DefaultWorkerTimeout bounds how long a caller waits on a pooled task.
	DefaultWorkerTimeout = 15 * time.Second
)

// ErrTaskTimeout signals that a pooled processing task exceeded its deadline.
// Only the waiting call fails; the task itself keeps running to completion
// and its late result is dropped.
var ErrTaskTimeout = errors.New("dataset: processing task timed out")

// Processor converts a feature collection into entities. The two strategies
// are interchangeable so each can be tested apart from the size policy.
type Processor interface {
	Process(typ entity.Type, fc *FeatureCollection) ([]entity.Entity, error)
}

// SyncProcessor converts features on the caller's goroutine.
type SyncProcessor struct {
	tokens *entity.TokenCache
}

// NewSyncProcessor creates the synchronous strategy.
func NewSyncProcessor(tokens *entity.TokenCache) *SyncProcessor {
	return &SyncProcessor{tokens: tokens}
}

func (p *SyncProcessor) Process(typ entity.Type, fc *FeatureCollection) ([]entity.Entity, error) {
	return convertFeatures(typ, fc, p.tokens), nil
}

type taskResult struct {
	entities []entity.Entity
}

// WorkerProcessor converts features on a goroutine pool, correlating each
// request by a monotonically increasing task id. A task that misses its
// deadline is dropped from the pending map and its caller gets
// ErrTaskTimeout; the pool goroutine is never killed.
type WorkerProcessor struct {
	pool    *ants.Pool
	tokens  *entity.TokenCache
	timeout time.Duration
	convert func(entity.Type, *FeatureCollection, *entity.TokenCache) []entity.Entity
	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan taskResult
	logger  *log.Logger
}

// NewWorkerProcessor creates the pooled strategy. poolSize <= 0 sizes the
// pool from the CPU count.
func NewWorkerProcessor(poolSize int, tokens *entity.TokenCache, timeout time.Duration, logger *log.Logger) (*WorkerProcessor, error) {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
	}
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}
	if logger == nil {
		logger = log.Default()
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &WorkerProcessor{
		pool:    pool,
		tokens:  tokens,
		timeout: timeout,
		convert: convertFeatures,
		pending: make(map[uint64]chan taskResult),
		logger:  logger,
	}, nil
}

func (p *WorkerProcessor) Process(typ entity.Type, fc *FeatureCollection) ([]entity.Entity, error) {
	id := p.nextID.Add(1)
	ch := make(chan taskResult, 1)

	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		ents := p.convert(typ, fc, p.tokens)
		p.complete(id, taskResult{entities: ents})
	})
	if err != nil {
		p.drop(id)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.entities, nil
	case <-time.After(p.timeout):
		p.drop(id)
		p.logger.Warnf("Processing task %d timed out after %s", id, p.timeout)
		return nil, ErrTaskTimeout
	}
}

// complete delivers a result if the task is still pending; a task that
// already timed out has no receiver and the result is discarded.
func (p *WorkerProcessor) complete(id uint64, res taskResult) {
	p.mu.Lock()
	ch, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if ok {
		ch <- res
	}
}

func (p *WorkerProcessor) drop(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// Pending reports how many tasks are awaiting completion.
func (p *WorkerProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Release shuts the pool down.
func (p *WorkerProcessor) Release() {
	p.pool.Release()
}
