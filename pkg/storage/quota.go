package storage

import (
	"errors"
	"sync"
)

// QuotaBackend wraps a Backend with a byte budget over key+value sizes.
// Writes that would exceed the budget fail with ErrQuotaExceeded so the
// SafeStorage eviction path can run.
type QuotaBackend struct {
	inner    Backend
	mu       sync.Mutex
	maxBytes int
	sizes    map[string]int
	used     int
}

var _ Backend = (*QuotaBackend)(nil)

// NewQuotaBackend wraps inner with a byte budget. Non-positive maxBytes
// disables the limit.
func NewQuotaBackend(inner Backend, maxBytes int) *QuotaBackend {
	return &QuotaBackend{
		inner:    inner,
		maxBytes: maxBytes,
		sizes:    make(map[string]int),
	}
}

func (q *QuotaBackend) Get(key string) ([]byte, error) {
	return q.inner.Get(key)
}

func (q *QuotaBackend) Set(key string, value []byte) error {
	size := len(key) + len(value)

	q.mu.Lock()
	if q.maxBytes > 0 && q.used-q.sizes[key]+size > q.maxBytes {
		q.mu.Unlock()
		return ErrQuotaExceeded
	}
	q.mu.Unlock()

	if err := q.inner.Set(key, value); err != nil {
		return err
	}

	q.mu.Lock()
	q.used += size - q.sizes[key]
	q.sizes[key] = size
	q.mu.Unlock()
	return nil
}

func (q *QuotaBackend) Delete(key string) error {
	if err := q.inner.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	q.mu.Lock()
	q.used -= q.sizes[key]
	delete(q.sizes, key)
	q.mu.Unlock()
	return nil
}

func (q *QuotaBackend) Keys(prefix string) ([]string, error) {
	return q.inner.Keys(prefix)
}

func (q *QuotaBackend) Close() error {
	return q.inner.Close()
}

// Used reports the currently accounted bytes.
func (q *QuotaBackend) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
