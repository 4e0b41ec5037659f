package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// Persisted key layout shared by the cache and the recent-search store.
const (
	CacheKeyPrefix = "mapCache_"
	MetaKeyPrefix  = "mapMeta_"
	RecentKey      = "recentSearches"
)

// probeKey is written and deleted once at construction to verify the backend.
const probeKey = "__storage_probe__"

// SafeStorage wraps a Backend and never surfaces storage failures to callers.
// If the construction probe fails, every operation becomes a silent no-op.
// A quota-rejected write triggers one eviction sweep of expired cache pairs
// and exactly one retry.
type SafeStorage struct {
	backend    Backend
	disabled   bool
	ttlMinutes int
	logger     *log.Logger
	now        func() int64
}

// NewSafeStorage probes the backend with a dummy write and delete. On probe
// failure the store degrades to non-persistent mode instead of erroring.
// ttlMinutes governs the age threshold of the quota eviction sweep.
func NewSafeStorage(backend Backend, ttlMinutes int, logger *log.Logger) *SafeStorage {
	if logger == nil {
		logger = log.Default()
	}
	s := &SafeStorage{
		backend:    backend,
		ttlMinutes: ttlMinutes,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}

	if backend == nil {
		s.disabled = true
		logger.Warn("No storage backend, persistence disabled")
		return s
	}
	if err := backend.Set(probeKey, []byte("1")); err != nil {
		s.disabled = true
		logger.Warnf("Storage probe write failed, persistence disabled: %v", err)
		return s
	}
	if err := backend.Delete(probeKey); err != nil {
		s.disabled = true
		logger.Warnf("Storage probe delete failed, persistence disabled: %v", err)
	}
	return s
}

// Available reports whether the backing store passed the probe.
func (s *SafeStorage) Available() bool {
	return !s.disabled
}

// GetItem reads a key. Returns false when storage is degraded, the key is
// missing, or the read fails.
func (s *SafeStorage) GetItem(key string) ([]byte, bool) {
	if s.disabled {
		return nil, false
	}
	value, err := s.backend.Get(key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Warnf("Storage read failed for %s: %v", key, err)
		}
		return nil, false
	}
	return value, true
}

// SetItem writes a key. On a quota rejection it sweeps expired cache pairs
// once and retries exactly once. Never panics; reports success as a bool.
func (s *SafeStorage) SetItem(key string, value []byte) bool {
	if s.disabled {
		return false
	}
	err := s.backend.Set(key, value)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		s.logger.Warnf("Storage write failed for %s: %v", key, err)
		return false
	}

	s.logger.Debugf("Quota exceeded writing %s, sweeping expired entries", key)
	s.sweepExpired()

	if err := s.backend.Set(key, value); err != nil {
		s.logger.Warnf("Storage write retry failed for %s: %v", key, err)
		return false
	}
	return true
}

// RemoveItem deletes a key, reporting success.
func (s *SafeStorage) RemoveItem(key string) bool {
	if s.disabled {
		return false
	}
	if err := s.backend.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		s.logger.Warnf("Storage delete failed for %s: %v", key, err)
		return false
	}
	return true
}

// Keys lists stored keys with a prefix. Empty on degraded storage.
func (s *SafeStorage) Keys(prefix string) []string {
	if s.disabled {
		return nil
	}
	keys, err := s.backend.Keys(prefix)
	if err != nil {
		s.logger.Warnf("Storage key scan failed for %s: %v", prefix, err)
		return nil
	}
	return keys
}

// timestamped extracts just the timestamp from a cache or metadata record.
type timestamped struct {
	Timestamp int64 `json:"timestamp"`
}

// sweepExpired removes every cache data and metadata record older than the
// TTL. Unparseable records are removed too; they can never be read back.
func (s *SafeStorage) sweepExpired() {
	ttlMs := int64(s.ttlMinutes) * 60 * 1000
	now := s.now()
	removed := 0

	for _, prefix := range []string{MetaKeyPrefix, CacheKeyPrefix} {
		for _, key := range s.Keys(prefix) {
			value, err := s.backend.Get(key)
			if err != nil {
				continue
			}
			var rec timestamped
			if err := json.Unmarshal(value, &rec); err != nil || now-rec.Timestamp >= ttlMs {
				if s.backend.Delete(key) == nil {
					removed++
				}
			}
		}
	}
	s.logger.Debugf("Eviction sweep removed %d entries", removed)
}
