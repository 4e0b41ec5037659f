package storage

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTTLMinutes is the dataset cache freshness window: seven days.
const DefaultTTLMinutes = 10080

// cacheRecord is the persisted payload under mapCache_<name>.
type cacheRecord struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// metaRecord is the sibling record under mapMeta_<hash(url)>. It exists so
// freshness checks never deserialize the potentially large data record.
type metaRecord struct {
	Timestamp int64 `json:"timestamp"`
	Size      int   `json:"size"`
}

// Cache is a TTL-keyed store of fetched datasets on top of SafeStorage.
// Staleness never deletes data by itself; it only signals that a refetch
// should be attempted, with the stale copy kept as a fallback.
type Cache struct {
	storage    *SafeStorage
	ttlMinutes int
	logger     *log.Logger
	now        func() int64
}

// NewCache creates a dataset cache with the given TTL in minutes.
func NewCache(s *SafeStorage, ttlMinutes int, logger *log.Logger) *Cache {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultTTLMinutes
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		storage:    s,
		ttlMinutes: ttlMinutes,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// IsDataFresh checks the metadata record for a URL against the TTL. It reads
// only the small metadata record, never the data payload. A record aged
// exactly the TTL counts as stale.
func (c *Cache) IsDataFresh(url string) bool {
	raw, ok := c.storage.GetItem(MetaKeyPrefix + Hash32(url))
	if !ok {
		return false
	}
	var meta metaRecord
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.logger.Debugf("Corrupt metadata for %s, treating as stale", url)
		c.storage.RemoveItem(MetaKeyPrefix + Hash32(url))
		return false
	}
	ttlMs := int64(c.ttlMinutes) * 60 * 1000
	return c.now()-meta.Timestamp < ttlMs
}

// Get reads a cached dataset into v. A corrupted record counts as a miss and
// the offending key is deleted.
func (c *Cache) Get(name string, v any) bool {
	key := CacheKeyPrefix + name
	raw, ok := c.storage.GetItem(key)
	if !ok {
		return false
	}
	var rec cacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warnf("Corrupt cache record %s, deleting: %v", key, err)
		c.storage.RemoveItem(key)
		return false
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		c.logger.Warnf("Corrupt cache payload %s, deleting: %v", key, err)
		c.storage.RemoveItem(key)
		return false
	}
	return true
}

// Set stores a dataset under name and records fetch metadata for its URL.
// The data and metadata writes are independent; a failure in between leaves
// the pair inconsistent, which the freshness re-check tolerates.
func (c *Cache) Set(name string, v any, url string) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Errorf("Failed to encode dataset %s: %v", name, err)
		return false
	}
	now := c.now()

	data, err := json.Marshal(cacheRecord{Data: payload, Timestamp: now})
	if err != nil {
		return false
	}
	if !c.storage.SetItem(CacheKeyPrefix+name, data) {
		return false
	}

	meta, err := json.Marshal(metaRecord{Timestamp: now, Size: len(payload)})
	if err != nil {
		return false
	}
	return c.storage.SetItem(MetaKeyPrefix+Hash32(url), meta)
}

// Clear removes every cache data and metadata record.
func (c *Cache) Clear() {
	for _, prefix := range []string{CacheKeyPrefix, MetaKeyPrefix} {
		for _, key := range c.storage.Keys(prefix) {
			c.storage.RemoveItem(key)
		}
	}
}

// Hash32 is a deterministic 32-bit string hash used to scramble URLs into
// storage keys. Not a security primitive.
func Hash32(s string) string {
	var h int32
	for i := 0; i < len(s); i++ {
		h = h*31 + int32(s[i])
	}
	return strconv.FormatUint(uint64(uint32(h)), 16)
}
