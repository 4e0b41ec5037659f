package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend errors on every operation.
type failingBackend struct{}

var errBroken = errors.New("backend broken")

func (failingBackend) Get(string) ([]byte, error)    { return nil, errBroken }
func (failingBackend) Set(string, []byte) error      { return errBroken }
func (failingBackend) Delete(string) error           { return errBroken }
func (failingBackend) Keys(string) ([]string, error) { return nil, errBroken }
func (failingBackend) Close() error                  { return nil }

func TestSafeStorageRoundTrip(t *testing.T) {
	s := NewSafeStorage(NewMemoryBackend(), DefaultTTLMinutes, nil)
	require.True(t, s.Available())

	assert.True(t, s.SetItem("mapCache_localities", []byte("payload")))
	value, ok := s.GetItem("mapCache_localities")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), value)

	assert.Equal(t, []string{"mapCache_localities"}, s.Keys(CacheKeyPrefix))

	assert.True(t, s.RemoveItem("mapCache_localities"))
	_, ok = s.GetItem("mapCache_localities")
	assert.False(t, ok)
}

func TestSafeStorageProbeFailureDegrades(t *testing.T) {
	s := NewSafeStorage(failingBackend{}, DefaultTTLMinutes, nil)
	assert.False(t, s.Available())

	// Every operation is a silent no-op, never a panic or error.
	assert.False(t, s.SetItem("k", []byte("v")))
	_, ok := s.GetItem("k")
	assert.False(t, ok)
	assert.False(t, s.RemoveItem("k"))
	assert.Nil(t, s.Keys(""))
}

func TestSafeStorageNilBackendDegrades(t *testing.T) {
	s := NewSafeStorage(nil, DefaultTTLMinutes, nil)
	assert.False(t, s.Available())
	assert.False(t, s.SetItem("k", []byte("v")))
}

func TestSafeStorageMissingKey(t *testing.T) {
	s := NewSafeStorage(NewMemoryBackend(), DefaultTTLMinutes, nil)
	_, ok := s.GetItem("absent")
	assert.False(t, ok)
	assert.True(t, s.RemoveItem("absent"), "deleting a missing key is not a failure")
}

// expiredRecord builds a cache record whose timestamp is long past the TTL,
// padded to the requested encoded size.
func expiredRecord(t *testing.T, size int) []byte {
	t.Helper()
	rec, err := json.Marshal(cacheRecord{Data: json.RawMessage(`""`), Timestamp: 0})
	require.NoError(t, err)
	require.LessOrEqual(t, len(rec), size)
	return append(rec, bytes.Repeat([]byte(" "), size-len(rec))...)
}

func TestSafeStorageQuotaSweepAndRetry(t *testing.T) {
	mem := NewMemoryBackend()
	quota := NewQuotaBackend(mem, 200)
	s := NewSafeStorage(quota, 60, nil)
	s.now = func() int64 { return 1_000_000_000 }

	// An expired record occupies most of the budget.
	require.True(t, s.SetItem(CacheKeyPrefix+"old", expiredRecord(t, 150)))

	// The next write would blow the budget; the sweep evicts the expired
	// record and the single retry succeeds.
	big := bytes.Repeat([]byte("x"), 120)
	assert.True(t, s.SetItem(CacheKeyPrefix+"new", big))

	_, ok := s.GetItem(CacheKeyPrefix + "old")
	assert.False(t, ok, "expired record was evicted")
	value, ok := s.GetItem(CacheKeyPrefix + "new")
	require.True(t, ok)
	assert.Equal(t, big, value)
}

func TestSafeStorageQuotaRetryFailure(t *testing.T) {
	mem := NewMemoryBackend()
	quota := NewQuotaBackend(mem, 200)
	s := NewSafeStorage(quota, 60, nil)
	now := int64(1_000_000_000)
	s.now = func() int64 { return now }

	// A fresh record fills the budget and survives the sweep.
	fresh, err := json.Marshal(cacheRecord{Data: json.RawMessage(`""`), Timestamp: now})
	require.NoError(t, err)
	fresh = append(fresh, bytes.Repeat([]byte(" "), 150-len(fresh))...)
	require.True(t, s.SetItem(CacheKeyPrefix+"fresh", fresh))

	// Sweep removes nothing, the retry fails, and the caller just gets false.
	assert.False(t, s.SetItem(CacheKeyPrefix+"new", bytes.Repeat([]byte("x"), 120)))
	_, ok := s.GetItem(CacheKeyPrefix + "fresh")
	assert.True(t, ok, "fresh records survive the sweep")
}

func TestSweepRemovesUnparseableRecords(t *testing.T) {
	mem := NewMemoryBackend()
	s := NewSafeStorage(mem, 60, nil)

	require.True(t, s.SetItem(CacheKeyPrefix+"bad", []byte("not json")))
	s.sweepExpired()

	_, ok := s.GetItem(CacheKeyPrefix + "bad")
	assert.False(t, ok)
}

func TestSweepIgnoresForeignKeys(t *testing.T) {
	mem := NewMemoryBackend()
	s := NewSafeStorage(mem, 60, nil)

	require.True(t, s.SetItem(RecentKey, []byte("not json either")))
	s.sweepExpired()

	_, ok := s.GetItem(RecentKey)
	assert.True(t, ok, "only cache and metadata records are swept")
}

func TestQuotaBackendAccounting(t *testing.T) {
	q := NewQuotaBackend(NewMemoryBackend(), 100)

	require.NoError(t, q.Set("a", bytes.Repeat([]byte("x"), 49))) // 50 bytes
	assert.Equal(t, 50, q.Used())

	// Overwrites replace the accounted size instead of adding to it.
	require.NoError(t, q.Set("a", bytes.Repeat([]byte("x"), 79))) // 80 bytes
	assert.Equal(t, 80, q.Used())

	err := q.Set("b", bytes.Repeat([]byte("x"), 50))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	require.NoError(t, q.Delete("a"))
	assert.Equal(t, 0, q.Used())
	require.NoError(t, q.Set("b", bytes.Repeat([]byte("x"), 50)))
}

func TestQuotaBackendUnlimited(t *testing.T) {
	q := NewQuotaBackend(NewMemoryBackend(), 0)
	for i := 0; i < 64; i++ {
		require.NoError(t, q.Set(fmt.Sprintf("k%d", i), bytes.Repeat([]byte("x"), 1024)))
	}
}
