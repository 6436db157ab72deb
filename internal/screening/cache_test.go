package screening

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource is a LocalSource with scripted fetch behavior and a call
// counter for cache-hit verification.
type fakeSource struct {
	name       string
	normalizer *Normalizer
	fetchCount atomic.Int64
	entities   []ListEntity
	err        error
	block      chan struct{} // when non-nil, FetchAndParse waits on it
}

func newFakeSource(name string, entities []ListEntity) *fakeSource {
	return &fakeSource{name: name, normalizer: NewWesternNormalizer(), entities: entities}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Normalizer() *Normalizer { return f.normalizer }

func (f *fakeSource) FetchAndParse(ctx context.Context) ([]ListEntity, error) {
	f.fetchCount.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

func testCache(ttl time.Duration) *ListCache {
	return NewListCache(ttl, time.Minute, nil, zap.NewNop().Sugar())
}

func TestListCache_SecondCallWithinTTLDoesNotRefetch(t *testing.T) {
	src := newFakeSource("test", []ListEntity{{Name: "ACME", Type: EntityTypeEntity}})
	cache := testCache(6 * time.Hour)

	first, stale := cache.GetOrRefresh(context.Background(), src)
	require.Len(t, first, 1)
	assert.False(t, stale)

	second, stale := cache.GetOrRefresh(context.Background(), src)
	assert.Len(t, second, 1)
	assert.False(t, stale)
	assert.Equal(t, int64(1), src.fetchCount.Load())
}

func TestListCache_ExpiredEntryTriggersExactlyOneFetch(t *testing.T) {
	src := newFakeSource("test", []ListEntity{{Name: "ACME", Type: EntityTypeEntity}})
	cache := testCache(time.Nanosecond)

	cache.GetOrRefresh(context.Background(), src)
	time.Sleep(time.Millisecond)
	cache.GetOrRefresh(context.Background(), src)

	assert.Equal(t, int64(2), src.fetchCount.Load())
}

func TestListCache_FailureWithNoPriorDataReturnsEmpty(t *testing.T) {
	src := newFakeSource("test", nil)
	src.err = errors.New("connection refused")
	cache := testCache(6 * time.Hour)

	entities, stale := cache.GetOrRefresh(context.Background(), src)
	assert.Empty(t, entities)
	assert.False(t, stale)
}

func TestListCache_FailureBackoffAvoidsHammering(t *testing.T) {
	src := newFakeSource("test", nil)
	src.err = errors.New("connection refused")
	cache := testCache(6 * time.Hour)

	cache.GetOrRefresh(context.Background(), src)
	cache.GetOrRefresh(context.Background(), src)
	cache.GetOrRefresh(context.Background(), src)

	assert.Equal(t, int64(1), src.fetchCount.Load())
}

func TestListCache_ServesStaleOnRefreshFailure(t *testing.T) {
	src := newFakeSource("test", []ListEntity{{Name: "ACME", Type: EntityTypeEntity}})
	cache := testCache(time.Nanosecond)

	entities, stale := cache.GetOrRefresh(context.Background(), src)
	require.Len(t, entities, 1)
	require.False(t, stale)

	// Entry is now past its TTL and the next refresh fails: the previous
	// complete list is served, flagged stale, never silently emptied.
	src.err = errors.New("gateway timeout")
	time.Sleep(time.Millisecond)

	entities, stale = cache.GetOrRefresh(context.Background(), src)
	assert.Len(t, entities, 1)
	assert.Equal(t, "ACME", entities[0].Name)
	assert.True(t, stale)
}

func TestListCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	src := newFakeSource("test", []ListEntity{{Name: "ACME", Type: EntityTypeEntity}})
	src.block = make(chan struct{})
	cache := testCache(6 * time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]ListEntity, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.GetOrRefresh(context.Background(), src)
		}(i)
	}

	// Let all callers queue up on the in-flight refresh, then release it.
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Equal(t, int64(1), src.fetchCount.Load())
	for i := 0; i < callers; i++ {
		assert.Len(t, results[i], 1)
	}
}

type fakeSnapshots struct {
	mu        sync.Mutex
	entities  map[string][]ListEntity
	fetchedAt map[string]time.Time
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{entities: map[string][]ListEntity{}, fetchedAt: map[string]time.Time{}}
}

func (s *fakeSnapshots) Load(_ context.Context, source string) ([]ListEntity, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[source]
	return e, s.fetchedAt[source], ok
}

func (s *fakeSnapshots) Save(_ context.Context, source string, fetchedAt time.Time, entities []ListEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[source] = entities
	s.fetchedAt[source] = fetchedAt
}

func TestListCache_FreshSnapshotAvoidsDownload(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.Save(context.Background(), "test", time.Now(), []ListEntity{{Name: "ACME", Type: EntityTypeEntity}})

	src := newFakeSource("test", nil)
	cache := NewListCache(6*time.Hour, time.Minute, snaps, zap.NewNop().Sugar())

	entities, stale := cache.GetOrRefresh(context.Background(), src)
	assert.Len(t, entities, 1)
	assert.False(t, stale)
	assert.Equal(t, int64(0), src.fetchCount.Load())
}

func TestListCache_ExpiredSnapshotStillFetches(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.Save(context.Background(), "test", time.Now().Add(-7*time.Hour), []ListEntity{{Name: "OLD", Type: EntityTypeEntity}})

	src := newFakeSource("test", []ListEntity{{Name: "NEW", Type: EntityTypeEntity}})
	cache := NewListCache(6*time.Hour, time.Minute, snaps, zap.NewNop().Sugar())

	entities, stale := cache.GetOrRefresh(context.Background(), src)
	assert.Equal(t, int64(1), src.fetchCount.Load())
	require.Len(t, entities, 1)
	assert.Equal(t, "NEW", entities[0].Name)
	assert.False(t, stale)

	// The fresh list was persisted back.
	saved, _, ok := snaps.Load(context.Background(), "test")
	require.True(t, ok)
	assert.Equal(t, "NEW", saved[0].Name)
}

func TestListCache_ExpiredSnapshotServedStaleWhenFetchFails(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.Save(context.Background(), "test", time.Now().Add(-7*time.Hour), []ListEntity{{Name: "OLD", Type: EntityTypeEntity}})

	src := newFakeSource("test", nil)
	src.err = errors.New("connection refused")
	cache := NewListCache(6*time.Hour, time.Minute, snaps, zap.NewNop().Sugar())

	entities, stale := cache.GetOrRefresh(context.Background(), src)
	require.Len(t, entities, 1)
	assert.Equal(t, "OLD", entities[0].Name)
	assert.True(t, stale)
}
