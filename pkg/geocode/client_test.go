package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/roofsignal/permit-ingest/internal/model"
)

// memCacheStore is an in-memory CacheStore for tests.
type memCacheStore struct {
	mu      sync.Mutex
	entries map[string]model.GeocodeEntry
	puts    int
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{entries: make(map[string]model.GeocodeEntry)}
}

func (m *memCacheStore) GetGeocode(_ context.Context, address string) (*model.GeocodeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[address]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memCacheStore) PutGeocode(_ context.Context, entry model.GeocodeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Address] = entry
	m.puts++
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cache CacheStore) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "permit-ingest-test/1.0", cache,
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func hitHandler(t *testing.T, calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "permit-ingest-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"lat":          "38.5810",
			"lon":          "-121.4944",
			"display_name": "700 H Street, Sacramento, CA",
		}})
	}
}

func TestGeocode_MatchAndMemoryCache(t *testing.T) {
	calls := 0
	c := newTestClient(t, hitHandler(t, &calls), newMemCacheStore())

	res, err := c.Geocode(context.Background(), "700 H Street, Sacramento, CA 95814")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.InDelta(t, 38.5810, *res.Lat, 0.0001)
	assert.InDelta(t, -121.4944, *res.Lon, 0.0001)

	// Second lookup is served from memory: no new request.
	_, err = c.Geocode(context.Background(), "700 H Street, Sacramento, CA 95814")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGeocode_PersistentCacheWarmsMemory(t *testing.T) {
	cache := newMemCacheStore()
	lat, lon := 40.0, -105.0
	cache.entries["1 Main St"] = model.GeocodeEntry{
		Address: "1 Main St", Lat: &lat, Lon: &lon, Matched: true,
	}

	calls := 0
	c := newTestClient(t, hitHandler(t, &calls), cache)

	res, err := c.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 0, calls, "persistent hit must not reach the network")
}

func TestGeocode_NoResultIsCached(t *testing.T) {
	calls := 0
	cache := newMemCacheStore()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]any{})
	}, cache)

	res, err := c.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.Lat)

	// The definitive miss is persisted and re-served without a request.
	assert.Equal(t, 1, cache.puts)
	_, err = c.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGeocode_429IsNotCached(t *testing.T) {
	cache := newMemCacheStore()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}, cache)

	res, err := c.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Zero(t, cache.puts, "transient failures must not be persisted")
}

func TestGeocode_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"lat": "1.0", "lon": "2.0"}})
	}, newMemCacheStore())

	res, err := c.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 2, calls)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, nil)

	res, err := c.Geocode(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Matched)
}
