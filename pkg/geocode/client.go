// Package geocode resolves street addresses to WGS84 coordinates through a
// Nominatim-style search endpoint, with a process-wide rate limit and a
// two-tier (memory over persistent) cache.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/resilience"
)

// CacheStore is the persistent tier of the cache: a key-value table of
// address → coordinates maintained by the storage adapter.
type CacheStore interface {
	GetGeocode(ctx context.Context, address string) (*model.GeocodeEntry, error)
	PutGeocode(ctx context.Context, entry model.GeocodeEntry) error
}

// Result is the outcome of a lookup. Matched=false means the upstream
// service answered "no result"; it is cached so the address is not re-asked.
type Result struct {
	Lat         *float64
	Lon         *float64
	DisplayName string
	Matched     bool
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request limiter (tests use a permissive one).
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// Client is the geocoder. One instance is shared process-wide so the
// upstream policy of one request per 1.1 seconds holds across all sources.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	store      CacheStore

	mu  sync.Mutex
	mem map[string]model.GeocodeEntry
}

// NewClient creates a geocoding client. store may be nil, leaving only the
// in-memory tier.
func NewClient(baseURL, userAgent string, store CacheStore, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(1100*time.Millisecond), 1),
		store:      store,
		mem:        make(map[string]model.GeocodeEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode resolves an address. Lookup order: memory, persistent store,
// network. Definitive upstream answers (including "no result") are written
// to both tiers; transient failures (429, network errors) are returned as
// unmatched without caching, so the address is retried on a later run.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	if address == "" {
		return &Result{}, nil
	}

	c.mu.Lock()
	if entry, ok := c.mem[address]; ok {
		c.mu.Unlock()
		return resultFrom(entry), nil
	}
	c.mu.Unlock()

	if c.store != nil {
		entry, err := c.store.GetGeocode(ctx, address)
		if err != nil {
			zap.L().Warn("geocode cache read failed", zap.Error(err))
		} else if entry != nil {
			c.remember(*entry)
			zap.L().Debug("geocode cache hit", zap.String("address", address), zap.Bool("matched", entry.Matched))
			return resultFrom(*entry), nil
		}
	}

	entry, transient, err := c.lookup(ctx, address)
	if err != nil {
		if transient {
			// Do not cache: the address deserves another try next run.
			zap.L().Warn("geocode lookup failed transiently", zap.String("address", address), zap.Error(err))
			return &Result{}, nil
		}
		return nil, err
	}

	c.remember(entry)
	if c.store != nil {
		if err := c.store.PutGeocode(ctx, entry); err != nil {
			zap.L().Warn("geocode cache write failed", zap.Error(err))
		}
	}
	return resultFrom(entry), nil
}

func (c *Client) remember(entry model.GeocodeEntry) {
	c.mu.Lock()
	c.mem[entry.Address] = entry
	c.mu.Unlock()
}

func resultFrom(entry model.GeocodeEntry) *Result {
	return &Result{
		Lat:         entry.Lat,
		Lon:         entry.Lon,
		DisplayName: entry.DisplayName,
		Matched:     entry.Matched,
	}
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// lookup performs the network search with up to two retries, waiting three
// seconds between attempts. transient=true means the failure must not be
// cached.
func (c *Client) lookup(ctx context.Context, address string) (entry model.GeocodeEntry, transient bool, err error) {
	const retries = 2
	const retryWait = 3 * time.Second

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && !resilience.Sleep(ctx, retryWait) {
			return model.GeocodeEntry{}, true, ctx.Err()
		}

		hits, attemptErr := c.search(ctx, address)
		if attemptErr != nil {
			lastErr = attemptErr
			continue
		}

		entry = model.GeocodeEntry{
			Address:   address,
			FetchedAt: time.Now().UTC(),
		}
		if len(hits) > 0 {
			lat, latErr := parseCoord(hits[0].Lat)
			lon, lonErr := parseCoord(hits[0].Lon)
			if latErr == nil && lonErr == nil {
				entry.Lat, entry.Lon = &lat, &lon
				entry.DisplayName = hits[0].DisplayName
				entry.Matched = true
			}
		}
		// An empty array is a definitive "no result" and IS cached.
		return entry, false, nil
	}

	return model.GeocodeEntry{}, true, lastErr
}

func (c *Client) search(ctx context.Context, address string) ([]searchHit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: limiter wait")
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: http %d from %s", resp.StatusCode, c.baseURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var hits []searchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}
	return hits, nil
}

func parseCoord(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
