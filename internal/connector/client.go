package connector

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/roofsignal/permit-ingest/internal/resilience"
)

// maxBodyBytes bounds a single portal response read.
const maxBodyBytes = 64 << 20

// probeLimiter throttles Validate probes so config checks against the same
// portal cannot stampede it.
var probeLimiter = rate.NewLimiter(rate.Every(time.Second), 2)

// portalClient is the per-run HTTP client every connector drives its pages
// through: a sliding-window limiter gates each physical request, and
// transient failures retry with exponential backoff plus jitter.
type portalClient struct {
	client  *http.Client
	limiter *resilience.RateLimiter
	backoff resilience.BackoffConfig
}

func newPortalClient(requestsPerMinute int) *portalClient {
	return &portalClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: resilience.NewRateLimiter(requestsPerMinute),
		backoff: resilience.DefaultBackoff(),
	}
}

// getJSON fetches the URL and returns the body. Each attempt waits on the
// rate limiter; 429 and 5xx retry, any other non-200 status fails immediately.
func (c *portalClient) getJSON(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return resilience.RetryVal(ctx, c.backoff, rawURL, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "connector: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "connector: create request")
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "connector: GET %s", rawURL), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			httpErr := eris.Errorf("connector: http %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(httpErr, resp.StatusCode)
			}
			return nil, httpErr
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "connector: read body from %s", rawURL), 0)
		}
		return body, nil
	})
}

// probe issues a single trivial request to check endpoint reachability for
// Validate. A failed request, or a status of 400 or more other than 429, is a
// ConfigError; a 429 counts as reachable.
func probe(ctx context.Context, rawURL string, header http.Header) error {
	if err := probeLimiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "connector: probe limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return resilience.NewConfigError("invalid endpoint URL: " + err.Error())
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return resilience.NewConfigError("endpoint unreachable: " + err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusTooManyRequests {
		return resilience.NewConfigError(eris.Errorf("endpoint probe returned http %d", resp.StatusCode).Error())
	}
	return nil
}
