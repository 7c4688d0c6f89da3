// Package overpass is a minimal client for the OpenStreetMap Overpass API.
package overpass

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parktrail/internal/resilience"
)

// DefaultURL is the public Overpass interpreter endpoint.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// Client runs Overpass QL queries.
type Client interface {
	Query(ctx context.Context, ql string) (*Response, error)
}

// Cache stores raw responses keyed by query hash.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, raw []byte) error
}

// Response is the decoded JSON body of an Overpass query.
type Response struct {
	Elements []Element `json:"elements"`
}

// Element is a node, way or relation. Geometry is populated for ways and
// Members for relations when the query ends in "out geom".
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Lat      float64           `json:"lat,omitempty"`
	Lon      float64           `json:"lon,omitempty"`
	Geometry []LatLng          `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Member is one relation member.
type Member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []LatLng `json:"geometry,omitempty"`
}

// LatLng is a single geometry vertex.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different interpreter.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithUserAgent sets the User-Agent header. The public instances ask
// clients to identify themselves.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// WithMinInterval spaces requests at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(c *client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the retry policy for gateway timeouts and network errors.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

// WithCache enables the raw response cache.
func WithCache(cache Cache) Option {
	return func(c *client) {
		c.cache = cache
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	cache      Cache
}

// NewClient creates an Overpass client. By default it allows one request
// every 2 seconds and retries a timed-out query twice, 5 seconds apart.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    DefaultURL,
		userAgent:  "parktrail/1.0",
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		retry:      resilience.FixedRetryConfig(2, 5*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey returns the cache key for a query.
func CacheKey(ql string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ql)))
	return hex.EncodeToString(sum[:])
}

func (c *client) Query(ctx context.Context, ql string) (*Response, error) {
	key := CacheKey(ql)
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("overpass: cache read failed", zap.Error(err))
		} else if ok {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err == nil {
				return &resp, nil
			}
			zap.L().Warn("overpass: discarding unreadable cache entry", zap.String("key", key))
		}
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("overpass", "query")
	}

	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, ql)
	})
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, raw); err != nil {
			zap.L().Warn("overpass: cache write failed", zap.Error(err))
		}
	}
	return &resp, nil
}

func (c *client) post(ctx context.Context, ql string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: request"), 0)
		}
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("overpass: returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}
	return body, nil
}
