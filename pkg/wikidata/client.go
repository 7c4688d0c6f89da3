// Package wikidata queries the Wikidata SPARQL endpoint for items with
// coordinates near a point.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parktrail/internal/resilience"
)

// DefaultURL is the public query service endpoint.
const DefaultURL = "https://query.wikidata.org/sparql"

// Item is a Wikidata entity with a coordinate location.
type Item struct {
	ID    string // e.g. "Q1133718"
	Label string
	Lat   float64
	Lon   float64
}

// Client finds items around a point.
type Client interface {
	Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Item, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different SPARQL endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithUserAgent sets the User-Agent header. The query service rejects
// requests without one.
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

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a SPARQL client limited to one request every 2 seconds.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
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

// ParkClass is the Wikidata class for parks. Nearby only returns instances
// of it or its subclasses.
const ParkClass = "Q22698"

// NearbyQuery builds the SPARQL query for park items within radiusM of a
// point.
func NearbyQuery(lat, lon, radiusM float64) string {
	return fmt.Sprintf(`SELECT ?item ?itemLabel ?coord WHERE {
  SERVICE wikibase:around {
    ?item wdt:P625 ?coord .
    bd:serviceParam wikibase:center "Point(%s %s)"^^geo:wktLiteral .
    bd:serviceParam wikibase:radius "%s" .
  }
  ?item wdt:P31/wdt:P279* wd:%s .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}`, formatFloat(lon), formatFloat(lat), formatFloat(radiusM/1000), ParkClass)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (c *client) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Item, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("wikidata", "nearby")
	}

	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, NearbyQuery(lat, lon, radiusM))
	})
	if err != nil {
		return nil, err
	}

	var resp sparqlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, eris.Wrap(err, "wikidata: parse response")
	}

	items := make([]Item, 0, len(resp.Results.Bindings))
	for _, b := range resp.Results.Bindings {
		pLat, pLon, err := ParsePoint(b["coord"].Value)
		if err != nil {
			zap.L().Debug("wikidata: skipping item", zap.String("item", b["item"].Value), zap.Error(err))
			continue
		}
		items = append(items, Item{
			ID:    EntityID(b["item"].Value),
			Label: b["itemLabel"].Value,
			Lat:   pLat,
			Lon:   pLon,
		})
	}
	return items, nil
}

func (c *client) get(ctx context.Context, query string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wikidata: rate limit")
	}

	u := c.baseURL + "?" + url.Values{"query": {query}, "format": {"json"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: build request")
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "wikidata: request"), 0)
		}
		return nil, eris.Wrap(err, "wikidata: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("wikidata: returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read body")
	}
	return body, nil
}

var pointRe = regexp.MustCompile(`^Point\((-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?) (-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)\)$`)

// ParsePoint parses a WKT literal of the form "Point(lon lat)".
func ParsePoint(s string) (lat, lon float64, err error) {
	m := pointRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, eris.Errorf("wikidata: unparseable coordinate %q", s)
	}
	lon, _ = strconv.ParseFloat(m[1], 64)
	lat, _ = strconv.ParseFloat(m[2], 64)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, eris.Errorf("wikidata: coordinate out of range %q", s)
	}
	return lat, lon, nil
}

// EntityID returns the trailing Q-id of an entity URI.
func EntityID(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
