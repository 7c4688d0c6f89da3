// Package strava is a minimal client for the Strava OAuth and activities API.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parktrail/internal/resilience"
)

// Default endpoints.
const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultOAuthURL = "https://www.strava.com/oauth"
)

// Activity is a recorded activity with its summary route.
type Activity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
	Map       struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// Polyline returns the encoded summary route, or "" for manual activities.
func (a Activity) Polyline() string {
	return a.Map.SummaryPolyline
}

// Client talks to Strava on behalf of one application.
type Client interface {
	// AuthorizeURL is where the athlete grants access.
	AuthorizeURL(redirectURI, state string) string
	// Exchange trades an authorization code for a new session.
	Exchange(ctx context.Context, code string) (*Session, error)
	// Refresh obtains new tokens for a session. It returns
	// ErrRefreshRefused when Strava rejects the refresh token.
	Refresh(ctx context.Context, s *Session) (*Session, error)
	// Activities lists activities started after the given time, newest last.
	Activities(ctx context.Context, accessToken string, after time.Time, perPage int) ([]Activity, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithOAuthURL sets the OAuth base URL (for testing).
func WithOAuthURL(u string) Option {
	return func(c *httpClient) {
		c.oauthURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for API reads.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	oauthURL     string
	http         *http.Client
	retry        resilience.RetryConfig
}

// NewClient creates a Strava client for the given application credentials.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      DefaultBaseURL,
		oauthURL:     DefaultOAuthURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		retry:        resilience.FixedRetryConfig(2, 2*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{
		"client_id":       {c.clientID},
		"redirect_uri":    {redirectURI},
		"response_type":   {"code"},
		"approval_prompt": {"auto"},
		"scope":           {"read,activity:read_all"},
	}
	if state != "" {
		q.Set("state", state)
	}
	return c.oauthURL + "/authorize?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Athlete      *struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

func (c *httpClient) Exchange(ctx context.Context, code string) (*Session, error) {
	tok, err := c.token(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})
	if err != nil {
		return nil, eris.Wrap(err, "strava: exchange code")
	}
	if tok.Athlete == nil || tok.Athlete.ID == 0 {
		return nil, eris.New("strava: exchange response has no athlete")
	}
	return &Session{
		AthleteID:    tok.Athlete.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Unix(tok.ExpiresAt, 0).UTC(),
	}, nil
}

func (c *httpClient) Refresh(ctx context.Context, s *Session) (*Session, error) {
	tok, err := c.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.RefreshToken},
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnauthorized) {
			return nil, ErrRefreshRefused
		}
		return nil, eris.Wrapf(err, "strava: refresh athlete %d", s.AthleteID)
	}
	out := &Session{
		AthleteID:    s.AthleteID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Unix(tok.ExpiresAt, 0).UTC(),
	}
	if out.RefreshToken == "" {
		out.RefreshToken = s.RefreshToken
	}
	return out, nil
}

func (c *httpClient) token(ctx context.Context, form url.Values) (*tokenResponse, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "strava: build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, eris.Wrap(err, "strava: parse token response")
	}
	if tok.AccessToken == "" {
		return nil, eris.New("strava: token response has no access token")
	}
	return &tok, nil
}

func (c *httpClient) Activities(ctx context.Context, accessToken string, after time.Time, perPage int) ([]Activity, error) {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	u := c.baseURL + "/athlete/activities?" + q.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, eris.Wrap(err, "strava: build activities request")
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return c.do(req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "strava: list activities")
	}

	var acts []Activity
	if err := json.Unmarshal(body, &acts); err != nil {
		return nil, eris.Wrap(err, "strava: parse activities")
	}
	return acts, nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "strava: status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "strava: request"), 0)
		}
		return nil, eris.Wrap(err, "strava: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "strava: read body")
	}
	if resp.StatusCode/100 != 2 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
