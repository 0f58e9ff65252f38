// Package postcode resolves UK postcodes to coordinates via the free
// postcodes.io API. No API key required; NI (BT) postcodes are fully
// supported.
package postcode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.postcodes.io"

// ErrNotFound means the collaborator reports the postcode does not
// exist. A client-input fault: surfaced unchanged and never retried.
var ErrNotFound = eris.New("postcode: not found")

// Result holds the resolved coordinates for a postcode.
type Result struct {
	Postcode  string  `json:"postcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client resolves postcodes to coordinates.
type Client interface {
	// Lookup resolves a free-form postcode. Exactly one round trip per
	// call; callers that need caching compose it around this contract.
	Lookup(ctx context.Context, postcode string) (*Result, error)
}

// Option configures the resolver.
type Option func(*client)

// WithBaseURL overrides the postcodes.io endpoint (used in tests).
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit toward the API.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a postcode resolver with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookupResponse is the JSON shape returned by postcodes.io.
type lookupResponse struct {
	Result struct {
		Postcode  string  `json:"postcode"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

func (c *client) Lookup(ctx context.Context, postcode string) (*Result, error) {
	normalized := strings.ToUpper(strings.TrimSpace(postcode))
	if normalized == "" {
		return nil, eris.Wrap(ErrNotFound, "empty postcode")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "postcode: rate limit wait")
	}

	reqURL := c.baseURL + "/postcodes/" + url.PathEscape(normalized)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postcode: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "postcode: lookup %s", normalized)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, eris.Wrapf(ErrNotFound, "postcode %s", normalized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("postcode: lookup %s returned status %d", normalized, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "postcode: read body")
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, eris.Wrap(err, "postcode: parse response")
	}

	zap.L().Debug("postcode resolved",
		zap.String("postcode", normalized),
		zap.Float64("lat", lr.Result.Latitude),
		zap.Float64("lng", lr.Result.Longitude),
	)

	return &Result{
		Postcode:  lr.Result.Postcode,
		Latitude:  lr.Result.Latitude,
		Longitude: lr.Result.Longitude,
	}, nil
}
