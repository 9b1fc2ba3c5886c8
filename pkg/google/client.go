// Package google provides a Google Places text-search client returning
// place category tags.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-classifier/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

const fieldMask = "places.displayName,places.types,places.primaryType,places.primaryTypeDisplayName,places.websiteUri,places.formattedAddress"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query string) (*TextSearchResponse, error)
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place represents a place returned by the API.
type Place struct {
	DisplayName            LocalizedText `json:"displayName"`
	Types                  []string      `json:"types"`
	PrimaryType            string        `json:"primaryType"`
	PrimaryTypeDisplayName LocalizedText `json:"primaryTypeDisplayName"`
	WebsiteURI             string        `json:"websiteUri"`
	FormattedAddress       string        `json:"formattedAddress"`
}

// LocalizedText holds a display string.
type LocalizedText struct {
	Text string `json:"text"`
}

// Categories returns the primary type followed by the remaining types,
// without duplicates or the generic "point_of_interest"/"establishment" tags.
func (p Place) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t == "" || seen[t] || t == "point_of_interest" || t == "establishment" {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	add(p.PrimaryType)
	for _, t := range p.Types {
		add(t)
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type textSearchRequest struct {
	TextQuery  string `json:"textQuery"`
	PageSize   int    `json:"pageSize,omitempty"`
	IncludeSAB bool   `json:"includePureServiceAreaBusinesses,omitempty"`
}

func (c *httpClient) TextSearch(ctx context.Context, query string) (*TextSearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "google: rate limit wait")
		}
	}

	body, err := json.Marshal(textSearchRequest{TextQuery: query, PageSize: 3, IncludeSAB: true})
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
