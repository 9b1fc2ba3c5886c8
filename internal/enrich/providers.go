package enrich

import (
	"context"
	"strings"

	"github.com/sells-group/contact-classifier/internal/resilience"
	"github.com/sells-group/contact-classifier/pkg/google"
	"github.com/sells-group/contact-classifier/pkg/jina"
	"github.com/sells-group/contact-classifier/pkg/sitemeta"
)

// SearchProvider returns web snippets for a free-text query.
type SearchProvider interface {
	Search(ctx context.Context, query, country string) ([]string, error)
}

// PlacesProvider returns category tags for a named business.
type PlacesProvider interface {
	Lookup(ctx context.Context, name, city, country string) ([]string, error)
}

// SiteFetcher returns a domain's home page metadata.
type SiteFetcher interface {
	Fetch(ctx context.Context, domain string) (*sitemeta.Meta, error)
}

// JinaSearch adapts a jina.Client to SearchProvider.
type JinaSearch struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaSearch wraps client. A nil breaker calls through directly.
func NewJinaSearch(client jina.Client, breaker *resilience.Breaker) *JinaSearch {
	return &JinaSearch{client: client, breaker: breaker}
}

func (s *JinaSearch) Search(ctx context.Context, query, country string) ([]string, error) {
	var opts []jina.SearchOption
	if len(country) == 2 {
		opts = append(opts, jina.WithCountry(country))
	}
	resp, err := resilience.Call(ctx, s.breaker, func(ctx context.Context) (*jina.SearchResponse, error) {
		return s.client.Search(ctx, query, opts...)
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resp.Data {
		if snip := strings.TrimSpace(r.Snippet()); snip != "" {
			out = append(out, snip)
		}
	}
	return out, nil
}

// GooglePlaces adapts a google.Client to PlacesProvider.
type GooglePlaces struct {
	client  google.Client
	breaker *resilience.Breaker
}

// NewGooglePlaces wraps client. A nil breaker calls through directly.
func NewGooglePlaces(client google.Client, breaker *resilience.Breaker) *GooglePlaces {
	return &GooglePlaces{client: client, breaker: breaker}
}

// Lookup returns the categories of the best-ranked place.
func (p *GooglePlaces) Lookup(ctx context.Context, name, city, country string) ([]string, error) {
	resp, err := resilience.Call(ctx, p.breaker, func(ctx context.Context) (*google.TextSearchResponse, error) {
		return p.client.TextSearch(ctx, joinNonEmpty(" ", name, city, country))
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Places) == 0 {
		return nil, nil
	}
	top := resp.Places[0]
	tags := top.Categories()
	if label := top.PrimaryTypeDisplayName.Text; label != "" {
		tags = append([]string{label}, tags...)
	}
	return tags, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
