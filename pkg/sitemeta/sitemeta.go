// Package sitemeta fetches a domain's home page and extracts its title and
// meta description.
package sitemeta

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; ContactClassifier/1.0)"
	maxBody          = 256 * 1024
	maxFieldLen      = 300
)

// Meta is what a home page says about itself.
type Meta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether nothing was extracted.
func (m *Meta) Empty() bool {
	return m == nil || (m.Title == "" && m.Description == "")
}

// Fetcher retrieves site metadata over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
	scheme    string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying client. The scheme is switched to
// plain http so tests can point at an httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.client = hc
		f.scheme = "http"
	}
}

// New creates a Fetcher with a short timeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 3 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 3 * time.Second,
			},
		},
		userAgent: defaultUserAgent,
		scheme:    "https",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch retrieves <scheme>://domain/ and extracts metadata. Callers treat
// any error as "no data".
func (f *Fetcher) Fetch(ctx context.Context, domain string) (*Meta, error) {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" || strings.ContainsAny(domain, "/?# ") {
		return nil, eris.Errorf("sitemeta: invalid domain %q", domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.scheme+"://"+domain+"/", nil)
	if err != nil {
		return nil, eris.Wrap(err, "sitemeta: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sitemeta: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("sitemeta: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "sitemeta: read body")
	}

	return Extract(body), nil
}

// Extract pulls the title and description out of an HTML document. The
// standard description wins over og:description.
func Extract(body []byte) *Meta {
	m := &Meta{}
	var og string
	inTitle := false

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if m.Description == "" {
				m.Description = og
			}
			return m
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "title":
				inTitle = m.Title == ""
			case "meta":
				if !hasAttr {
					continue
				}
				key, content := metaAttrs(z)
				switch key {
				case "description":
					if m.Description == "" {
						m.Description = clean(content)
					}
				case "og:description":
					if og == "" {
						og = clean(content)
					}
				}
			}
		case html.TextToken:
			if inTitle {
				m.Title = clean(string(z.Text()))
				inTitle = false
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}

// metaAttrs returns the lowercased name (or property) and the content of the
// current meta tag.
func metaAttrs(z *html.Tokenizer) (key, content string) {
	for {
		k, v, more := z.TagAttr()
		switch string(k) {
		case "name", "property":
			key = strings.ToLower(strings.TrimSpace(string(v)))
		case "content":
			content = string(v)
		}
		if !more {
			return key, content
		}
	}
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxFieldLen {
		s = string(r[:maxFieldLen])
	}
	return s
}
