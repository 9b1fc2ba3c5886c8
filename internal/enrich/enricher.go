// Package enrich gathers public signals about contacts that the rules engine
// could not classify with confidence.
package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
	"github.com/sells-group/contact-classifier/internal/rules"
)

// Lookup depths.
const (
	DepthSearch = 1
	DepthPlaces = 2
	DepthSite   = 3
)

const summaryPartLen = 120

// Budget gates and records the paid calls made for one job.
type Budget interface {
	// Allow re-reads the job's counters and reports whether one more call
	// is permitted.
	Allow(ctx context.Context) (bool, error)
	// Charge records one completed paid call.
	Charge(ctx context.Context) error
}

// Lookup is the outcome of enriching one contact.
type Lookup struct {
	// Payload is nil when no lookup produced a usable signal.
	Payload *model.EnrichmentPayload
	// Calls counts paid calls charged to the job.
	Calls int
	// Failures counts lookups that returned an error.
	Failures int
	// Exhausted is set when the budget refused a call.
	Exhausted bool
}

// Complete reports whether every planned lookup ran without error, which is
// the condition for caching the result.
func (l *Lookup) Complete() bool {
	return !l.Exhausted && l.Failures == 0
}

// Enricher runs the staged lookups.
type Enricher struct {
	search  SearchProvider
	places  PlacesProvider
	site    SiteFetcher
	rules   *rules.Engine
	snips   int
	metrics *metrics.Metrics
}

// NewEnricher creates an Enricher. Nil providers skip their depth.
func NewEnricher(search SearchProvider, places PlacesProvider, site SiteFetcher, engine *rules.Engine, snippetLimit int, m *metrics.Metrics) *Enricher {
	if engine == nil {
		engine = rules.New(nil, rules.DefaultThresholds())
	}
	if snippetLimit <= 0 {
		snippetLimit = 3
	}
	return &Enricher{search: search, places: places, site: site, rules: engine, snips: snippetLimit, metrics: m}
}

// DepthFor picks the lookup depth for a contact: the site lookup only makes
// sense when the email identifies a business.
func DepthFor(c model.Contact, defaultDepth, businessDepth int) int {
	depth := defaultDepth
	if normalize.BusinessDomain(c.EmailDomain) != "" && businessDepth > depth {
		depth = businessDepth
	}
	if depth < DepthSearch {
		depth = DepthSearch
	}
	if depth > DepthSite {
		depth = DepthSite
	}
	return depth
}

// Enrich performs up to depth cumulative lookups. Provider failures are
// recorded on the Lookup, never returned; only a budget error is.
func (e *Enricher) Enrich(ctx context.Context, c model.Contact, depth int, b Budget) (*Lookup, error) {
	log := zap.L().With(zap.String("contact", c.Name))
	out := &Lookup{}
	p := &model.EnrichmentPayload{}

	allow := func() (bool, error) {
		ok, err := b.Allow(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			out.Exhausted = true
		}
		return ok, nil
	}
	charge := func() error {
		out.Calls++
		return b.Charge(ctx)
	}

	if depth >= DepthSearch && e.search != nil {
		ok, err := allow()
		if err != nil {
			return nil, err
		}
		if !ok {
			return e.finish(out, p), nil
		}
		snippets, searchErr := e.search.Search(ctx, joinNonEmpty(" ", c.Name, c.City, c.Country), c.Country)
		e.metrics.ExternalCall("search", searchErr)
		if err := charge(); err != nil {
			return nil, err
		}
		if searchErr != nil {
			out.Failures++
			log.Debug("enrich: search failed", zap.Error(searchErr))
		} else {
			if len(snippets) > e.snips {
				snippets = snippets[:e.snips]
			}
			p.Snippets = snippets
		}
		p.Depth = DepthSearch
	}

	if depth >= DepthPlaces && e.places != nil && c.Name != "" {
		ok, err := allow()
		if err != nil {
			return nil, err
		}
		if !ok {
			return e.finish(out, p), nil
		}
		tags, placesErr := e.places.Lookup(ctx, c.Name, c.City, c.Country)
		e.metrics.ExternalCall("places", placesErr)
		if err := charge(); err != nil {
			return nil, err
		}
		if placesErr != nil {
			out.Failures++
			log.Debug("enrich: places lookup failed", zap.Error(placesErr))
		} else {
			p.Categories = mergeTags(p.Categories, tags)
		}
		p.Depth = DepthPlaces
	}

	if domain := normalize.BusinessDomain(c.EmailDomain); depth >= DepthSite && e.site != nil && domain != "" {
		ok, err := allow()
		if err != nil {
			return nil, err
		}
		if !ok {
			return e.finish(out, p), nil
		}
		meta, siteErr := e.site.Fetch(ctx, domain)
		e.metrics.ExternalCall("sitemeta", siteErr)
		// A failed site fetch is "no data", not a failed lookup.
		if siteErr == nil && !meta.Empty() {
			p.WebsiteTitle = meta.Title
			p.WebsiteDescription = meta.Description
		} else if siteErr != nil {
			log.Debug("enrich: site fetch failed", zap.String("domain", domain), zap.Error(siteErr))
		}
		p.Depth = DepthSite
	}

	return e.finish(out, p), nil
}

func (e *Enricher) finish(out *Lookup, p *model.EnrichmentPayload) *Lookup {
	parts := append([]string{}, p.Snippets...)
	parts = append(parts, p.Categories...)
	parts = append(parts, p.WebsiteTitle, p.WebsiteDescription)
	if guess := e.rules.Guess(strings.Join(parts, " ")); guess != "" {
		p.BusinessType = string(guess)
	}
	if p.Usable() {
		p.SignalsSummary = SignalsSummary(p)
		out.Payload = p
	}
	return out
}

// SignalsSummary joins the business type, categories, website title and first
// snippet, each truncated, into the context string handed to the AI stage.
func SignalsSummary(p *model.EnrichmentPayload) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.BusinessType != "" {
		parts = append(parts, "Type: "+truncate(p.BusinessType))
	}
	if len(p.Categories) > 0 {
		parts = append(parts, "Categories: "+truncate(strings.Join(p.Categories, ", ")))
	}
	if p.WebsiteTitle != "" {
		parts = append(parts, "Site: "+truncate(p.WebsiteTitle))
	}
	if len(p.Snippets) > 0 {
		parts = append(parts, "Snippet: "+truncate(p.Snippets[0]))
	}
	return strings.Join(parts, " | ")
}

func truncate(s string) string {
	s = normalize.Collapse(s)
	if r := []rune(s); len(r) > summaryPartLen {
		return string(r[:summaryPartLen])
	}
	return s
}

func mergeTags(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, t := range dst {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range src {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		dst = append(dst, t)
	}
	return dst
}
