package classify

import (
	"fmt"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
	"github.com/sells-group/contact-classifier/internal/rules"
)

// FallbackPolicy keeps the needs-qualification category from absorbing
// marginal cases.
type FallbackPolicy struct {
	// MaxConfidence is the highest confidence at which the fallback category
	// is accepted as-is.
	MaxConfidence int
	// Cap bounds the confidence of a reassigned result.
	Cap int

	engine *rules.Engine
}

// NewFallbackPolicy creates the policy. A nil engine uses the default
// dictionary.
func NewFallbackPolicy(maxConfidence, capConfidence int, engine *rules.Engine) FallbackPolicy {
	if engine == nil {
		engine = rules.New(nil, rules.DefaultThresholds())
	}
	return FallbackPolicy{MaxConfidence: maxConfidence, Cap: capConfidence, engine: engine}
}

// Apply returns the result to persist and whether it was reassigned.
func (p FallbackPolicy) Apply(res model.Result, c model.Contact, enrichment *model.EnrichmentPayload) (model.Result, bool) {
	if res.Category != model.CategoryNeedsQualification {
		return res, false
	}
	if res.Confidence <= p.MaxConfidence {
		res.NeedsReview = true
		return res, false
	}

	res.Category = p.Choose(c, enrichment)
	if res.Confidence > p.Cap {
		res.Confidence = p.Cap
	}
	res.NeedsReview = true
	res.Reason = fmt.Sprintf("%s [reassigned from %s]", res.Reason, model.CategoryNeedsQualification)
	return res, true
}

// Evidence scores each substantive category from the contact's keywords, the
// structural field hint and the enrichment business-type guess.
func (p FallbackPolicy) Evidence(c model.Contact, enrichment *model.EnrichmentPayload) map[model.Category]int {
	scores := make(map[model.Category]int, len(model.SubstantiveCategories))
	for _, s := range p.engine.Score(normalize.Haystack(c)) {
		scores[s.Category] += s.Points
	}
	if h := rules.FieldHeuristics(c); h != nil {
		scores[h.Category] += rules.WeightHigh
	}
	if enrichment != nil && enrichment.BusinessType != "" {
		if cat, err := model.ParseCategory(enrichment.BusinessType); err == nil && cat.Substantive() {
			scores[cat] += rules.WeightHigh
		}
	}
	return scores
}

// Choose picks the substantive category with the most evidence. Ties resolve
// CLIENT, then SUPPLIER, then PRESCRIBER.
func (p FallbackPolicy) Choose(c model.Contact, enrichment *model.EnrichmentPayload) model.Category {
	scores := p.Evidence(c, enrichment)
	best := model.SubstantiveCategories[0]
	for _, cat := range model.SubstantiveCategories[1:] {
		if scores[cat] > scores[best] {
			best = cat
		}
	}
	return best
}
