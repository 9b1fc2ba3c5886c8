package model

// Contact is the canonical shape of one imported business contact.
type Contact struct {
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	EmailDomain string   `json:"email_domain,omitempty"`
	Activity    string   `json:"activity,omitempty"`
	City        string   `json:"city,omitempty"`
	Country     string   `json:"country,omitempty"`
	TaxID       string   `json:"tax_id,omitempty"`
	VendorTag   string   `json:"vendor_tag,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// Result is the classification produced by any stage for one contact.
type Result struct {
	Category    Category `json:"category"`
	Confidence  int      `json:"confidence"`
	Reason      string   `json:"reason"`
	Signals     string   `json:"signals_used"`
	NeedsReview bool     `json:"needs_review"`
	Method      Method   `json:"method,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// EnrichmentPayload is what the enrichment stage learned about a contact.
type EnrichmentPayload struct {
	Depth              int      `json:"depth"`
	Snippets           []string `json:"snippets,omitempty"`
	BusinessType       string   `json:"business_type,omitempty"`
	Categories         []string `json:"categories,omitempty"`
	WebsiteTitle       string   `json:"website_title,omitempty"`
	WebsiteDescription string   `json:"website_description,omitempty"`
	SignalsSummary     string   `json:"signals_summary,omitempty"`
}

// Usable reports whether the payload carries any signal worth keeping.
func (p *EnrichmentPayload) Usable() bool {
	if p == nil {
		return false
	}
	return len(p.Snippets) > 0 || p.BusinessType != "" || len(p.Categories) > 0 ||
		p.WebsiteTitle != "" || p.WebsiteDescription != ""
}
