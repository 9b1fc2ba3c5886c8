package rules

import (
	"strings"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
)

// Hint is an advisory category suggestion derived from structural fields.
// It never replaces the keyword threshold logic.
type Hint struct {
	Category model.Category
	Score    int
	Signal   string
}

// Hint scores, all below the rules accept threshold.
const (
	hintDomainScore = 50
	hintTaxIDScore  = 40
)

var medicalDomainTerms = []string{
	"pharma", "sante", "medic", "clinique", "clinic", "hopital", "hospital",
	"dentaire", "dental", "kine", "docteur", "doctor", "infirm",
}

var supplierDomainTerms = []string{
	"industrie", "industry", "supply", "fourniture", "distrib", "wholesale",
	"grossiste", "logisti", "factory", "usine", "fabric",
}

// FieldHeuristics inspects the email domain and tax identifier. It returns
// nil when no structural signal is present.
func FieldHeuristics(c model.Contact) *Hint {
	if domain := normalize.BusinessDomain(c.EmailDomain); domain != "" {
		if term := firstContained(domain, medicalDomainTerms); term != "" {
			return &Hint{Category: model.CategoryPrescriber, Score: hintDomainScore, Signal: "domain:" + term}
		}
		if term := firstContained(domain, supplierDomainTerms); term != "" {
			return &Hint{Category: model.CategorySupplier, Score: hintDomainScore, Signal: "domain:" + term}
		}
	}
	if c.TaxID != "" {
		return &Hint{Category: model.CategorySupplier, Score: hintTaxIDScore, Signal: "tax_id"}
	}
	return nil
}

func firstContained(s string, terms []string) string {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return t
		}
	}
	return ""
}
