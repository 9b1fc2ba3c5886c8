package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Category is the closed set of classification outcomes for a contact.
type Category string

const (
	CategoryClient             Category = "CLIENT"
	CategoryPrescriber         Category = "PRESCRIBER"
	CategorySupplier           Category = "SUPPLIER"
	CategoryNeedsQualification Category = "NEEDS_QUALIFICATION"
)

// SubstantiveCategories lists the three non-fallback categories in
// tie-break order.
var SubstantiveCategories = []Category{CategoryClient, CategorySupplier, CategoryPrescriber}

// AllCategories lists every valid category, fallback last.
var AllCategories = []Category{CategoryClient, CategoryPrescriber, CategorySupplier, CategoryNeedsQualification}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryClient, CategoryPrescriber, CategorySupplier, CategoryNeedsQualification:
		return true
	}
	return false
}

// Substantive reports whether c is a real outcome rather than the fallback.
func (c Category) Substantive() bool {
	return c.Valid() && c != CategoryNeedsQualification
}

// Label returns a human-readable name in the requested language.
func (c Category) Label(lang string) string {
	fr := strings.HasPrefix(strings.ToLower(lang), "fr")
	switch c {
	case CategoryClient:
		return "Client"
	case CategoryPrescriber:
		if fr {
			return "Prescripteur"
		}
		return "Prescriber"
	case CategorySupplier:
		if fr {
			return "Fournisseur"
		}
		return "Supplier"
	case CategoryNeedsQualification:
		if fr {
			return "À qualifier"
		}
		return "Needs qualification"
	}
	return string(c)
}

// legacyLabels maps labels found in imported spreadsheets and older exports
// to categories. Keys are lowercase without accents.
var legacyLabels = map[string]Category{
	"client":              CategoryClient,
	"clients":             CategoryClient,
	"customer":            CategoryClient,
	"prescriber":          CategoryPrescriber,
	"prescripteur":        CategoryPrescriber,
	"prescripteurs":       CategoryPrescriber,
	"prescriptor":         CategoryPrescriber,
	"supplier":            CategorySupplier,
	"fournisseur":         CategorySupplier,
	"fournisseurs":        CategorySupplier,
	"vendor":              CategorySupplier,
	"needs_qualification": CategoryNeedsQualification,
	"needs qualification": CategoryNeedsQualification,
	"a_qualifier":         CategoryNeedsQualification,
	"a qualifier":         CategoryNeedsQualification,
	"unknown":             CategoryNeedsQualification,
	"unqualified":         CategoryNeedsQualification,
}

// ParseCategory converts an external label into a Category. It accepts the
// canonical upper-case names as well as the legacy lowercase labels.
func ParseCategory(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	if c := Category(strings.ToUpper(trimmed)); c.Valid() {
		return c, nil
	}
	key := strings.ToLower(trimmed)
	key = strings.NewReplacer("à", "a", "â", "a", "é", "e", "è", "e", "-", "_").Replace(key)
	if c, ok := legacyLabels[key]; ok {
		return c, nil
	}
	if c, ok := legacyLabels[strings.ReplaceAll(key, "_", " ")]; ok {
		return c, nil
	}
	return "", eris.Errorf("model: unknown category %q", s)
}

// Method records which stage produced a row's final classification.
type Method string

const (
	MethodRules  Method = "RULES"
	MethodAI     Method = "AI"
	MethodHybrid Method = "HYBRID"
)
