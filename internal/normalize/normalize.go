// Package normalize converts raw tabular records into canonical contacts.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/contact-classifier/internal/model"
)

// field identifies a canonical contact attribute.
type field int

const (
	fieldName field = iota
	fieldEmail
	fieldActivity
	fieldCity
	fieldCountry
	fieldTaxID
	fieldVendorTag
	fieldLabels
)

// headerAliases maps folded header names to canonical fields. Headers are
// folded with headerKey before lookup.
var headerAliases = map[string]field{
	"name":            fieldName,
	"nom":             fieldName,
	"full name":       fieldName,
	"company":         fieldName,
	"company name":    fieldName,
	"raison sociale":  fieldName,
	"societe":         fieldName,
	"entreprise":      fieldName,
	"contact":         fieldName,
	"email":           fieldEmail,
	"e mail":          fieldEmail,
	"mail":            fieldEmail,
	"courriel":        fieldEmail,
	"adresse email":   fieldEmail,
	"activity":        fieldActivity,
	"activite":        fieldActivity,
	"description":     fieldActivity,
	"secteur":         fieldActivity,
	"sector":          fieldActivity,
	"profession":      fieldActivity,
	"metier":          fieldActivity,
	"industry":        fieldActivity,
	"city":            fieldCity,
	"ville":           fieldCity,
	"commune":         fieldCity,
	"town":            fieldCity,
	"country":         fieldCountry,
	"pays":            fieldCountry,
	"tax id":          fieldTaxID,
	"vat":             fieldTaxID,
	"vat number":      fieldTaxID,
	"tva":             fieldTaxID,
	"numero tva":      fieldTaxID,
	"tva intracom":    fieldTaxID,
	"siret":           fieldTaxID,
	"siren":           fieldTaxID,
	"vendor":          fieldVendorTag,
	"vendor tag":      fieldVendorTag,
	"type tiers":      fieldVendorTag,
	"tiers":           fieldVendorTag,
	"labels":          fieldLabels,
	"tags":            fieldLabels,
	"etiquettes":      fieldLabels,
	"categories":      fieldLabels,
	"libelles":        fieldLabels,
}

// countryAliases maps folded country names and codes to ISO 3166 alpha-2.
var countryAliases = map[string]string{
	"france": "FR", "fr": "FR", "fra": "FR",
	"belgique": "BE", "belgium": "BE", "be": "BE", "bel": "BE",
	"suisse": "CH", "switzerland": "CH", "schweiz": "CH", "ch": "CH", "che": "CH",
	"luxembourg": "LU", "lu": "LU", "lux": "LU",
	"canada": "CA", "ca": "CA", "can": "CA",
	"united states": "US", "usa": "US", "us": "US", "etats unis": "US",
	"united kingdom": "GB", "uk": "GB", "gb": "GB", "royaume uni": "GB",
	"germany": "DE", "allemagne": "DE", "deutschland": "DE", "de": "DE",
	"spain": "ES", "espagne": "ES", "espana": "ES", "es": "ES",
	"italy": "IT", "italie": "IT", "italia": "IT", "it": "IT",
	"monaco": "MC", "mc": "MC",
	"maroc": "MA", "morocco": "MA", "ma": "MA",
}

// Fold lowercases s and strips diacritics so "Pharmacien à Évry" becomes
// "pharmacien a evry".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Collapse trims s and squeezes internal whitespace runs to a single space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func headerKey(h string) string {
	h = Fold(h)
	h = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' || r == '/' {
			return ' '
		}
		return r
	}, h)
	return Collapse(h)
}

// Record converts one raw record keyed by its original header into a
// Contact. Unknown headers are ignored. When several headers map to the same
// field, the first non-empty value in header order wins.
func Record(raw map[string]string) model.Contact {
	headers := make([]string, 0, len(raw))
	for h := range raw {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	values := make(map[field]string)
	for _, h := range headers {
		f, ok := headerAliases[headerKey(h)]
		if !ok {
			continue
		}
		v := Collapse(raw[h])
		if v == "" {
			continue
		}
		if _, seen := values[f]; !seen {
			values[f] = v
		}
	}

	email := strings.ToLower(values[fieldEmail])
	c := model.Contact{
		Name:      values[fieldName],
		Email:     email,
		Activity:  values[fieldActivity],
		City:      values[fieldCity],
		Country:   Country(values[fieldCountry]),
		TaxID:     TaxID(values[fieldTaxID]),
		VendorTag: values[fieldVendorTag],
		Labels:    SplitLabels(values[fieldLabels]),
	}
	c.EmailDomain = EmailDomain(email)
	return c
}

// EmailDomain extracts the host part of an address, without a leading
// "www.". It returns "" for malformed addresses.
func EmailDomain(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	domain := strings.TrimPrefix(email[at+1:], "www.")
	if !strings.Contains(domain, ".") {
		return ""
	}
	return domain
}

// Country canonicalises a free-text country to an alpha-2 code when known.
// Unknown values are returned upper-cased.
func Country(s string) string {
	key := Collapse(strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return ' '
		}
		return r
	}, Fold(s)))
	if key == "" {
		return ""
	}
	if code, ok := countryAliases[key]; ok {
		return code
	}
	return strings.ToUpper(Collapse(s))
}

// TaxID strips separators from a tax identifier.
func TaxID(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '.' || r == '-' {
			return -1
		}
		return r
	}, s))
}

// SplitLabels splits a free-text label cell on common separators.
func SplitLabels(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '/'
	})
	var out []string
	for _, p := range parts {
		if p = Collapse(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Haystack joins the free-text fields used for keyword matching into a single
// folded string: name, activity, labels and vendor tag.
func Haystack(c model.Contact) string {
	parts := []string{c.Name, c.Activity}
	parts = append(parts, c.Labels...)
	parts = append(parts, c.VendorTag)
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return Fold(b.String())
}
