package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
)

// EnrichmentKey derives the enrichment cache key from a contact's identity:
// "<domain or name>:<city>:<country>", folded. A business email domain is
// preferred over the name; consumer mailbox domains fall back to the name.
func EnrichmentKey(c model.Contact) string {
	identity := normalize.BusinessDomain(c.EmailDomain)
	if identity == "" {
		identity = normalize.Collapse(normalize.Fold(c.Name))
	}
	return strings.Join([]string{
		identity,
		normalize.Collapse(normalize.Fold(c.City)),
		strings.ToLower(strings.TrimSpace(c.Country)),
	}, ":")
}

// AIInput is the per-contact slice of an AI batch request that feeds the
// cache key.
type AIInput struct {
	Name       string `json:"name"`
	Activity   string `json:"activity"`
	Email      string `json:"email"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Enrichment string `json:"enrichment"`
}

// AIKey hashes the serialized batch plus language. The model tier is not part
// of the key, so a batch cached after escalation is reused as-is.
func AIKey(inputs []AIInput, lang string) (string, error) {
	payload, err := json.Marshal(struct {
		Language string    `json:"language"`
		Contacts []AIInput `json:"contacts"`
	}{Language: strings.ToLower(lang), Contacts: inputs})
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal ai key")
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
