package rules

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
)

// Tier weights applied to keyword matches.
const (
	WeightHigh   = 10
	WeightMedium = 5
	WeightLow    = 2

	// MaxPossibleScore is three high-weight matches.
	MaxPossibleScore = 3 * WeightHigh

	minKeywordLen = 4
)

// Tiers holds one category's keywords split by weight. Keywords are matched
// as substrings of the folded haystack.
type Tiers struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`
}

// Dictionary maps each substantive category to its weighted keywords.
type Dictionary map[model.Category]Tiers

// DefaultDictionary returns the built-in French and English keyword lists.
func DefaultDictionary() Dictionary {
	return Dictionary{
		model.CategoryPrescriber: {
			High: []string{
				"pharmacien", "pharmacie", "medecin", "docteur", "prescripteur",
				"kinesitherapeute", "orthophoniste", "infirmier", "dentiste",
				"chirurgien", "clinique", "hopital", "pharmacist", "pharmacy",
				"physician", "doctor", "prescriber", "hospital",
			},
			Medium: []string{
				"pharma", "sante", "medical", "therapeute", "osteopathe",
				"architecte", "prescription", "apporteur", "recommandation",
				"health", "referral", "architect",
			},
			Low: []string{
				"cabinet", "specialiste", "specialist", "conseil", "consultant",
			},
		},
		model.CategoryClient: {
			High: []string{
				"client", "customer", "acheteur", "buyer", "donneur d'ordre",
			},
			Medium: []string{
				"magasin", "boutique", "revendeur", "detaillant", "retailer",
				"reseller", "restaurant", "hotel", "commande",
			},
			Low: []string{
				"particulier", "shop", "store", "achat", "purchase",
			},
		},
		model.CategorySupplier: {
			High: []string{
				"fournisseur", "supplier", "grossiste", "wholesaler", "fabricant",
				"manufacturer", "prestataire", "sous-traitant", "subcontractor",
				"vendor",
			},
			Medium: []string{
				"fabrication", "usine", "factory", "distributeur", "distributor",
				"logistique", "logistics", "imprimerie", "industrie", "industry",
			},
			Low: []string{
				"materiel", "equipement", "equipment", "livraison", "delivery",
			},
		},
	}
}

// LoadDictionary reads a YAML keyword file and overlays it on the defaults.
// Each category present in the file replaces the built-in tiers for that
// category. The file's top-level keys are category names or legacy labels.
func LoadDictionary(path string) (Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read dictionary %s", path)
	}

	var raw map[string]Tiers
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "rules: parse dictionary")
	}

	dict := DefaultDictionary()
	for label, tiers := range raw {
		cat, err := model.ParseCategory(label)
		if err != nil {
			return nil, eris.Wrap(err, "rules: dictionary category")
		}
		if !cat.Substantive() {
			return nil, eris.Errorf("rules: dictionary cannot define keywords for %s", cat)
		}
		clean, err := tiers.normalized()
		if err != nil {
			return nil, eris.Wrapf(err, "rules: dictionary %s", cat)
		}
		dict[cat] = clean
	}
	return dict, nil
}

// normalized folds every keyword and rejects ones too short to match safely.
func (t Tiers) normalized() (Tiers, error) {
	var out Tiers
	var err error
	if out.High, err = foldAll(t.High); err != nil {
		return out, err
	}
	if out.Medium, err = foldAll(t.Medium); err != nil {
		return out, err
	}
	out.Low, err = foldAll(t.Low)
	return out, err
}

func foldAll(words []string) ([]string, error) {
	out := make([]string, 0, len(words))
	for _, w := range words {
		f := normalize.Collapse(normalize.Fold(w))
		if len([]rune(f)) < minKeywordLen {
			return nil, eris.Errorf("keyword %q shorter than %d characters", w, minKeywordLen)
		}
		out = append(out, f)
	}
	return out, nil
}
