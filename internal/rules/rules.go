// Package rules implements the zero-cost keyword classifier and the
// structural field heuristics that run before any paid lookup.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/normalize"
)

// Thresholds control when a keyword score is accepted.
type Thresholds struct {
	Accept       int // minimum confidence (0-100)
	Margin       int // minimum gap between the top two raw scores
	ReviewBelow  int // confidence under which needs_review is set
	SignalsLimit int // keywords reported as signals
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 60, Margin: 5, ReviewBelow: 90, SignalsLimit: 3}
}

// Score is one category's raw keyword score over a haystack.
type Score struct {
	Category model.Category
	Points   int
	Matched  []string
}

// Engine classifies contacts by weighted keyword matching.
type Engine struct {
	dict Dictionary
	th   Thresholds
}

// New creates an Engine. A nil dictionary selects DefaultDictionary.
func New(dict Dictionary, th Thresholds) *Engine {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if th.SignalsLimit <= 0 {
		th.SignalsLimit = 3
	}
	return &Engine{dict: dict, th: th}
}

// Thresholds returns the engine's configured thresholds.
func (e *Engine) Thresholds() Thresholds { return e.th }

// Score sums tier weights of every keyword found in the folded text.
// The result has one entry per substantive category, sorted by descending
// points; ties keep the CLIENT, SUPPLIER, PRESCRIBER order.
func (e *Engine) Score(text string) []Score {
	haystack := normalize.Fold(text)
	scores := make([]Score, 0, len(model.SubstantiveCategories))
	for _, cat := range model.SubstantiveCategories {
		s := Score{Category: cat}
		tiers := e.dict[cat]
		s.add(haystack, tiers.High, WeightHigh)
		s.add(haystack, tiers.Medium, WeightMedium)
		s.add(haystack, tiers.Low, WeightLow)
		scores = append(scores, s)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Points > scores[j].Points
	})
	return scores
}

func (s *Score) add(haystack string, words []string, weight int) {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			s.Points += weight
			s.Matched = append(s.Matched, w)
		}
	}
}

// Confidence converts a raw score to the 0-100 scale.
func Confidence(points int) int {
	c := int(math.Round(float64(points) / float64(MaxPossibleScore) * 100))
	if c > 100 {
		return 100
	}
	return c
}

// Classify returns a RULES result when the top category clears both the
// accept and margin thresholds, or nil when the keywords are inconclusive.
func (e *Engine) Classify(c model.Contact, lang string) *model.Result {
	scores := e.Score(normalize.Haystack(c))
	top, second := scores[0], scores[1]
	if top.Points <= 0 {
		return nil
	}

	conf := Confidence(top.Points)
	if conf < e.th.Accept || top.Points-second.Points < e.th.Margin {
		return nil
	}

	signals := top.Matched
	if len(signals) > e.th.SignalsLimit {
		signals = signals[:e.th.SignalsLimit]
	}
	joined := strings.Join(signals, ", ")

	return &model.Result{
		Category:    top.Category,
		Confidence:  conf,
		Reason:      reasonText(lang, joined),
		Signals:     joined,
		NeedsReview: conf < e.th.ReviewBelow,
		Method:      model.MethodRules,
	}
}

// Guess returns the leading category for free text when it strictly beats
// the runner-up, or "" when nothing matched or the top two are tied.
func (e *Engine) Guess(text string) model.Category {
	scores := e.Score(text)
	if scores[0].Points == 0 || scores[0].Points == scores[1].Points {
		return ""
	}
	return scores[0].Category
}

func reasonText(lang, signals string) string {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return fmt.Sprintf("Keywords matched: %s", signals)
	}
	return fmt.Sprintf("Mots-clés détectés : %s", signals)
}
