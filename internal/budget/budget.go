// Package budget decides whether a job may spend more on paid operations.
// The Governor is pure: it reads job counters and never mutates them.
package budget

import (
	"math"

	"github.com/sells-group/contact-classifier/internal/model"
)

// Governor holds the per-job caps. A zero MaxAITokens disables the token cap.
type Governor struct {
	MaxSearchCalls  int
	MaxAIRowPercent float64
	MaxAITokens     int64
}

// MaySearch reports whether one more external enrichment call is allowed.
func (g Governor) MaySearch(job *model.Job) bool {
	return job.SearchCallsCount < g.MaxSearchCalls
}

// RemainingSearchCalls returns the number of search calls still allowed.
func (g Governor) RemainingSearchCalls(job *model.Job) int {
	if r := g.MaxSearchCalls - job.SearchCallsCount; r > 0 {
		return r
	}
	return 0
}

// AIUsagePercent is the share of the job's rows classified by AI.
func AIUsagePercent(job *model.Job) float64 {
	if job.TotalRows <= 0 {
		return 0
	}
	return float64(job.AIRowsClassified) / float64(job.TotalRows) * 100
}

// MayClassifyWithAI reports whether one more row may go to the AI stage.
func (g Governor) MayClassifyWithAI(job *model.Job) bool {
	if job.TotalRows <= 0 {
		return false
	}
	if AIUsagePercent(job) >= g.MaxAIRowPercent {
		return false
	}
	if g.MaxAITokens > 0 && job.AITokensUsed >= g.MaxAITokens {
		return false
	}
	return true
}

// RemainingAIRows returns how many more rows the AI-row cap allows. The cap
// is rounded up so a small job can still send at least one row.
func (g Governor) RemainingAIRows(job *model.Job) int {
	if !g.MayClassifyWithAI(job) {
		return 0
	}
	allowed := int(math.Ceil(g.MaxAIRowPercent * float64(job.TotalRows) / 100))
	if r := allowed - job.AIRowsClassified; r > 0 {
		return r
	}
	return 0
}
