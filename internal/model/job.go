package model

import "time"

// JobStatus is the position of a job in the classification state machine.
type JobStatus string

const (
	JobStatusParsing       JobStatus = "PARSING"
	JobStatusPending       JobStatus = "PENDING"
	JobStatusRules         JobStatus = "RULES"
	JobStatusEnriching     JobStatus = "ENRICHING"
	JobStatusAIClassifying JobStatus = "AI_CLASSIFYING"
	JobStatusCompleted     JobStatus = "COMPLETED"
	JobStatusFailed        JobStatus = "FAILED"
)

// jobStatusOrder fixes the forward sequence. FAILED is handled separately.
var jobStatusOrder = map[JobStatus]int{
	JobStatusParsing:       0,
	JobStatusPending:       1,
	JobStatusRules:         2,
	JobStatusEnriching:     3,
	JobStatusAIClassifying: 4,
	JobStatusCompleted:     5,
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	if s == JobStatusFailed {
		return true
	}
	_, ok := jobStatusOrder[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next respects the fixed
// forward order. FAILED is reachable from any non-terminal status.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	return jobStatusOrder[next] > jobStatusOrder[s]
}

// Job is one bulk-processing unit.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Language string    `json:"language"`

	TotalRows     int `json:"total_rows"`
	ProcessedRows int `json:"processed_rows"`

	AIRowsClassified int     `json:"ai_rows_classified"`
	AIUsagePercent   float64 `json:"ai_usage_percent"`
	AvgConfidence    float64 `json:"avg_confidence"`
	NeedsReviewCount int     `json:"needs_review_count"`

	SearchCallsCount int   `json:"search_calls_count"`
	AITokensUsed     int64 `json:"ai_tokens_used"`

	CurrentStep  string    `json:"current_step"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CounterDelta is an increment applied atomically to a job's counters.
// All fields are non-negative; counters never decrease.
type CounterDelta struct {
	SearchCalls int
	AITokens    int64
	AIRows      int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d.SearchCalls == 0 && d.AITokens == 0 && d.AIRows == 0
}
