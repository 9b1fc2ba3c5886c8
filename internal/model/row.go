package model

import (
	"encoding/json"
	"time"
)

// RowStatus is the lifecycle state of one row.
type RowStatus string

const (
	RowStatusPending    RowStatus = "PENDING"
	RowStatusProcessing RowStatus = "PROCESSING"
	RowStatusCompleted  RowStatus = "COMPLETED"
	RowStatusFailed     RowStatus = "FAILED"
)

// EnrichmentStatus tracks the enrichment stage for one row.
type EnrichmentStatus string

const (
	EnrichmentSearching   EnrichmentStatus = "SEARCHING"
	EnrichmentClassifying EnrichmentStatus = "CLASSIFYING"
	EnrichmentDone        EnrichmentStatus = "DONE"
	EnrichmentFailed      EnrichmentStatus = "FAILED"
)

// Row is one contact within a job together with its classification state.
type Row struct {
	ID      string  `json:"id"`
	JobID   string  `json:"job_id"`
	Ordinal int     `json:"ordinal"`
	Contact Contact `json:"contact"`

	Category      Category `json:"final_category,omitempty"`
	Confidence    *int     `json:"confidence,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	PublicSignals string   `json:"public_signals,omitempty"`
	Method        Method   `json:"classification_method,omitempty"`
	AIUsed        bool     `json:"ai_used"`
	ModelUsed     string   `json:"model_used,omitempty"`
	NeedsReview   bool     `json:"needs_review"`
	RulesApplied  bool     `json:"rules_applied"`

	EnrichmentStatus   EnrichmentStatus `json:"enrichment_status,omitempty"`
	EnrichmentAttempts int              `json:"enrichment_attempts"`
	EnrichmentDepth    int              `json:"enrichment_depth"`
	EnrichmentJSON     json.RawMessage  `json:"enrichment_json,omitempty"`
	AIAttempts         int              `json:"ai_attempts"`

	Status    RowStatus  `json:"row_status"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	ManualOverride bool       `json:"manual_override"`
	EditedBy       string     `json:"edited_by,omitempty"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	PreviousValue  string     `json:"previous_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfidenceValue returns the confidence or 0 when unset.
func (r *Row) ConfidenceValue() int {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// ApplyResult copies a classification result onto the row.
func (r *Row) ApplyResult(res Result) {
	conf := res.Confidence
	r.Category = res.Category
	r.Confidence = &conf
	r.Reason = res.Reason
	r.PublicSignals = res.Signals
	r.Method = res.Method
	r.NeedsReview = res.NeedsReview
	if res.Model != "" {
		r.ModelUsed = res.Model
	}
}

// Enrichment decodes the stored enrichment payload. It returns nil when the
// row has none or the payload is the cached "no data" marker.
func (r *Row) Enrichment() *EnrichmentPayload {
	if len(r.EnrichmentJSON) == 0 || string(r.EnrichmentJSON) == "null" {
		return nil
	}
	var p EnrichmentPayload
	if err := json.Unmarshal(r.EnrichmentJSON, &p); err != nil {
		return nil
	}
	return &p
}
