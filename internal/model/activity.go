package model

import "time"

// Severity tags an activity entry.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// ActivityEntry is an append-only timeline event tied to a job.
type ActivityEntry struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CacheEntry is a content-addressed memo of an enrichment or AI result.
type CacheEntry struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
