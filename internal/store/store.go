// Package store persists jobs, rows, activity and cache entries in
// PostgreSQL or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-classifier/internal/model"
)

// ErrNotFound is returned when a job or row does not exist.
var ErrNotFound = eris.New("store: not found")

// RowFilter selects rows of one job. Manual overrides are always excluded
// from claims and counts.
type RowFilter struct {
	// Statuses restricts row_status. Empty means any status.
	Statuses []model.RowStatus
	// RulesApplied, when set, requires rules_applied to equal the value.
	RulesApplied *bool
	// CategoryNullOrBelow, when set, requires final_category to be NULL or
	// confidence to be strictly below the value.
	CategoryNullOrBelow *int
	// EnrichmentPending requires enrichment_status to be NULL.
	EnrichmentPending bool
	// MaxAIAttempts, when positive, requires ai_attempts below the value.
	MaxAIAttempts int
	// ReclaimBefore, when non-zero, also matches PROCESSING rows whose
	// claim is older than the given time.
	ReclaimBefore time.Time
	// Limit caps the number of rows returned or claimed.
	Limit int
}

// Override is a manual classification applied by an operator.
type Override struct {
	Category   model.Category
	Confidence int
	EditedBy   string
}

// Store defines the persistence interface for the classification pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, language string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)
	TransitionJob(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error)
	FailJob(ctx context.Context, jobID, message string) error
	SetJobStep(ctx context.Context, jobID, step string) error
	IncrementJobCounters(ctx context.Context, jobID string, delta model.CounterDelta) (*model.Job, error)
	RefreshJobAggregates(ctx context.Context, jobID string) (*model.Job, error)

	// Rows
	AddRows(ctx context.Context, jobID string, contacts []model.Contact) (int, error)
	ClaimRows(ctx context.Context, jobID string, filter RowFilter, enrichment model.EnrichmentStatus) ([]model.Row, error)
	ReleaseRows(ctx context.Context, rowIDs []string) error
	UpdateRow(ctx context.Context, row *model.Row) error
	FlagNeedsReview(ctx context.Context, jobID string, filter RowFilter) (int, error)
	CountRows(ctx context.Context, jobID string, filter RowFilter) (int, error)
	ListRows(ctx context.Context, jobID string, limit, offset int) ([]model.Row, error)
	OverrideRow(ctx context.Context, rowID string, o Override) error

	// Activity
	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
	ListActivity(ctx context.Context, jobID string, limit int) ([]model.ActivityEntry, error)

	// Cache
	GetCacheEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry model.CacheEntry) error
	PurgeExpiredCache(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func validateTransition(from, to model.JobStatus) error {
	if !from.CanTransitionTo(to) {
		return eris.Errorf("store: illegal job transition %s -> %s", from, to)
	}
	return nil
}

func validateDelta(d model.CounterDelta) error {
	if d.SearchCalls < 0 || d.AITokens < 0 || d.AIRows < 0 {
		return eris.Errorf("store: negative counter delta %+v", d)
	}
	return nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
