package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contact-classifier/internal/model"
)

func TestRowPredicate_Postgres(t *testing.T) {
	w := newWhere(postgresDialect, "PROCESSING")
	w.rowPredicate("job-1", RowFilter{
		Statuses:            []model.RowStatus{model.RowStatusPending},
		RulesApplied:        boolPtr(true),
		CategoryNullOrBelow: intPtr(70),
		EnrichmentPending:   true,
		MaxAIAttempts:       2,
	})

	assert.Equal(t,
		"job_id = $2 AND manual_override = false AND rules_applied = $3"+
			" AND (final_category IS NULL OR confidence IS NULL OR confidence < $4)"+
			" AND ai_attempts < $5 AND row_status IN ($6) AND enrichment_status IS NULL",
		w.String())
	assert.Equal(t, []any{"PROCESSING", "job-1", true, 70, 2, "PENDING"}, w.args)
}

func TestRowPredicate_SQLiteReclaim(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	w := newWhere(sqliteDialect)
	w.rowPredicate("job-1", RowFilter{
		Statuses:      []model.RowStatus{model.RowStatusPending},
		ReclaimBefore: at,
	})

	assert.Equal(t,
		"job_id = ? AND manual_override = false"+
			" AND ((row_status IN (?)) OR (row_status = ? AND claimed_at < ?))",
		w.String())
	assert.Equal(t, []any{"job-1", "PENDING", "PROCESSING", int64(1_700_000_000_000)}, w.args)
}
