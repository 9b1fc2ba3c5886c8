package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/contact-classifier/internal/model"
)

// dialect captures the differences between the two SQL backends.
type dialect struct {
	placeholder func(n int) string
	timeArg     func(t time.Time) any
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeArg:     func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UnixMilli() },
}

// whereBuilder accumulates predicates and positional arguments.
type whereBuilder struct {
	d     dialect
	parts []string
	args  []any
}

func newWhere(d dialect, args ...any) *whereBuilder {
	return &whereBuilder{d: d, args: args}
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return w.d.placeholder(len(w.args))
}

func (w *whereBuilder) add(format string, vals ...any) {
	ph := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = w.arg(v)
	}
	w.parts = append(w.parts, fmt.Sprintf(format, ph...))
}

func (w *whereBuilder) raw(pred string) {
	w.parts = append(w.parts, pred)
}

func (w *whereBuilder) String() string {
	return strings.Join(w.parts, " AND ")
}

// rowPredicate appends the RowFilter predicates for jobID.
func (w *whereBuilder) rowPredicate(jobID string, f RowFilter) {
	w.add("job_id = %s", jobID)
	w.raw("manual_override = false")

	if f.RulesApplied != nil {
		w.add("rules_applied = %s", *f.RulesApplied)
	}
	if f.CategoryNullOrBelow != nil {
		w.add("(final_category IS NULL OR confidence IS NULL OR confidence < %s)", *f.CategoryNullOrBelow)
	}
	if f.MaxAIAttempts > 0 {
		w.add("ai_attempts < %s", f.MaxAIAttempts)
	}

	var fresh []string
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = w.arg(string(s))
		}
		fresh = append(fresh, "row_status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.EnrichmentPending {
		fresh = append(fresh, "enrichment_status IS NULL")
	}
	freshPred := strings.Join(fresh, " AND ")

	switch {
	case !f.ReclaimBefore.IsZero():
		stale := fmt.Sprintf("(row_status = %s AND claimed_at < %s)",
			w.arg(string(model.RowStatusProcessing)), w.arg(w.d.timeArg(f.ReclaimBefore)))
		if freshPred == "" {
			w.raw(stale)
		} else {
			w.raw("((" + freshPred + ") OR " + stale + ")")
		}
	case freshPred != "":
		w.raw(freshPred)
	}
}
