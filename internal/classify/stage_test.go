package classify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/budget"
	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "classify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedForAI creates a job whose rows went through rules and enrichment
// without a confident result. prior, when set, is the rules category
// stored on every row.
func seedForAI(t *testing.T, st store.Store, prior *model.Result, contacts ...model.Contact) *model.Job {
	t.Helper()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, "fr")
	require.NoError(t, err)
	_, err = st.AddRows(ctx, job.ID, contacts)
	require.NoError(t, err)

	rows, err := st.ListRows(ctx, job.ID, 100, 0)
	require.NoError(t, err)
	for i := range rows {
		rows[i].RulesApplied = true
		if prior != nil {
			rows[i].ApplyResult(*prior)
		}
		require.NoError(t, st.UpdateRow(ctx, &rows[i]))
	}

	job, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	return job
}

func constant(cat model.Category, conf int) func([]cache.AIInput, Tier) ([]model.Result, error) {
	return func(in []cache.AIInput, _ Tier) ([]model.Result, error) {
		out := make([]model.Result, len(in))
		for i := range out {
			out[i] = model.Result{Category: cat, Confidence: conf, Reason: "model answer"}
		}
		return out, nil
	}
}

func stageSettings() Settings {
	return Settings{BatchSize: 20, AcceptThreshold: 70, MaxAttempts: 2, ClaimTTL: 10 * time.Minute}
}

func newTestStage(st store.Store, p Provider, gov budget.Governor) *Stage {
	c := NewClassifier(p, cache.New(st), time.Hour, 70, nil)
	return NewStage(st, c, NewFallbackPolicy(30, 50, nil), gov, activity.New(st), nil, nil, stageSettings())
}

func contacts(n int) []model.Contact {
	out := make([]model.Contact, n)
	for i := range out {
		out[i] = model.Contact{Name: "Contact " + string(rune('A'+i)), City: "Nantes"}
	}
	return out
}

func TestStage_NoProvider(t *testing.T) {
	st := newTestStore(t)
	job := seedForAI(t, st, nil, contacts(1)...)
	stage := NewStage(st, nil, NewFallbackPolicy(30, 50, nil), budget.Governor{MaxAIRowPercent: 100}, nil, nil, nil, stageSettings())

	_, err := stage.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestStage_MethodAIAndHybrid(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	fresh := seedForAI(t, st, nil, contacts(1)...)
	hinted := seedForAI(t, st, &model.Result{Category: model.CategoryClient, Confidence: 40, Method: model.MethodRules}, contacts(1)...)

	p := &scriptedProvider{respond: constant(model.CategorySupplier, 85)}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 100})

	for _, tc := range []struct {
		job  *model.Job
		want model.Method
	}{{fresh, model.MethodAI}, {hinted, model.MethodHybrid}} {
		rep, err := stage.Run(ctx, tc.job)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Classified)
		assert.True(t, rep.Done())

		rows, err := st.ListRows(ctx, tc.job.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		r := rows[0]
		assert.Equal(t, tc.want, r.Method)
		assert.Equal(t, model.CategorySupplier, r.Category)
		assert.Equal(t, 85, r.ConfidenceValue())
		assert.True(t, r.AIUsed)
		assert.Equal(t, "haiku", r.ModelUsed)
		assert.Equal(t, 1, r.AIAttempts)
		assert.Equal(t, model.RowStatusCompleted, r.Status)
		assert.False(t, r.NeedsReview)
	}
}

func TestStage_ChargesTokensAndRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedForAI(t, st, nil, contacts(3)...)

	p := &scriptedProvider{respond: constant(model.CategoryClient, 90)}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 100})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, int64(360), rep.Tokens)

	job, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, job.AIRowsClassified)
	assert.Equal(t, int64(360), job.AITokensUsed)

	entries, err := st.ListActivity(ctx, job.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, model.SeverityInfo, last.Severity)
	assert.Contains(t, last.Message, "AI classified 3 contacts")
	assert.Contains(t, last.Metadata, "prompt_excerpt")
}

func TestStage_LowConfidenceNeedsReview(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedForAI(t, st, nil, contacts(1)...)

	stage := newTestStage(st, &scriptedProvider{respond: constant(model.CategoryPrescriber, 60)}, budget.Governor{MaxAIRowPercent: 100})
	_, err := stage.Run(ctx, job)
	require.NoError(t, err)

	rows, err := st.ListRows(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	assert.True(t, rows[0].NeedsReview)
	assert.Equal(t, model.RowStatusCompleted, rows[0].Status)
}

// A contact with nothing but a consumer email reaches the model with no
// enrichment. A confident fallback answer must be reassigned.
func TestStage_SparseContactFallbackReassigned(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sparse := model.Contact{Name: "jdupont", Email: "jdupont@gmail.com", EmailDomain: "gmail.com"}
	job := seedForAI(t, st, nil, sparse)

	p := &scriptedProvider{respond: constant(model.CategoryNeedsQualification, 65)}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 100})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reassigned)

	require.Len(t, p.calls, 1)
	in := p.calls[0].inputs[0]
	assert.Equal(t, "jdupont", in.Name)
	assert.Equal(t, "jdupont@gmail.com", in.Email)
	assert.Empty(t, in.City)
	assert.Empty(t, in.Enrichment)

	rows, err := st.ListRows(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	r := rows[0]
	assert.NotEqual(t, model.CategoryNeedsQualification, r.Category)
	assert.True(t, r.Category.Substantive())
	assert.LessOrEqual(t, r.ConfidenceValue(), 50)
	assert.True(t, r.NeedsReview)
	assert.Contains(t, r.Reason, "reassigned from NEEDS_QUALIFICATION")
}

func TestStage_RowCapThenBudgetStop(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedForAI(t, st, nil, contacts(10)...)

	p := &scriptedProvider{respond: constant(model.CategoryClient, 90)}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 30})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Claimed, "30% of 10 rows")
	assert.Equal(t, 7, rep.Remaining)
	assert.False(t, rep.Done())

	rep, err = stage.Run(ctx, job)
	require.NoError(t, err)
	assert.True(t, rep.BudgetStopped)
	assert.True(t, rep.Done())
	assert.Equal(t, 7, rep.Flagged)
	assert.Len(t, p.calls, 1, "no provider call after the cap")

	rows, err := st.ListRows(ctx, job.ID, 20, 0)
	require.NoError(t, err)
	review := 0
	for _, r := range rows {
		if r.Status == model.RowStatusPending {
			assert.True(t, r.NeedsReview)
			review++
		}
	}
	assert.Equal(t, 7, review)

	entries, err := st.ListActivity(ctx, job.ID, 20)
	require.NoError(t, err)
	var warned bool
	for _, e := range entries {
		if e.Severity == model.SeverityWarning {
			warned = true
			assert.Contains(t, e.Message, "AI budget reached")
		}
	}
	assert.True(t, warned)
}

func TestStage_TokenCapStops(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedForAI(t, st, nil, contacts(2)...)
	_, err := st.IncrementJobCounters(ctx, job.ID, model.CounterDelta{AITokens: 1000})
	require.NoError(t, err)

	p := &scriptedProvider{respond: constant(model.CategoryClient, 90)}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 100, MaxAITokens: 1000})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.True(t, rep.BudgetStopped)
	assert.Empty(t, p.calls)
}

func TestStage_BatchFailureSpendsAttempts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedForAI(t, st, nil, contacts(2)...)

	p := &scriptedProvider{respond: func([]cache.AIInput, Tier) ([]model.Result, error) {
		return nil, errors.New("upstream 529")
	}}
	stage := newTestStage(st, p, budget.Governor{MaxAIRowPercent: 100})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Released)
	assert.Equal(t, 2, rep.Remaining)

	rep, err = stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.Remaining)

	rows, err := st.ListRows(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, model.RowStatusFailed, r.Status)
		assert.Equal(t, 2, r.AIAttempts)
		assert.True(t, r.NeedsReview)
	}

	job, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, job.AIRowsClassified, "failed batches are not charged as AI rows")
}
