package enrich

import (
	"context"
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
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedRulesApplied creates a job whose rows have been through the rules
// stage without a confident result.
func seedRulesApplied(t *testing.T, st store.Store, contacts ...model.Contact) *model.Job {
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
		require.NoError(t, st.UpdateRow(ctx, &rows[i]))
	}

	job, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	return job
}

func testSettings() Settings {
	return Settings{
		BatchSize:       50,
		DefaultDepth:    1,
		BusinessDepth:   1,
		ConfidenceFloor: 70,
		ClaimTTL:        10 * time.Minute,
		CacheTTL:        24 * time.Hour,
	}
}

func newTestStage(st store.Store, search SearchProvider, gov budget.Governor, opts ...cache.Option) *Stage {
	e := NewEnricher(search, nil, nil, nil, 3, nil)
	return NewStage(st, e, cache.New(st, opts...), gov, activity.New(st), nil, testSettings())
}

func TestStage_SharedIdentityServedFromCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := model.Contact{Name: "Alice Martin", EmailDomain: "cabinet-martin.fr", City: "Lyon", Country: "FR"}
	b := model.Contact{Name: "Bruno Martin", EmailDomain: "cabinet-martin.fr", City: "Lyon", Country: "FR"}
	job := seedRulesApplied(t, st, a, b)

	search := &fakeSearch{snippets: []string{"Cabinet Martin, architecte à Lyon"}}
	stage := newTestStage(st, search, budget.Governor{MaxSearchCalls: 100})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, search.calls, "second contact must be served from cache")
	assert.Equal(t, 1, rep.CacheHits)
	assert.Equal(t, 2, rep.Enriched)
	assert.Equal(t, 0, rep.Remaining)
	assert.True(t, rep.Done())

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SearchCallsCount)

	rows, err := st.ListRows(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, model.EnrichmentDone, r.EnrichmentStatus)
		assert.Equal(t, model.RowStatusPending, r.Status)
		assert.Equal(t, 1, r.EnrichmentAttempts)
		assert.Nil(t, r.ClaimedAt)
	}
	assert.JSONEq(t, string(rows[0].EnrichmentJSON), string(rows[1].EnrichmentJSON))
}

func TestStage_SecondRunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c := model.Contact{Name: "Garage Dupuis", City: "Nantes", Country: "FR"}
	search := &fakeSearch{snippets: []string{"Garage Dupuis, revendeur automobile"}}
	stage := newTestStage(st, search, budget.Governor{MaxSearchCalls: 100})

	first := seedRulesApplied(t, st, c)
	_, err := stage.Run(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, search.calls)

	second := seedRulesApplied(t, st, c)
	rep, err := stage.Run(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, search.calls, "no external call on a cache hit")
	assert.Equal(t, 1, rep.CacheHits)

	r1, err := st.ListRows(ctx, first.ID, 1, 0)
	require.NoError(t, err)
	r2, err := st.ListRows(ctx, second.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, string(r1[0].EnrichmentJSON), string(r2[0].EnrichmentJSON))

	got, err := st.GetJob(ctx, second.ID)
	require.NoError(t, err)
	assert.Zero(t, got.SearchCallsCount)
}

func TestStage_ExpiredCacheEntryIsMiss(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c := model.Contact{Name: "Garage Dupuis", City: "Nantes", Country: "FR"}
	search := &fakeSearch{snippets: []string{"Garage Dupuis"}}

	first := seedRulesApplied(t, st, c)
	_, err := newTestStage(st, search, budget.Governor{MaxSearchCalls: 100}).Run(ctx, first)
	require.NoError(t, err)

	later := func() time.Time { return time.Now().Add(48 * time.Hour) }
	second := seedRulesApplied(t, st, c)
	_, err = newTestStage(st, search, budget.Governor{MaxSearchCalls: 100}, cache.WithClock(later)).Run(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, search.calls)
}

func TestStage_BudgetExhaustion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedRulesApplied(t, st,
		model.Contact{Name: "A", City: "Paris"},
		model.Contact{Name: "B", City: "Paris"},
		model.Contact{Name: "C", City: "Paris"},
	)
	search := &fakeSearch{snippets: []string{"fournisseur"}}
	stage := newTestStage(st, search, budget.Governor{MaxSearchCalls: 2})

	rep, err := stage.Run(ctx, job)
	require.NoError(t, err)
	assert.True(t, rep.BudgetStopped)
	assert.True(t, rep.Done())
	assert.Equal(t, 2, rep.Enriched)
	assert.Equal(t, 1, rep.Remaining)
	assert.Equal(t, 2, search.calls)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SearchCallsCount)

	rows, err := st.ListRows(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusPending, rows[2].Status)
	assert.Empty(t, rows[2].EnrichmentStatus)
	assert.Nil(t, rows[2].ClaimedAt)

	entries, err := st.ListActivity(ctx, job.ID, 10)
	require.NoError(t, err)
	var warned bool
	for _, e := range entries {
		if e.Severity == model.SeverityWarning {
			warned = true
			assert.Contains(t, e.Message, "Search budget exhausted")
		}
	}
	assert.True(t, warned, "budget stop must be recorded")

	// No further calls in any later invocation while the cap holds.
	rep, err = stage.Run(ctx, got)
	require.NoError(t, err)
	assert.True(t, rep.BudgetStopped)
	assert.Equal(t, 2, search.calls)
}

func TestStage_NoSignalsMarksFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedRulesApplied(t, st, model.Contact{Name: "Jean", EmailDomain: "gmail.com"})
	search := &fakeSearch{}

	rep, err := newTestStage(st, search, budget.Governor{MaxSearchCalls: 10}).Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	rows, err := st.ListRows(ctx, job.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, rows[0].EnrichmentStatus)
	assert.Equal(t, 1, rows[0].EnrichmentAttempts)
	assert.Equal(t, model.RowStatusPending, rows[0].Status)
	assert.Empty(t, rows[0].EnrichmentJSON)
}

func TestStage_SkipsConfidentRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedRulesApplied(t, st, model.Contact{Name: "Confident"})

	rows, err := st.ListRows(ctx, job.ID, 1, 0)
	require.NoError(t, err)
	rows[0].ApplyResult(model.Result{Category: model.CategoryClient, Confidence: 80, Method: model.MethodRules})
	require.NoError(t, st.UpdateRow(ctx, &rows[0]))

	search := &fakeSearch{snippets: []string{"x"}}
	rep, err := newTestStage(st, search, budget.Governor{MaxSearchCalls: 10}).Run(ctx, job)
	require.NoError(t, err)
	assert.Zero(t, rep.Claimed)
	assert.Zero(t, search.calls)
	assert.True(t, rep.Done())
}

func TestStage_BudgetStopAfterChargedEmptySearch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedRulesApplied(t, st, model.Contact{Name: "Atelier Roux", City: "Lille", Country: "FR"})

	search := &fakeSearch{}
	places := &fakePlaces{tags: []string{"hardware_store"}}
	settings := testSettings()
	settings.DefaultDepth = 2
	settings.BusinessDepth = 2
	newStage := func(maxCalls int) *Stage {
		e := NewEnricher(search, places, nil, nil, 3, nil)
		return NewStage(st, e, cache.New(st), budget.Governor{MaxSearchCalls: maxCalls}, activity.New(st), nil, settings)
	}

	rep, err := newStage(1).Run(ctx, job)
	require.NoError(t, err)
	assert.True(t, rep.BudgetStopped)
	assert.Equal(t, 1, rep.Calls)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, search.calls)
	assert.Zero(t, places.calls)

	rows, err := st.ListRows(ctx, job.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, rows[0].EnrichmentStatus)
	assert.Equal(t, 1, rows[0].EnrichmentAttempts)
	assert.Equal(t, model.RowStatusPending, rows[0].Status)
	assert.Nil(t, rows[0].ClaimedAt)

	// A partial lookup is not cached and the row is not enriched again once
	// more budget is available.
	_, hit := cache.New(st).Get(ctx, cache.NamespaceEnrichment, cache.EnrichmentKey(rows[0].Contact))
	assert.False(t, hit)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	rep, err = newStage(3).Run(ctx, got)
	require.NoError(t, err)
	assert.Zero(t, rep.Claimed)
	assert.Equal(t, 1, search.calls)

	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SearchCallsCount)
}

func TestStage_ConsumerDomainContactsNotShared(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := seedRulesApplied(t, st,
		model.Contact{Name: "Jean Dupré", EmailDomain: "gmail.com", City: "Lyon", Country: "FR"},
		model.Contact{Name: "Marie Blanc", EmailDomain: "gmail.com", City: "Lyon", Country: "FR"},
	)
	search := &fakeSearch{snippets: []string{"infirmière libérale à Lyon"}}

	rep, err := newTestStage(st, search, budget.Governor{MaxSearchCalls: 10}).Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, search.calls)
	assert.Zero(t, rep.CacheHits)
	assert.Equal(t, 2, rep.Enriched)
}
