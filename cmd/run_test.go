package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/budget"
	"github.com/sells-group/contact-classifier/internal/classify"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/pipeline"
	"github.com/sells-group/contact-classifier/internal/rules"
)

// newTestEnv wires the rules stage and an AI stage without a provider.
func newTestEnv(t *testing.T) *classifierEnv {
	t.Helper()
	c := testConfig(t)
	st, err := initStore(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := rules.New(nil, rules.DefaultThresholds())
	rec := activity.New(st)
	gov := budget.Governor{MaxSearchCalls: 10, MaxAIRowPercent: 30}
	return &classifierEnv{
		Store:    st,
		Activity: rec,
		rules:    pipeline.NewRulesStage(st, engine, rec, c.Rules.BatchSize, c.AI.AcceptThreshold, 0),
		ai: classify.NewStage(st, nil, classify.NewFallbackPolicy(30, 50, engine), gov, rec, nil, nil,
			classify.Settings{BatchSize: c.AI.BatchSize, AcceptThreshold: c.AI.AcceptThreshold, MaxAttempts: c.AI.MaxAttempts}),
	}
}

func TestRunJob_RulesOnlyCompletes(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "contacts.csv", "nom,activite,ville\nMartin Dupont,pharmacien à Lyon,Lyon\n")

	job, err := importFile(t.Context(), env.Store, path, "fr")
	require.NoError(t, err)

	done, err := runJob(t.Context(), env, job.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 1, done.ProcessedRows)
	assert.Zero(t, done.AIRowsClassified)

	rows, err := env.Store.ListRows(t.Context(), job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.CategoryPrescriber, rows[0].Category)
	assert.Equal(t, model.MethodRules, rows[0].Method)
}

func TestRunJob_NoProviderFailsAIWork(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "contacts.csv", "nom,email\nClaire Petit,claire@gmail.com\n")

	job, err := importFile(t.Context(), env.Store, path, "fr")
	require.NoError(t, err)

	done, err := runJob(t.Context(), env, job.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "no AI provider")
}

func TestWaitTerminal_ContextCancelled(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.Store.CreateJob(t.Context(), "fr")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	got, err := waitTerminal(ctx, env.Store, job.ID, 5*time.Millisecond)
	require.Error(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.JobStatusParsing, got.Status)
}
