package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/budget"
	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/config"
	"github.com/sells-group/contact-classifier/internal/cost"
	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/store"
)

// ErrNoProvider is returned when the stage runs without an AI provider.
var ErrNoProvider = eris.New("classify: no AI provider configured")

// Settings configures the AI stage.
type Settings struct {
	BatchSize       int
	AcceptThreshold int
	MaxAttempts     int
	ClaimTTL        time.Duration
}

// SettingsFromConfig extracts the stage settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BatchSize:       cfg.AI.BatchSize,
		AcceptThreshold: cfg.AI.AcceptThreshold,
		MaxAttempts:     cfg.AI.MaxAttempts,
		ClaimTTL:        cfg.Queue.ClaimTTL(),
	}
}

// Report summarizes one stage invocation.
type Report struct {
	Claimed       int
	Classified    int
	Failed        int
	Released      int
	Reassigned    int
	Escalated     int
	CacheHit      bool
	Tokens        int64
	Flagged       int
	Remaining     int
	BudgetStopped bool
}

// Done reports whether the job can leave the AI stage.
func (r Report) Done() bool {
	return r.BudgetStopped || r.Remaining == 0
}

// Stage classifies one batch of AI-eligible rows per invocation.
type Stage struct {
	store      store.Store
	classifier *Classifier
	policy     FallbackPolicy
	governor   budget.Governor
	activity   *activity.Recorder
	metrics    *metrics.Metrics
	costs      *cost.Calculator
	settings   Settings
	now        func() time.Time
}

// NewStage creates the AI stage. A nil classifier makes every run fail with
// ErrNoProvider.
func NewStage(st store.Store, c *Classifier, policy FallbackPolicy, gov budget.Governor, rec *activity.Recorder, m *metrics.Metrics, costs *cost.Calculator, s Settings) *Stage {
	if s.BatchSize <= 0 {
		s.BatchSize = 20
	}
	if s.AcceptThreshold <= 0 {
		s.AcceptThreshold = 70
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 2
	}
	return &Stage{
		store:      st,
		classifier: c,
		policy:     policy,
		governor:   gov,
		activity:   rec,
		metrics:    m,
		costs:      costs,
		settings:   s,
		now:        time.Now,
	}
}

// Filter selects rows without a category or below the AI acceptance
// threshold that still have attempts left.
func (s *Stage) Filter(limit int) store.RowFilter {
	threshold := s.settings.AcceptThreshold
	applied := true
	f := store.RowFilter{
		Statuses:            []model.RowStatus{model.RowStatusPending},
		RulesApplied:        &applied,
		CategoryNullOrBelow: &threshold,
		MaxAIAttempts:       s.settings.MaxAttempts,
		Limit:               limit,
	}
	if s.settings.ClaimTTL > 0 {
		f.ReclaimBefore = s.now().Add(-s.settings.ClaimTTL)
	}
	return f
}

// Pending counts rows still eligible for AI classification.
func (s *Stage) Pending(ctx context.Context, jobID string) (int, error) {
	n, err := s.store.CountRows(ctx, jobID, s.Filter(0))
	if err != nil {
		return 0, eris.Wrap(err, "classify: count pending")
	}
	return n, nil
}

// Run classifies one batch within the job's AI-row and token caps.
func (s *Stage) Run(ctx context.Context, job *model.Job) (Report, error) {
	var rep Report
	if s.classifier == nil {
		return rep, ErrNoProvider
	}
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("stage", "ai"))

	latest, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return rep, eris.Wrap(err, "classify: read job counters")
	}
	if !s.governor.MayClassifyWithAI(latest) {
		return s.stopForBudget(ctx, latest)
	}

	limit := s.settings.BatchSize
	if r := s.governor.RemainingAIRows(latest); r < limit {
		limit = r
	}
	rows, err := s.store.ClaimRows(ctx, job.ID, s.Filter(limit), "")
	if err != nil {
		return rep, eris.Wrap(err, "classify: claim rows")
	}
	rep.Claimed = len(rows)

	if len(rows) > 0 {
		if err := s.classifyRows(ctx, latest, rows, &rep); err != nil {
			return rep, err
		}
	}

	remaining, err := s.Pending(ctx, job.ID)
	if err != nil {
		return rep, err
	}
	rep.Remaining = remaining
	if err := s.store.SetJobStep(ctx, job.ID, fmt.Sprintf("ai: %d remaining", remaining)); err != nil {
		log.Warn("classify: set job step failed", zap.Error(err))
	}

	log.Info("classify: batch complete",
		zap.Int("claimed", rep.Claimed),
		zap.Int("classified", rep.Classified),
		zap.Int("failed", rep.Failed),
		zap.Int("escalated", rep.Escalated),
		zap.Int("reassigned", rep.Reassigned),
		zap.Bool("cache_hit", rep.CacheHit),
		zap.Int64("tokens", rep.Tokens),
		zap.Int("remaining", rep.Remaining),
	)
	return rep, nil
}

func (s *Stage) classifyRows(ctx context.Context, job *model.Job, rows []model.Row, rep *Report) error {
	inputs := make([]cache.AIInput, len(rows))
	enrichments := make([]*model.EnrichmentPayload, len(rows))
	for i := range rows {
		enrichments[i] = rows[i].Enrichment()
		inputs[i] = Input(rows[i].Contact, enrichments[i])
	}

	batch, err := s.classifier.ClassifyBatch(ctx, inputs, job.Language)
	if err != nil {
		return s.failBatch(ctx, job, rows, err, rep)
	}

	rep.CacheHit = batch.CacheHit
	rep.Escalated = batch.Escalated
	rep.Tokens = batch.Usage.Total()

	if _, err := s.store.IncrementJobCounters(ctx, job.ID, model.CounterDelta{
		AITokens: batch.Usage.Total(),
		AIRows:   len(rows),
	}); err != nil {
		return eris.Wrap(err, "classify: increment ai counters")
	}

	for i := range rows {
		row := &rows[i]
		res := batch.Results[i]
		res.Method = model.MethodAI
		if row.Category != "" {
			res.Method = model.MethodHybrid
		}
		res, reassigned := s.policy.Apply(res, row.Contact, enrichments[i])
		if reassigned {
			rep.Reassigned++
			s.metrics.FallbackReassigned()
		}
		if res.Confidence < s.settings.AcceptThreshold {
			res.NeedsReview = true
		}

		row.ApplyResult(res)
		row.AIUsed = true
		row.AIAttempts++
		row.Status = model.RowStatusCompleted
		row.ClaimedAt = nil
		if err := s.store.UpdateRow(ctx, row); err != nil {
			return eris.Wrapf(err, "classify: update row %s", row.ID)
		}
		rep.Classified++
	}

	s.activity.Info(ctx, job.ID,
		fmt.Sprintf("AI classified %d contacts", len(rows)),
		s.batchMetadata(batch, rep))
	return nil
}

// failBatch spends one attempt on every row. Rows out of attempts become
// FAILED and reviewable; the rest go back to PENDING.
func (s *Stage) failBatch(ctx context.Context, job *model.Job, rows []model.Row, cause error, rep *Report) error {
	for i := range rows {
		row := &rows[i]
		row.AIAttempts++
		row.ClaimedAt = nil
		if row.AIAttempts >= s.settings.MaxAttempts {
			row.Status = model.RowStatusFailed
			row.NeedsReview = true
			rep.Failed++
		} else {
			row.Status = model.RowStatusPending
			rep.Released++
		}
		if err := s.store.UpdateRow(ctx, row); err != nil {
			return eris.Wrapf(err, "classify: update row %s", row.ID)
		}
	}
	s.activity.Warn(ctx, job.ID,
		fmt.Sprintf("AI batch of %d contacts failed: %v", len(rows), cause),
		map[string]any{
			"rows_failed":   rep.Failed,
			"rows_released": rep.Released,
		})
	return nil
}

func (s *Stage) stopForBudget(ctx context.Context, job *model.Job) (Report, error) {
	rep := Report{BudgetStopped: true}
	filter := s.Filter(0)
	filter.ReclaimBefore = time.Time{}
	n, err := s.store.FlagNeedsReview(ctx, job.ID, filter)
	if err != nil {
		return rep, eris.Wrap(err, "classify: flag needs review")
	}
	rep.Flagged = n
	s.metrics.BudgetStop("ai")
	s.activity.Warn(ctx, job.ID,
		fmt.Sprintf("AI budget reached: %d contacts left for manual review", n),
		map[string]any{
			"ai_usage_percent":   budget.AIUsagePercent(job),
			"max_ai_row_percent": s.governor.MaxAIRowPercent,
			"ai_tokens_used":     job.AITokensUsed,
			"max_ai_tokens":      s.governor.MaxAITokens,
		})
	return rep, nil
}

func (s *Stage) batchMetadata(batch *BatchResult, rep *Report) map[string]any {
	meta := map[string]any{
		"cache_hit":  batch.CacheHit,
		"escalated":  batch.Escalated,
		"reassigned": rep.Reassigned,
		"tokens":     batch.Usage.Total(),
	}
	var usd float64
	models := make([]string, 0, len(batch.Calls))
	for _, c := range batch.Calls {
		models = append(models, c.Model)
		usd += s.costs.Claude(c.Model, c.Usage.InputTokens, c.Usage.OutputTokens)
	}
	if len(batch.Calls) > 0 {
		meta["models"] = models
		meta["cost_usd"] = usd
		first := batch.Calls[0]
		meta["prompt_excerpt"] = activity.Excerpt(first.Prompt)
		meta["response_excerpt"] = activity.Excerpt(first.Raw)
	}
	return meta
}

// Input builds the cache-key and prompt view of a contact.
func Input(c model.Contact, enrichment *model.EnrichmentPayload) cache.AIInput {
	in := cache.AIInput{
		Name:     c.Name,
		Activity: c.Activity,
		Email:    c.Email,
		City:     c.City,
		Country:  c.Country,
	}
	if enrichment != nil {
		in.Enrichment = enrichment.SignalsSummary
	}
	return in
}
