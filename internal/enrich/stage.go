package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/budget"
	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/config"
	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/store"
)

// Settings configures the enrichment stage.
type Settings struct {
	BatchSize       int
	DefaultDepth    int
	BusinessDepth   int
	ConfidenceFloor int
	ClaimTTL        time.Duration
	CacheTTL        time.Duration
}

// SettingsFromConfig extracts the stage settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BatchSize:       cfg.Enrichment.BatchSize,
		DefaultDepth:    cfg.Enrichment.DefaultDepth,
		BusinessDepth:   cfg.Enrichment.BusinessDepth,
		ConfidenceFloor: cfg.Enrichment.ConfidenceFloor,
		ClaimTTL:        cfg.Queue.ClaimTTL(),
		CacheTTL:        cfg.Cache.EnrichmentTTL(),
	}
}

// Report summarizes one stage invocation.
type Report struct {
	Claimed       int
	Enriched      int
	Failed        int
	CacheHits     int
	Calls         int
	Remaining     int
	BudgetStopped bool
}

// Done reports whether the job can leave the enrichment stage.
func (r Report) Done() bool {
	return r.BudgetStopped || r.Remaining == 0
}

// Stage processes one batch of enrichment-eligible rows per invocation.
type Stage struct {
	store    store.Store
	enricher *Enricher
	cache    *cache.Layer
	governor budget.Governor
	activity *activity.Recorder
	metrics  *metrics.Metrics
	settings Settings
	now      func() time.Time
}

// NewStage creates the enrichment stage.
func NewStage(st store.Store, e *Enricher, c *cache.Layer, gov budget.Governor, rec *activity.Recorder, m *metrics.Metrics, s Settings) *Stage {
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
	if s.ConfidenceFloor <= 0 {
		s.ConfidenceFloor = 70
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = 30 * 24 * time.Hour
	}
	return &Stage{
		store:    st,
		enricher: e,
		cache:    c,
		governor: gov,
		activity: rec,
		metrics:  m,
		settings: s,
		now:      time.Now,
	}
}

// Filter selects rows that rules left unclassified or below the confidence
// floor and that have not been enriched yet.
func (s *Stage) Filter(limit int) store.RowFilter {
	floor := s.settings.ConfidenceFloor
	applied := true
	f := store.RowFilter{
		Statuses:            []model.RowStatus{model.RowStatusPending},
		RulesApplied:        &applied,
		CategoryNullOrBelow: &floor,
		EnrichmentPending:   true,
		Limit:               limit,
	}
	if s.settings.ClaimTTL > 0 {
		f.ReclaimBefore = s.now().Add(-s.settings.ClaimTTL)
	}
	return f
}

// Pending counts rows still waiting for enrichment.
func (s *Stage) Pending(ctx context.Context, jobID string) (int, error) {
	n, err := s.store.CountRows(ctx, jobID, s.Filter(0))
	if err != nil {
		return 0, eris.Wrap(err, "enrich: count pending")
	}
	return n, nil
}

// Run claims one batch, enriches each row through the cache, and stops early
// when the job's search budget is spent.
func (s *Stage) Run(ctx context.Context, job *model.Job) (Report, error) {
	var rep Report
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("stage", "enrichment"))

	rows, err := s.store.ClaimRows(ctx, job.ID, s.Filter(s.settings.BatchSize), model.EnrichmentSearching)
	if err != nil {
		return rep, eris.Wrap(err, "enrich: claim rows")
	}
	rep.Claimed = len(rows)

	gate := &jobBudget{store: s.store, gov: s.governor, jobID: job.ID}
	for i := range rows {
		stop, written, err := s.enrichRow(ctx, &rows[i], gate, &rep)
		if err != nil {
			s.release(ctx, rows[i:])
			return rep, err
		}
		if !stop {
			continue
		}
		rest := rows[i:]
		if written {
			rest = rows[i+1:]
		}
		s.release(ctx, rest)
		rep.BudgetStopped = true
		s.metrics.BudgetStop("enrichment")
		s.activity.Warn(ctx, job.ID,
			fmt.Sprintf("Search budget exhausted: %d rows left without enrichment", len(rest)),
			map[string]any{
				"max_search_calls": s.governor.MaxSearchCalls,
				"rows_released":    len(rest),
			})
		break
	}

	remaining, err := s.Pending(ctx, job.ID)
	if err != nil {
		return rep, err
	}
	rep.Remaining = remaining

	if err := s.store.SetJobStep(ctx, job.ID, fmt.Sprintf("enrichment: %d remaining", remaining)); err != nil {
		log.Warn("enrich: set job step failed", zap.Error(err))
	}
	if rep.Enriched+rep.Failed > 0 {
		s.activity.Info(ctx, job.ID,
			fmt.Sprintf("Enriched %d contacts (%d without usable signals)", rep.Enriched+rep.Failed, rep.Failed),
			map[string]any{
				"cache_hits":   rep.CacheHits,
				"search_calls": rep.Calls,
			})
	}

	log.Info("enrich: batch complete",
		zap.Int("claimed", rep.Claimed),
		zap.Int("enriched", rep.Enriched),
		zap.Int("failed", rep.Failed),
		zap.Int("cache_hits", rep.CacheHits),
		zap.Int("calls", rep.Calls),
		zap.Int("remaining", rep.Remaining),
		zap.Bool("budget_stopped", rep.BudgetStopped),
	)
	return rep, nil
}

// enrichRow returns stop when the budget refused a call, and written when
// the row was persisted before stopping. A row that was charged for at least
// one call is always persisted, even when the budget cut its lookup short,
// so the paid result is never repeated.
func (s *Stage) enrichRow(ctx context.Context, row *model.Row, gate Budget, rep *Report) (stop, written bool, err error) {
	key := cache.EnrichmentKey(row.Contact)
	depth := DepthFor(row.Contact, s.settings.DefaultDepth, s.settings.BusinessDepth)

	if raw, ok := s.cache.Get(ctx, cache.NamespaceEnrichment, key); ok {
		rep.CacheHits++
		return false, true, s.writeRow(ctx, row, raw, depth, rep)
	}

	lk, err := s.enricher.Enrich(ctx, row.Contact, depth, gate)
	if err != nil {
		return false, false, err
	}
	rep.Calls += lk.Calls
	if lk.Exhausted && lk.Calls == 0 {
		return true, false, nil
	}

	raw, err := json.Marshal(lk.Payload)
	if err != nil {
		return false, false, eris.Wrap(err, "enrich: marshal payload")
	}
	if lk.Complete() {
		if err := s.cache.Put(ctx, cache.NamespaceEnrichment, key, raw, s.settings.CacheTTL); err != nil {
			zap.L().Warn("enrich: cache write failed", zap.String("row_id", row.ID), zap.Error(err))
		}
	}
	return lk.Exhausted, true, s.writeRow(ctx, row, raw, depth, rep)
}

func (s *Stage) writeRow(ctx context.Context, row *model.Row, raw []byte, depth int, rep *Report) error {
	row.EnrichmentAttempts++
	row.Status = model.RowStatusPending
	row.ClaimedAt = nil
	row.EnrichmentJSON = nil
	row.EnrichmentDepth = depth

	row.EnrichmentStatus = model.EnrichmentFailed
	if len(raw) > 0 && string(raw) != "null" {
		row.EnrichmentJSON = raw
		if p := row.Enrichment(); p != nil {
			row.EnrichmentStatus = model.EnrichmentDone
			row.EnrichmentDepth = p.Depth
		}
	}
	if row.EnrichmentStatus == model.EnrichmentDone {
		rep.Enriched++
	} else {
		row.EnrichmentJSON = nil
		rep.Failed++
	}

	if err := s.store.UpdateRow(ctx, row); err != nil {
		return eris.Wrapf(err, "enrich: update row %s", row.ID)
	}
	return nil
}

func (s *Stage) release(ctx context.Context, rows []model.Row) {
	if len(rows) == 0 {
		return
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := s.store.ReleaseRows(ctx, ids); err != nil {
		zap.L().Warn("enrich: release rows failed", zap.Int("rows", len(ids)), zap.Error(err))
	}
}

// jobBudget checks the governor against freshly read counters before every
// call and increments the persisted counter after it.
type jobBudget struct {
	store store.Store
	gov   budget.Governor
	jobID string
}

func (b *jobBudget) Allow(ctx context.Context) (bool, error) {
	job, err := b.store.GetJob(ctx, b.jobID)
	if err != nil {
		return false, eris.Wrap(err, "enrich: read job counters")
	}
	return b.gov.MaySearch(job), nil
}

func (b *jobBudget) Charge(ctx context.Context) error {
	_, err := b.store.IncrementJobCounters(ctx, b.jobID, model.CounterDelta{SearchCalls: 1})
	return eris.Wrap(err, "enrich: increment search calls")
}
