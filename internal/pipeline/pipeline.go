// Package pipeline sequences the classification stages for a job. Each call
// to Advance runs exactly one handler for the job's current status, persists
// the outcome, and schedules the next step through a queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/classify"
	"github.com/sells-group/contact-classifier/internal/enrich"
	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/queue"
	"github.com/sells-group/contact-classifier/internal/resilience"
	"github.com/sells-group/contact-classifier/internal/store"
)

// EnrichStage is the enrichment handler.
type EnrichStage interface {
	Run(ctx context.Context, job *model.Job) (enrich.Report, error)
	Pending(ctx context.Context, jobID string) (int, error)
}

// AIStage is the AI classification handler.
type AIStage interface {
	Run(ctx context.Context, job *model.Job) (classify.Report, error)
	Pending(ctx context.Context, jobID string) (int, error)
}

// Orchestrator is the job state machine.
type Orchestrator struct {
	store    store.Store
	rules    *RulesStage
	enrich   EnrichStage
	ai       AIStage
	queue    queue.Enqueuer
	activity *activity.Recorder
	metrics  *metrics.Metrics

	skipEnrichment bool
	idleDelay      time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQueue sets where continuations are scheduled. Without a queue, Advance
// performs a single step and the caller drives the job.
func WithQueue(q queue.Enqueuer) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithActivity sets the activity recorder.
func WithActivity(r *activity.Recorder) Option {
	return func(o *Orchestrator) { o.activity = r }
}

// WithMetrics records stage durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSkipEnrichment routes jobs straight from rules to AI.
func WithSkipEnrichment(skip bool) Option {
	return func(o *Orchestrator) { o.skipEnrichment = skip }
}

// WithIdleDelay delays the continuation of a step that made no progress,
// such as one whose rows are all leased by another invocation.
func WithIdleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.idleDelay = d }
}

// New creates an Orchestrator. A nil enrich stage behaves like skipped
// enrichment.
func New(st store.Store, rs *RulesStage, es EnrichStage, ai AIStage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		rules:     rs,
		enrich:    es,
		ai:        ai,
		idleDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.enrich == nil {
		o.skipEnrichment = true
	}
	return o
}

// Transition is the outcome of one handler.
type Transition struct {
	From     model.JobStatus
	To       model.JobStatus
	Progress bool
}

// Done reports whether the job reached a terminal status.
func (s Transition) Done() bool { return s.To.Terminal() }

// Advance runs one handler for jobID and schedules the continuation. A job
// that fails permanently is marked FAILED and not rescheduled.
func (o *Orchestrator) Advance(ctx context.Context, jobID string) error {
	_, err := o.Step(ctx, jobID)
	return err
}

// Step is Advance returning the transition taken.
func (o *Orchestrator) Step(ctx context.Context, jobID string) (Transition, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return Transition{}, eris.Wrapf(err, "pipeline: load job %s", jobID)
	}
	step := Transition{From: job.Status, To: job.Status}
	if job.Status.Terminal() || job.Status == model.JobStatusParsing {
		return step, nil
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
	start := time.Now()
	next, progress, err := o.handle(ctx, job)
	o.metrics.ObserveStage(stageLabel(job.Status), time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			return step, err
		}
		if retryable(err) {
			log.Warn("pipeline: step failed, will retry", zap.Error(err))
			o.enqueue(ctx, job.ID, o.idleDelay)
			return step, err
		}
		return o.fail(ctx, job, err)
	}
	step.Progress = progress

	if next != job.Status {
		ok, err := o.store.TransitionJob(ctx, job.ID, job.Status, next)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		if ok {
			step.To = next
			log.Info("pipeline: transition", zap.String("to", string(next)))
		} else {
			log.Debug("pipeline: status changed concurrently", zap.String("wanted", string(next)))
		}
	}

	agg, err := o.store.RefreshJobAggregates(ctx, job.ID)
	if err != nil {
		log.Warn("pipeline: refresh aggregates failed", zap.Error(err))
	}

	if step.To == model.JobStatusCompleted {
		o.complete(ctx, job.ID, agg)
		return step, nil
	}

	delay := time.Duration(0)
	if !step.Progress && step.To == step.From {
		delay = o.idleDelay
	}
	o.enqueue(ctx, job.ID, delay)
	return step, nil
}

// handle runs the handler for job's status and returns the status the job
// should move to.
func (o *Orchestrator) handle(ctx context.Context, job *model.Job) (model.JobStatus, bool, error) {
	switch job.Status {
	case model.JobStatusPending:
		if err := o.store.SetJobStep(ctx, job.ID, "rules"); err != nil {
			return "", false, eris.Wrap(err, "pipeline: set step")
		}
		return model.JobStatusRules, true, nil

	case model.JobStatusRules:
		rep, err := o.rules.Run(ctx, job)
		if err != nil {
			return "", false, err
		}
		if err := o.store.SetJobStep(ctx, job.ID, fmt.Sprintf("rules: %d remaining", rep.Remaining)); err != nil {
			return "", false, eris.Wrap(err, "pipeline: set step")
		}
		if rep.Remaining > 0 {
			return model.JobStatusRules, rep.Claimed > 0, nil
		}
		next, err := o.afterRules(ctx, job.ID)
		return next, true, err

	case model.JobStatusEnriching:
		if o.skipEnrichment {
			return model.JobStatusAIClassifying, true, nil
		}
		rep, err := o.enrich.Run(ctx, job)
		if err != nil {
			return "", false, err
		}
		if rep.Done() {
			return model.JobStatusAIClassifying, true, nil
		}
		return model.JobStatusEnriching, rep.Claimed > 0, nil

	case model.JobStatusAIClassifying:
		pending, err := o.ai.Pending(ctx, job.ID)
		if err != nil {
			return "", false, err
		}
		if pending == 0 {
			return model.JobStatusCompleted, true, nil
		}
		rep, err := o.ai.Run(ctx, job)
		if err != nil {
			return "", false, err
		}
		if rep.Done() {
			return model.JobStatusCompleted, true, nil
		}
		return model.JobStatusAIClassifying, rep.Claimed > 0, nil
	}
	return "", false, eris.Errorf("pipeline: no handler for status %s", job.Status)
}

// afterRules picks the first downstream stage with work to do.
func (o *Orchestrator) afterRules(ctx context.Context, jobID string) (model.JobStatus, error) {
	if !o.skipEnrichment {
		n, err := o.enrich.Pending(ctx, jobID)
		if err != nil {
			return "", err
		}
		if n > 0 {
			return model.JobStatusEnriching, nil
		}
	}
	n, err := o.ai.Pending(ctx, jobID)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return model.JobStatusAIClassifying, nil
	}
	return model.JobStatusCompleted, nil
}

func (o *Orchestrator) complete(ctx context.Context, jobID string, agg *model.Job) {
	meta := map[string]any{}
	msg := "Job completed"
	if agg != nil {
		meta["total_rows"] = agg.TotalRows
		meta["ai_usage_percent"] = agg.AIUsagePercent
		meta["avg_confidence"] = agg.AvgConfidence
		meta["needs_review_count"] = agg.NeedsReviewCount
		meta["search_calls_count"] = agg.SearchCallsCount
		meta["ai_tokens_used"] = agg.AITokensUsed
		msg = fmt.Sprintf("Job completed: %d contacts, %d need review", agg.TotalRows, agg.NeedsReviewCount)
	}
	if err := o.store.SetJobStep(ctx, jobID, "completed"); err != nil {
		zap.L().Warn("pipeline: set step failed", zap.String("job_id", jobID), zap.Error(err))
	}
	o.activity.Success(ctx, jobID, msg, meta)
}

func (o *Orchestrator) fail(ctx context.Context, job *model.Job, cause error) (Transition, error) {
	msg := cause.Error()
	zap.L().Error("pipeline: job failed",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Error(cause),
	)
	if err := o.store.FailJob(ctx, job.ID, msg); err != nil {
		return Transition{From: job.Status, To: job.Status}, eris.Wrap(err, "pipeline: mark job failed")
	}
	o.activity.Error(ctx, job.ID, "Job failed: "+msg, map[string]any{
		"stage": stageLabel(job.Status),
		"kind":  resilience.ClassifyError(cause),
	})
	return Transition{From: job.Status, To: model.JobStatusFailed}, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, jobID string, delay time.Duration) {
	if o.queue == nil {
		return
	}
	if err := o.queue.Enqueue(ctx, queue.NewTask(jobID, delay)); err != nil {
		zap.L().Error("pipeline: enqueue continuation failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// retryable reports whether a handler error should leave the job in place
// for another attempt instead of failing it.
func retryable(err error) bool {
	if errors.Is(err, classify.ErrNoProvider) {
		return false
	}
	return resilience.IsTransient(err)
}

func stageLabel(s model.JobStatus) string {
	switch s {
	case model.JobStatusPending:
		return "start"
	case model.JobStatusRules:
		return "rules"
	case model.JobStatusEnriching:
		return "enrichment"
	case model.JobStatusAIClassifying:
		return "ai"
	}
	return string(s)
}
