package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/rules"
	"github.com/sells-group/contact-classifier/internal/store"
)

// RulesReport summarizes one rules batch.
type RulesReport struct {
	Claimed   int
	Accepted  int
	Completed int
	Hinted    int
	Remaining int
}

// RulesStage runs the keyword engine over rows not yet seen by rules.
type RulesStage struct {
	store     store.Store
	engine    *rules.Engine
	activity  *activity.Recorder
	batchSize int
	// completeAt is the confidence at which a rules result is final and the
	// row skips enrichment and AI.
	completeAt int
	claimTTL   time.Duration
	now        func() time.Time
}

// NewRulesStage creates the rules stage.
func NewRulesStage(st store.Store, engine *rules.Engine, rec *activity.Recorder, batchSize, completeAt int, claimTTL time.Duration) *RulesStage {
	if engine == nil {
		engine = rules.New(nil, rules.DefaultThresholds())
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if completeAt <= 0 {
		completeAt = 70
	}
	return &RulesStage{
		store:      st,
		engine:     engine,
		activity:   rec,
		batchSize:  batchSize,
		completeAt: completeAt,
		claimTTL:   claimTTL,
		now:        time.Now,
	}
}

// Filter selects pending rows that rules have not evaluated.
func (s *RulesStage) Filter(limit int) store.RowFilter {
	applied := false
	f := store.RowFilter{
		Statuses:     []model.RowStatus{model.RowStatusPending},
		RulesApplied: &applied,
		Limit:        limit,
	}
	if s.claimTTL > 0 {
		f.ReclaimBefore = s.now().Add(-s.claimTTL)
	}
	return f
}

// Pending counts rows still waiting for rules.
func (s *RulesStage) Pending(ctx context.Context, jobID string) (int, error) {
	n, err := s.store.CountRows(ctx, jobID, s.Filter(0))
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: count rules pending")
	}
	return n, nil
}

// Run classifies one batch. An accepted result at or above completeAt
// completes the row; anything weaker, including a structural hint, is kept
// as a provisional category for the later stages.
func (s *RulesStage) Run(ctx context.Context, job *model.Job) (RulesReport, error) {
	var rep RulesReport
	rows, err := s.store.ClaimRows(ctx, job.ID, s.Filter(s.batchSize), "")
	if err != nil {
		return rep, eris.Wrap(err, "pipeline: claim rules rows")
	}
	rep.Claimed = len(rows)

	for i := range rows {
		row := &rows[i]
		res := s.engine.Classify(row.Contact, job.Language)
		if res != nil {
			rep.Accepted++
		} else if h := rules.FieldHeuristics(row.Contact); h != nil {
			res = &model.Result{
				Category:    h.Category,
				Confidence:  h.Score,
				Reason:      hintReason(job.Language, h.Signal),
				Signals:     h.Signal,
				NeedsReview: true,
				Method:      model.MethodRules,
			}
			rep.Hinted++
		}

		row.RulesApplied = true
		row.Status = model.RowStatusPending
		row.ClaimedAt = nil
		if res != nil {
			row.ApplyResult(*res)
			if res.Confidence >= s.completeAt && res.Category.Substantive() {
				row.Status = model.RowStatusCompleted
				rep.Completed++
			}
		}
		if err := s.store.UpdateRow(ctx, row); err != nil {
			return rep, eris.Wrapf(err, "pipeline: update row %s", row.ID)
		}
	}

	remaining, err := s.Pending(ctx, job.ID)
	if err != nil {
		return rep, err
	}
	rep.Remaining = remaining

	if rep.Claimed > 0 {
		s.activity.Info(ctx, job.ID,
			fmt.Sprintf("Rules classified %d of %d contacts", rep.Completed, rep.Claimed),
			map[string]any{
				"accepted":  rep.Accepted,
				"completed": rep.Completed,
				"hinted":    rep.Hinted,
				"remaining": rep.Remaining,
			})
	}
	zap.L().Debug("pipeline: rules batch",
		zap.String("job_id", job.ID),
		zap.Int("claimed", rep.Claimed),
		zap.Int("completed", rep.Completed),
		zap.Int("remaining", rep.Remaining),
	)
	return rep, nil
}

func hintReason(lang, signal string) string {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return "Structural hint: " + signal
	}
	return "Indice structurel : " + signal
}
