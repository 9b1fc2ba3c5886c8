// Package activity appends timeline events to a job. Recording is
// fire-and-forget: a failed append is logged and never returned.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/model"
)

// ExcerptLimit bounds prompt and response excerpts stored in metadata.
const ExcerptLimit = 500

// Sink persists activity entries.
type Sink interface {
	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
}

// Recorder writes activity entries and mirrors them to the zap logger.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// New creates a Recorder. A nil sink only logs.
func New(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Record appends one entry.
func (r *Recorder) Record(ctx context.Context, jobID string, sev model.Severity, msg string, meta map[string]any) {
	log := zap.L().With(zap.String("job_id", jobID), zap.String("severity", string(sev)))
	if len(meta) > 0 {
		log = log.With(zap.Any("metadata", meta))
	}
	switch sev {
	case model.SeverityError:
		log.Error(msg)
	case model.SeverityWarning:
		log.Warn(msg)
	default:
		log.Info(msg)
	}

	if r == nil || r.sink == nil {
		return
	}
	entry := model.ActivityEntry{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Message:   msg,
		Severity:  sev,
		Metadata:  meta,
		CreatedAt: r.now().UTC(),
	}
	if err := r.sink.AppendActivity(ctx, entry); err != nil {
		zap.L().Warn("activity: append failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (r *Recorder) Info(ctx context.Context, jobID, msg string, meta map[string]any) {
	r.Record(ctx, jobID, model.SeverityInfo, msg, meta)
}

func (r *Recorder) Success(ctx context.Context, jobID, msg string, meta map[string]any) {
	r.Record(ctx, jobID, model.SeveritySuccess, msg, meta)
}

func (r *Recorder) Warn(ctx context.Context, jobID, msg string, meta map[string]any) {
	r.Record(ctx, jobID, model.SeverityWarning, msg, meta)
}

func (r *Recorder) Error(ctx context.Context, jobID, msg string, meta map[string]any) {
	r.Record(ctx, jobID, model.SeverityError, msg, meta)
}

// Excerpt truncates s to ExcerptLimit runes.
func Excerpt(s string) string {
	r := []rune(s)
	if len(r) <= ExcerptLimit {
		return s
	}
	return string(r[:ExcerptLimit]) + "…"
}
