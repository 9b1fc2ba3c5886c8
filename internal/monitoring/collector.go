// Package monitoring periodically inspects non-terminal jobs and re-triggers
// the ones whose continuation was lost.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-classifier/internal/model"
)

// activeStatuses are the statuses the orchestrator advances on its own.
var activeStatuses = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusRules,
	model.JobStatusEnriching,
	model.JobStatusAIClassifying,
}

// Snapshot holds a point-in-time view of job health.
type Snapshot struct {
	ByStatus    map[model.JobStatus]int `json:"by_status"`
	Stalled     []string                `json:"stalled"`
	StaleAfter  time.Duration           `json:"stale_after"`
	CollectedAt time.Time               `json:"collected_at"`
}

// Active returns the number of non-terminal jobs past PARSING.
func (s *Snapshot) Active() int {
	n := 0
	for _, st := range activeStatuses {
		n += s.ByStatus[st]
	}
	return n
}

// JobLister is the store subset the collector reads.
type JobLister interface {
	ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)
}

// Collector gathers job health from the store.
type Collector struct {
	store JobLister
	limit int
	now   func() time.Time
}

// NewCollector creates a collector reading at most limit jobs per status.
func NewCollector(st JobLister, limit int) *Collector {
	if limit <= 0 {
		limit = 500
	}
	return &Collector{store: st, limit: limit, now: time.Now}
}

// Collect counts active jobs per status and lists those not updated within
// staleAfter.
func (c *Collector) Collect(ctx context.Context, staleAfter time.Duration) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		ByStatus:    make(map[model.JobStatus]int, len(activeStatuses)),
		StaleAfter:  staleAfter,
		CollectedAt: now,
	}
	cutoff := now.Add(-staleAfter)

	for _, status := range activeStatuses {
		jobs, err := c.store.ListJobs(ctx, status, c.limit)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s jobs", status)
		}
		snap.ByStatus[status] = len(jobs)
		for _, j := range jobs {
			if j.UpdatedAt.Before(cutoff) {
				snap.Stalled = append(snap.Stalled, j.ID)
			}
		}
	}
	return snap, nil
}
