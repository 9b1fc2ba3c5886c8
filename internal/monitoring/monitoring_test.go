package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/queue"
)

type stubLister struct {
	jobs map[model.JobStatus][]model.Job
	err  error
}

func (s *stubLister) ListJobs(_ context.Context, status model.JobStatus, _ int) ([]model.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.jobs[status], nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	fail  string
}

func (q *recordingQueue) Enqueue(_ context.Context, t queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.JobID == q.fail {
		return eris.New("publish failed")
	}
	q.tasks = append(q.tasks, t)
	return nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() *stubLister {
	return &stubLister{jobs: map[model.JobStatus][]model.Job{
		model.JobStatusRules: {
			{ID: "fresh", Status: model.JobStatusRules, UpdatedAt: now.Add(-time.Minute)},
			{ID: "stuck-rules", Status: model.JobStatusRules, UpdatedAt: now.Add(-time.Hour)},
		},
		model.JobStatusAIClassifying: {
			{ID: "stuck-ai", Status: model.JobStatusAIClassifying, UpdatedAt: now.Add(-10 * time.Minute)},
		},
	}}
}

func TestCollector_Collect(t *testing.T) {
	c := NewCollector(fixture(), 0)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.ByStatus[model.JobStatusRules])
	assert.Equal(t, 1, snap.ByStatus[model.JobStatusAIClassifying])
	assert.Zero(t, snap.ByStatus[model.JobStatusPending])
	assert.Equal(t, 3, snap.Active())
	assert.ElementsMatch(t, []string{"stuck-rules", "stuck-ai"}, snap.Stalled)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollector_StoreError(t *testing.T) {
	c := NewCollector(&stubLister{err: eris.New("db down")}, 10)

	_, err := c.Collect(context.Background(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list")
}

func TestChecker_CheckEnqueuesStalled(t *testing.T) {
	c := NewCollector(fixture(), 0)
	c.now = func() time.Time { return now }
	q := &recordingQueue{fail: "stuck-ai"}
	checker := NewChecker(c, q, time.Minute, 5*time.Minute)

	sent := checker.Check(context.Background(), zap.NewNop())
	assert.Equal(t, 1, sent)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, "stuck-rules", q.tasks[0].JobID)
}

func TestChecker_CheckCollectError(t *testing.T) {
	q := &recordingQueue{}
	checker := NewChecker(NewCollector(&stubLister{err: eris.New("db down")}, 0), q, 0, 0)

	assert.Zero(t, checker.Check(context.Background(), zap.NewNop()))
	assert.Empty(t, q.tasks)
}

func TestChecker_Defaults(t *testing.T) {
	checker := NewChecker(NewCollector(&stubLister{}, 0), &recordingQueue{}, 0, 0)
	assert.Equal(t, time.Minute, checker.interval)
	assert.Equal(t, 5*time.Minute, checker.staleAfter)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	checker := NewChecker(NewCollector(&stubLister{}, 0), &recordingQueue{}, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}
