// Package queue schedules orchestrator continuations. Each task names a job
// to advance by exactly one step; all state lives in the store, so a task can
// be delivered twice or dropped and retried without harm.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-classifier/internal/metrics"
)

// Task asks a worker to advance one job.
type Task struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	NotBefore  time.Time `json:"not_before,omitempty"`
}

// NewTask creates a task due after delay.
func NewTask(jobID string, delay time.Duration) Task {
	now := time.Now().UTC()
	t := Task{JobID: jobID, EnqueuedAt: now}
	if delay > 0 {
		t.NotBefore = now.Add(delay)
	}
	return t
}

// Enqueuer accepts continuation tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
}

// Handler advances the job named by a task.
type Handler func(ctx context.Context, jobID string) error

// ErrClosed is returned by Enqueue after Run has returned.
var ErrClosed = eris.New("queue: closed")

type taskState int

const (
	stateQueued taskState = iota + 1
	stateRunning
	// stateRequeue marks a running job that received a new task; it is
	// queued again once the current run finishes.
	stateRequeue
)

// Local is an in-process worker pool. At most one task per job is queued or
// running at a time; duplicates collapse into one.
type Local struct {
	handler Handler
	workers int
	metrics *metrics.Metrics

	tasks chan Task
	done  chan struct{}

	mu      sync.Mutex
	state   map[string]taskState
	next    map[string]Task
	timers  map[string]*time.Timer
	closed  bool
	running bool
}

// LocalOption configures a Local queue.
type LocalOption func(*Local)

// WithWorkers sets the number of concurrent handlers.
func WithWorkers(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithMetrics records queue lag and in-flight tasks.
func WithMetrics(m *metrics.Metrics) LocalOption {
	return func(l *Local) { l.metrics = m }
}

// NewLocal creates a pool that calls h for every task.
func NewLocal(h Handler, opts ...LocalOption) *Local {
	l := &Local{
		handler: h,
		workers: 4,
		state:   make(map[string]taskState),
		next:    make(map[string]Task),
		timers:  make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(l)
	}
	l.tasks = make(chan Task, 256)
	l.done = make(chan struct{})
	return l
}

// Enqueue schedules t. A task for a job that is already queued is dropped.
// A task for a running job is held until that run completes.
func (l *Local) Enqueue(ctx context.Context, t Task) error {
	if t.JobID == "" {
		return eris.New("queue: task has no job id")
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	switch l.state[t.JobID] {
	case stateQueued, stateRequeue:
		l.mu.Unlock()
		zap.L().Debug("queue: duplicate task dropped", zap.String("job_id", t.JobID))
		return nil
	case stateRunning:
		l.state[t.JobID] = stateRequeue
		l.next[t.JobID] = t
		l.mu.Unlock()
		return nil
	}
	l.state[t.JobID] = stateQueued
	l.mu.Unlock()

	return l.dispatch(ctx, t)
}

// dispatch hands t to the workers. Delayed tasks wait on a timer.
func (l *Local) dispatch(ctx context.Context, t Task) error {
	if time.Until(t.NotBefore) > 0 {
		l.schedule(t)
		return nil
	}
	select {
	case l.tasks <- t:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		l.forget(t.JobID)
		return eris.Wrap(ctx.Err(), "queue: enqueue")
	}
}

func (l *Local) schedule(t Task) {
	wait := time.Until(t.NotBefore)
	if wait < 0 {
		wait = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers[t.JobID] = time.AfterFunc(wait, func() {
		l.mu.Lock()
		delete(l.timers, t.JobID)
		l.mu.Unlock()
		select {
		case l.tasks <- t:
		case <-l.done:
		}
	})
}

func (l *Local) forget(jobID string) {
	l.mu.Lock()
	delete(l.state, jobID)
	delete(l.next, jobID)
	l.mu.Unlock()
}

// Pending returns the number of jobs queued or running.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}

// Run processes tasks until ctx is cancelled, then waits for in-flight
// handlers. Handler errors are logged; they never stop the pool.
func (l *Local) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.closed {
		l.mu.Unlock()
		return eris.New("queue: already running")
	}
	l.running = true
	l.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case t := <-l.tasks:
			g.Go(func() error {
				l.handle(gctx, t)
				return nil
			})
		}
	}

	err := g.Wait()
	l.shutdown()
	return err
}

func (l *Local) handle(ctx context.Context, t Task) {
	l.mu.Lock()
	l.state[t.JobID] = stateRunning
	l.mu.Unlock()

	l.metrics.StartTask(time.Since(t.EnqueuedAt))
	err := l.handler(ctx, t.JobID)
	l.metrics.FinishTask()
	if err != nil {
		zap.L().Error("queue: task failed",
			zap.String("job_id", t.JobID),
			zap.Error(err),
		)
	}

	l.mu.Lock()
	requeue := l.state[t.JobID] == stateRequeue
	next := l.next[t.JobID]
	delete(l.next, t.JobID)
	if requeue {
		l.state[t.JobID] = stateQueued
	} else {
		delete(l.state, t.JobID)
	}
	l.mu.Unlock()

	if requeue {
		l.schedule(next)
	}
}

func (l *Local) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	close(l.done)
	for id, timer := range l.timers {
		timer.Stop()
		delete(l.timers, id)
	}
	l.state = make(map[string]taskState)
	l.next = make(map[string]Task)
}
