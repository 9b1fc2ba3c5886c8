package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/resilience"
)

const (
	defaultSubject    = "classifier.jobs.advance"
	defaultQueueGroup = "classifier-workers"
)

// NATS publishes continuation tasks on a subject and consumes them through a
// queue group, so each task reaches one worker process.
type NATS struct {
	conn    *nats.Conn
	subject string
	group   string
	breaker *resilience.Breaker
}

// NATSOptions configures the connection.
type NATSOptions struct {
	Subject        string
	QueueGroup     string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	Breaker        *resilience.Breaker
}

// NewNATS connects to url.
func NewNATS(url string, opts NATSOptions) (*NATS, error) {
	if opts.Subject == "" {
		opts.Subject = defaultSubject
	}
	if opts.QueueGroup == "" {
		opts.QueueGroup = defaultQueueGroup
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}

	conn, err := nats.Connect(url,
		nats.Name("contact-classifier"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("queue: nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("queue: nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "queue: connect nats")
	}
	return &NATS{conn: conn, subject: opts.Subject, group: opts.QueueGroup, breaker: opts.Breaker}, nil
}

// Close closes the connection.
func (q *NATS) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Enqueue publishes t. Connection-level failures are retried by the breaker
// and surface as transient errors.
func (q *NATS) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "queue: marshal task")
	}
	_, err = resilience.Call(ctx, q.breaker, func(context.Context) (struct{}, error) {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return struct{}{}, classifyNATSError(err)
		}
		return struct{}{}, nil
	})
	return eris.Wrapf(err, "queue: publish %s", t.JobID)
}

// Consume feeds tasks from the queue group into sink until ctx is done,
// then drains the subscription.
func (q *NATS) Consume(ctx context.Context, sink Enqueuer) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, q.onMessage(ctx, sink))
	if err != nil {
		return eris.Wrap(err, "queue: nats subscribe")
	}
	if err := q.conn.Flush(); err != nil {
		return eris.Wrap(err, "queue: nats flush")
	}
	zap.L().Info("queue: consuming",
		zap.String("subject", q.subject),
		zap.String("queue_group", q.group),
	)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return eris.Wrap(err, "queue: nats drain subscription")
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return eris.Wrap(err, "queue: nats flush after drain")
	}
	return nil
}

func (q *NATS) onMessage(ctx context.Context, sink Enqueuer) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		t, err := decodeTask(msg.Data)
		if err != nil {
			zap.L().Warn("queue: discarding malformed task", zap.Error(err))
			return
		}
		if err := sink.Enqueue(ctx, t); err != nil {
			zap.L().Error("queue: hand off task failed",
				zap.String("job_id", t.JobID),
				zap.Error(err),
			)
		}
	}
}

// decodeTask accepts a JSON task or a bare job id.
func decodeTask(data []byte) (Task, error) {
	var t Task
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &t); err != nil {
			return Task{}, eris.Wrap(err, "queue: decode task")
		}
	} else {
		t.JobID = trimmed
	}
	if t.JobID == "" {
		return Task{}, eris.New("queue: task has no job id")
	}
	return t, nil
}

// classifyNATSError marks connection-level failures as retryable.
func classifyNATSError(err error) error {
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
