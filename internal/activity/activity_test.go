package activity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/contact-classifier/internal/model"
)

type memSink struct {
	entries []model.ActivityEntry
	err     error
}

func (m *memSink) AppendActivity(_ context.Context, e model.ActivityEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestRecord_AppendsAndLogs(t *testing.T) {
	logs := observe(t)
	sink := &memSink{}
	r := New(sink)

	r.Warn(context.Background(), "job-1", "search budget exhausted", map[string]any{"remaining": 3})

	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, "job-1", e.JobID)
	assert.Equal(t, model.SeverityWarning, e.Severity)
	assert.Equal(t, 3, e.Metadata["remaining"])
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	entries := logs.FilterMessage("search budget exhausted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRecord_SeverityLevels(t *testing.T) {
	logs := observe(t)
	r := New(&memSink{})
	ctx := context.Background()

	r.Info(ctx, "j", "info", nil)
	r.Success(ctx, "j", "success", nil)
	r.Error(ctx, "j", "error", nil)

	assert.Equal(t, zapcore.InfoLevel, logs.FilterMessage("info").All()[0].Level)
	assert.Equal(t, zapcore.InfoLevel, logs.FilterMessage("success").All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.FilterMessage("error").All()[0].Level)
}

func TestRecord_SinkFailureIsSwallowed(t *testing.T) {
	logs := observe(t)
	r := New(&memSink{err: errors.New("db down")})

	r.Info(context.Background(), "job-1", "hello", nil)

	assert.Equal(t, 1, logs.FilterMessage("activity: append failed").Len())
}

func TestRecord_NilRecorderAndSink(t *testing.T) {
	observe(t)
	var r *Recorder
	assert.NotPanics(t, func() { r.Info(context.Background(), "j", "m", nil) })
	assert.NotPanics(t, func() { New(nil).Error(context.Background(), "j", "m", nil) })
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short"))
	long := strings.Repeat("é", ExcerptLimit+10)
	got := Excerpt(long)
	assert.Equal(t, ExcerptLimit+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
