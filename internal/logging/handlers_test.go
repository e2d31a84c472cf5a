package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return assert.AnError }

func textHandler(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLevelFilter(textHandler(&buf, slog.LevelDebug), slog.LevelWarn))

	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	assert.NotContains(t, buf.String(), "msg=info")
	assert.Contains(t, buf.String(), "msg=warn")
	assert.Contains(t, buf.String(), "msg=error")
}

func TestLevelFilter_EnabledRespectsWrappedHandler(t *testing.T) {
	var buf bytes.Buffer
	f := NewLevelFilter(textHandler(&buf, slog.LevelError), slog.LevelWarn)

	assert.False(t, f.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, f.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, f.Enabled(context.Background(), slog.LevelError))
}

func TestLevelFilter_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := NewLevelFilter(textHandler(&buf, slog.LevelDebug), slog.LevelWarn).
		WithAttrs([]slog.Attr{slog.String("component", "watcher")}).
		WithGroup("item")
	slog.New(h).Warn("low stock", "id", "abc")

	assert.Contains(t, buf.String(), "component=watcher")
	assert.Contains(t, buf.String(), "item.id=abc")
}

func TestMultiHandler_FansOut(t *testing.T) {
	var all, errs bytes.Buffer
	m := NewMultiHandler(textHandler(&all, slog.LevelInfo), textHandler(&errs, slog.LevelError))
	logger := slog.New(m).With("component", "api")

	logger.Info("hello")
	logger.Error("boom")

	assert.Contains(t, all.String(), "msg=hello")
	assert.Contains(t, all.String(), "msg=boom")
	assert.NotContains(t, errs.String(), "msg=hello")
	assert.Contains(t, errs.String(), "component=api")
}

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(textHandler(&buf, slog.LevelWarn), textHandler(&buf, slog.LevelError))

	assert.False(t, m.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, m.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

func TestMultiHandler_ErrorDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(failingHandler{textHandler(&buf, slog.LevelInfo)}, textHandler(&buf, slog.LevelInfo))

	rec := slog.NewRecord(testTime, slog.LevelInfo, "still written", 0)
	err := m.Handle(context.Background(), rec)

	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, buf.String(), "still written")
}

func TestMultiHandler_EmptyGroupIsNoop(t *testing.T) {
	m := NewMultiHandler()
	assert.Same(t, m, m.WithGroup(""))
}

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
