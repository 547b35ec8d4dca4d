package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHandler_InjectsLiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		calls++
		return []slog.Attr{slog.Int("pending", calls)}
	})

	logger := slog.New(h).With("component", "engine")
	logger.Info("first")
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "pending=1")
	assert.Contains(t, out, "pending=2")
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil))
	logger.WithGroup("g").Info("plain", "k", "v")
	assert.Contains(t, buf.String(), "g.k=v")
}

func TestContextHandler_RecordKeysWin(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int("tracked", 7), slog.Int("pending", 1)}
	})

	slog.New(h).Info("stats", "tracked", 2)

	out := buf.String()
	assert.Contains(t, out, "tracked=2")
	assert.NotContains(t, out, "tracked=7")
	assert.Contains(t, out, "pending=1")
}

func TestContextHandler_EmptyProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr { return nil })
	slog.New(h).Info("quiet")
	assert.Contains(t, buf.String(), "msg=quiet")
}
