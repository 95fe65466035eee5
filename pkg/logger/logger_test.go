package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerRecordsEntries(t *testing.T) {
	l := NewTestLogger()

	child := l.Named("pipeline").With(DocumentID("doc-1"))
	child.Warn("redaction degraded", Error(errors.New("boom")))
	l.Info("started")

	entries := l.GetEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, "WARN", entries[0].Level)
	assert.Equal(t, "pipeline", entries[0].Logger)
	assert.Len(t, entries[0].Fields, 2)
	assert.Equal(t, "document_id", entries[0].Fields[0].Key)

	assert.True(t, l.HasEntry("INFO", "started"))
	assert.False(t, l.HasEntry("ERROR", "started"))

	l.Clear()
	assert.Empty(t, l.GetEntries())
}

func TestFromContext(t *testing.T) {
	l := NewTestLogger()

	FromContext(context.Background(), l).Info("plain")
	ctx := WithRequester(WithRequestID(context.Background(), "req-1"), "user-1")
	FromContext(ctx, l).Info("scoped")

	entries := l.GetEntries()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Fields)
	require.Len(t, entries[1].Fields, 2)
	assert.Equal(t, "request_id", entries[1].Fields[0].Key)
	assert.Equal(t, "user_id", entries[1].Fields[1].Key)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}))
	assert.Error(t, err)

	l, err := NewLogger(WithLevel("debug"), WithOutputPaths([]string{"stdout"}), WithEncoding("console"))
	require.NoError(t, err)
	assert.NotNil(t, l.Named("x").With(String("k", "v")))
}
