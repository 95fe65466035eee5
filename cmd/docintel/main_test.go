package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/models"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"docintel"}, args...))
	return out.String(), err
}

func TestRedactCommand(t *testing.T) {
	out, err := run(t, "", "redact", "--text", "Mail jane@example.com today")
	require.NoError(t, err)

	var got redactOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Mail [EMAIL] today", got.Text)
	assert.Equal(t, 1, got.EntitiesFound)
	assert.Equal(t, map[string]int{"EMAIL_ADDRESS": 1}, got.Counts)
	assert.False(t, got.Sensitive)
}

func TestRedactReadsStdin(t *testing.T) {
	out, err := run(t, "nothing to hide", "redact")
	require.NoError(t, err)

	var got redactOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "nothing to hide", got.Text)
	assert.Empty(t, got.Entities)
}

func TestChunksCommand(t *testing.T) {
	out, err := run(t, "", "chunks", "--text", "a b c d e", "--size", "3", "--overlap", "1")
	require.NoError(t, err)

	var chunks []models.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "a b c", chunks[0].Text)
	assert.Equal(t, "c d e", chunks[1].Text)

	_, err = run(t, "", "chunks", "--text", "a b", "--size", "2", "--overlap", "2")
	assert.Error(t, err)
}

func TestLabelsCommand(t *testing.T) {
	out, err := run(t, "", "labels")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, config.DefaultLabels, lines)
}

func TestCommandFlags(t *testing.T) {
	_, err := run(t, "", "extract")
	assert.ErrorContains(t, err, "exactly one FILE")

	_, err = run(t, "", "cleanup")
	assert.ErrorContains(t, err, "retention")

	_, err = run(t, "", "--log-level", "loud", "labels")
	assert.ErrorContains(t, err, "invalid log level")
}
