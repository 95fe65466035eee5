package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	key, err := m.Store(ctx, strings.NewReader("%PDF-1.7"), 8, "alice/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "alice/doc.pdf", key)

	data, err := ReadAll(ctx, m, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	require.NoError(t, m.Delete(ctx, key))
	_, err = m.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStorageCleanup(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	_, _ = m.Store(ctx, strings.NewReader("old"), 3, "old")
	m.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, _ = m.Store(ctx, strings.NewReader("new"), 3, "new")

	require.NoError(t, m.CleanupBefore(ctx, base.Add(24*time.Hour)))
	assert.Equal(t, 1, m.Len())
	_, err := m.Get(ctx, "new")
	assert.NoError(t, err)
}
