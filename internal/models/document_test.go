package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, Status("archived").Valid())
}

func TestMetadataExtraIsBounded(t *testing.T) {
	var m Metadata
	for i := 0; i < MaxExtraKeys; i++ {
		require.True(t, m.SetExtra(fmt.Sprintf("k%d", i), "v"))
	}
	assert.False(t, m.SetExtra("overflow", "v"))
	assert.True(t, m.SetExtra("k0", "updated"))
	assert.Equal(t, "updated", m.Extra["k0"])
	assert.Len(t, m.Extra, MaxExtraKeys)
}

func TestDocumentCloneIsDeep(t *testing.T) {
	now := time.Now()
	d := &Document{
		ID:        "d1",
		Embedding: []float32{1, 2},
		Tags:      []string{"invoice"},
		Metadata: Metadata{
			PIISummary: map[string]int{"PERSON": 1},
			FailedAt:   &now,
		},
	}
	c := d.Clone()
	c.Embedding[0] = 9
	c.Tags[0] = "receipt"
	c.Metadata.PIISummary["PERSON"] = 5

	assert.Equal(t, float32(1), d.Embedding[0])
	assert.Equal(t, "invoice", d.Tags[0])
	assert.Equal(t, 1, d.Metadata.PIISummary["PERSON"])
	assert.NotSame(t, d.Metadata.FailedAt, c.Metadata.FailedAt)
}

func TestJobCheckpointIsMonotonic(t *testing.T) {
	j := &Job{}
	now := time.Now()
	j.Checkpoint(StageExtraction, 20, now)
	j.Checkpoint(StageRedaction, 10, now)
	assert.Equal(t, 20, j.Progress)
	assert.Equal(t, StageRedaction, j.Stage)
	j.Checkpoint(StageDone, 150, now)
	assert.Equal(t, 100, j.Progress)
	assert.Len(t, j.Checkpoints, 3)
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions(nil)
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermissionRead}, perms)

	perms, err = ParsePermissions([]string{"read", "share", "read"})
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermissionRead, PermissionShare}, perms)

	_, err = ParsePermissions([]string{"admin"})
	assert.Error(t, err)
}
