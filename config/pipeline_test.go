package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Labels, 20)
	assert.Equal(t, "[PERSON]", cfg.Placeholders["PERSON"])
	assert.Equal(t, "[EMAIL]", cfg.Placeholders["EMAIL_ADDRESS"])
	assert.Equal(t, 5, cfg.SensitiveThreshold)
	assert.Equal(t, 384, cfg.EmbeddingDimension)
	assert.Equal(t, 0.7, cfg.SearchThreshold)
	assert.Equal(t, time.Hour, cfg.ReaperTimeout)
	assert.Equal(t, 25*time.Minute, cfg.SoftTimeLimit)
	assert.Equal(t, 30*time.Minute, cfg.HardTimeLimit)

	// defaults are copies
	cfg.Labels[0] = "changed"
	cfg.Placeholders["PERSON"] = "<P>"
	assert.Equal(t, "legal document", DefaultLabels[0])
	assert.Equal(t, "[PERSON]", DefaultPlaceholders["PERSON"])
}

func TestParsePipelineConfigOverrides(t *testing.T) {
	cfg, err := ParsePipelineConfig([]byte(`
labels: [invoice, receipt]
placeholders:
  PERSON: "<name>"
  URL: "[URL]"
max_tags: 2
reaper_timeout: 90m
chunk_size: 100
chunk_overlap: 10
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice", "receipt"}, cfg.Labels)
	assert.Equal(t, "<name>", cfg.Placeholders["PERSON"])
	assert.Equal(t, "[URL]", cfg.Placeholders["URL"])
	assert.Equal(t, "[EMAIL]", cfg.Placeholders["EMAIL_ADDRESS"])
	assert.Equal(t, 2, cfg.MaxTags)
	assert.Equal(t, 90*time.Minute, cfg.ReaperTimeout)
	assert.Equal(t, time.Hour, cfg.ReaperInterval)
	assert.Equal(t, 100, cfg.ChunkSize)
}

func TestParsePipelineConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"overlap >= size":     "chunk_size: 10\nchunk_overlap: 10\n",
		"threshold above one": "confidence_threshold: 1.5\n",
		"soft over hard":      "soft_time_limit: 40m\n",
		"bad yaml":            "labels: [unterminated\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePipelineConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPipelineConfigFile(t *testing.T) {
	cfg, err := LoadPipelineConfig("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.SearchLimit)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search_limit: 3\n"), 0o600))
	cfg, err = LoadPipelineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.SearchLimit)

	_, err = LoadPipelineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedPipelineFileParses(t *testing.T) {
	cfg, err := LoadPipelineConfig("pipeline.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels, cfg.Labels)
	assert.Equal(t, 1024, cfg.QueueCapacity)
}
