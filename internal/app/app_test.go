package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
)

func TestOpenStoreInMemory(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"badger", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			repo, err := OpenStore(ctx, &config.StoreConfig{Driver: driver, InMemory: true}, logger.NewNop())
			require.NoError(t, err)
			defer repo.Close()

			now := time.Now().UTC()
			require.NoError(t, repo.CreateDocument(ctx, &models.Document{
				ID:        "d1",
				OwnerID:   "alice",
				Status:    models.StatusPending,
				Tags:      []string{},
				CreatedAt: now,
				UpdatedAt: now,
			}))
			got, err := repo.GetDocument(ctx, "d1")
			require.NoError(t, err)
			assert.Equal(t, "alice", got.OwnerID)
		})
	}

	_, err := OpenStore(ctx, &config.StoreConfig{Driver: "postgres"}, logger.NewNop())
	assert.Error(t, err)
}

func TestNewQueueMemory(t *testing.T) {
	q, err := NewQueue(&config.ServerConfig{QueueBackend: "memory"}, nil, config.DefaultPipelineConfig(), logger.NewNop())
	require.NoError(t, err)
	defer q.Close()
	assert.IsType(t, &queue.MemoryQueue{}, q)

	_, err = NewQueue(&config.ServerConfig{QueueBackend: "kafka"}, nil, config.DefaultPipelineConfig(), logger.NewNop())
	assert.Error(t, err)
}
