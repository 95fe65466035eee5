package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/internal/repository/repotest"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Repository {
		s, err := Open("", true, logger.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestStoreReopens(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, false, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.CreateDocument(t.Context(), repotest.Document("d1", "alice", models.StatusPending, time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(dir, false, logger.NewNop())
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetDocument(t.Context(), "d1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.OwnerID)
}
