package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/utils/validator"
)

func TestExportChunksRedactedText(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	svc := NewService(f.repo, f.files, f.queue, validator.NewDocumentValidator(f.log, nil), f.orch, f.log,
		WithExport(3, 1, embedding.NewGenerator(f.encoder, dim, f.log)))
	res := f.submit(t, "alice", "Contact John Doe at john@example.com about the contract")

	_, err := svc.Export(context.Background(), "alice", res.DocumentID, false)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	f.process(t, res)

	out, err := svc.Export(context.Background(), "alice", res.DocumentID, false)
	require.NoError(t, err)
	require.Len(t, out.Content, 3)
	assert.Equal(t, "Contact [PERSON] at", out.Content[0].Text)
	assert.Equal(t, "at [EMAIL] about", out.Content[1].Text)
	assert.Equal(t, "about the contract", out.Content[2].Text)
	assert.Nil(t, out.Content[0].Embedding)
	assert.Equal(t, []string{"contract"}, out.Metadata.Tags)

	withVectors, err := svc.Export(context.Background(), "alice", res.DocumentID, true)
	require.NoError(t, err)
	for _, c := range withVectors.Content {
		assert.Len(t, c.Embedding, dim)
	}

	_, err = svc.Export(context.Background(), "mallory", res.DocumentID, false)
	assert.ErrorIs(t, err, ErrAccessDenied)
}
