package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// LangchainEncoder embeds through any OpenAI-compatible endpoint.
type LangchainEncoder struct {
	embedder embeddings.Embedder
	logger   logger.Logger
}

// NewOpenAIEncoder builds an encoder for baseURL. An empty token is sent
// as "none" so local compatible servers accept the request.
func NewOpenAIEncoder(baseURL, token, model string, log logger.Logger) (*LangchainEncoder, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return NewLangchainEncoder(embedder, log), nil
}

func NewLangchainEncoder(embedder embeddings.Embedder, log logger.Logger) *LangchainEncoder {
	return &LangchainEncoder{embedder: embedder, logger: log.Named("langchain-embedder")}
}

func (e *LangchainEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("Failed to generate embedding", logger.Error(err))
		return nil, err
	}
	return vec, nil
}

func (e *LangchainEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("Generating embeddings", logger.Int("count", len(texts)))
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("Failed to generate embeddings", logger.Int("count", len(texts)), logger.Error(err))
		return nil, err
	}
	return vecs, nil
}
