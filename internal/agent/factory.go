package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/agent/classification"
	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction/imageproc"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction/ocr"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction/pdf"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction/render"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction/tesseract"
	"github.com/feichai0017/document-intelligence/internal/agent/redaction"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// Pipeline holds the stage engines built once per process and shared by
// every job.
type Pipeline struct {
	Extractor  *extraction.Engine
	Redactor   *redaction.Engine
	Embedder   *embedding.Generator
	Classifier *classification.Classifier
	// QueryEncoder embeds search queries; it is cached when redis is configured.
	QueryEncoder embedding.Encoder

	closers []func() error
	logger  logger.Logger
}

// NewPipeline builds the stage engines from configuration. rdb may be nil.
func NewPipeline(ctx context.Context, pc *config.PipelineConfig, mc *config.ModelConfig, rdb redis.UniversalClient, log logger.Logger) (*Pipeline, error) {
	p := &Pipeline{logger: log}

	ocrEngine, err := p.newOCR(ctx, pc, mc)
	if err != nil {
		return nil, err
	}
	p.Extractor = extraction.NewEngine(
		pdf.NewPlainTextExtractor(log),
		pdf.NewContentStreamExtractor(log),
		render.NewFitzRenderer(),
		ocrEngine,
		log.Named("extraction"),
		extraction.WithConfig(extraction.Config{
			OCRDPI:         pc.OCRDPI,
			ProbeDPI:       pc.ProbeDPI,
			MinDirectChars: pc.MinDirectChars,
			MinProbeChars:  pc.MinProbeChars,
			PageWorkers:    pc.OCRPageWorkers,
		}),
		extraction.WithPreprocessor(imageproc.DefaultChain(pc.MorphKernel)),
	)

	p.Redactor = redaction.NewEngine(
		redaction.NewDefaultRecognizer(),
		log.Named("redaction"),
		redaction.WithPlaceholders(pc.Placeholders),
		redaction.WithDefaultPlaceholder(pc.DefaultPlaceholder),
		redaction.WithSensitiveThreshold(pc.SensitiveThreshold),
	)

	encoder, model, err := p.newEncoder(pc, mc)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Embedder = embedding.NewGenerator(encoder, pc.EmbeddingDimension, log.Named("embedding"))
	p.QueryEncoder = encoder
	if rdb != nil {
		p.QueryEncoder = embedding.NewCachedEncoder(encoder, rdb, model, 24*time.Hour, log)
	}

	scorer, err := p.newScorer(mc, encoder)
	if err != nil {
		p.Close()
		return nil, err
	}
	pool, err := ants.NewPool(max(pc.WorkerConcurrency, 1))
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create section pool: %w", err)
	}
	p.closers = append(p.closers, func() error { pool.Release(); return nil })

	p.Classifier = classification.NewClassifier(scorer, pc.Labels, log,
		classification.WithMaxTags(pc.MaxTags),
		classification.WithThreshold(pc.ConfidenceThreshold),
		classification.WithMaxChars(pc.ClassifyMaxChars),
		classification.WithSectionSize(pc.SectionSize),
		classification.WithSectionedTagging(pc.SectionedTagging),
		classification.WithPool(pool),
	)

	log.Info("Pipeline ready",
		logger.String("ocr", mc.OCRProvider),
		logger.String("embedding", mc.EmbeddingProvider),
		logger.String("classifier", mc.ClassifierProvider),
		logger.Int("labels", len(pc.Labels)))
	return p, nil
}

func (p *Pipeline) newOCR(ctx context.Context, pc *config.PipelineConfig, mc *config.ModelConfig) (extraction.OCR, error) {
	switch mc.OCRProvider {
	case "tesseract":
		return tesseract.NewTesseract(pc.OCRLanguages, p.logger), nil
	case "textract":
		t, err := ocr.NewTextract(ctx, config.GetTextractConfig(), p.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract client: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", mc.OCRProvider)
	}
}

func (p *Pipeline) newEncoder(pc *config.PipelineConfig, mc *config.ModelConfig) (embedding.Encoder, string, error) {
	switch mc.EmbeddingProvider {
	case "ollama":
		enc := embedding.NewOllamaEncoder(embedding.OllamaConfig{
			Endpoint:    mc.OllamaURL,
			Model:       mc.OllamaModel,
			MaxPoolSize: mc.OllamaPoolSize,
			Timeout:     mc.OllamaTimeout,
			MaxRetries:  mc.OllamaMaxRetries,
		}, p.logger)
		p.closers = append(p.closers, enc.Close)
		return enc, mc.OllamaModel, nil
	case "openai":
		enc, err := embedding.NewOpenAIEncoder(mc.OpenAIBaseURL, mc.OpenAIToken, mc.OpenAIEmbeddingModel, p.logger)
		if err != nil {
			return nil, "", err
		}
		return enc, mc.OpenAIEmbeddingModel, nil
	case "hash":
		return embedding.NewHashEncoder(pc.EmbeddingDimension), "hash", nil
	default:
		return nil, "", fmt.Errorf("unknown embedding provider %q", mc.EmbeddingProvider)
	}
}

func (p *Pipeline) newScorer(mc *config.ModelConfig, encoder embedding.Encoder) (classification.Scorer, error) {
	switch mc.ClassifierProvider {
	case "embedding":
		return classification.NewEmbeddingScorer(encoder, mc.ZeroShotTemperature), nil
	case "llm":
		opts := []openai.Option{openai.WithModel(mc.OpenAIChatModel), openai.WithToken(mc.OpenAIToken)}
		if mc.OpenAIToken == "" {
			opts[1] = openai.WithToken("none")
		}
		if mc.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(mc.OpenAIBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create chat client: %w", err)
		}
		return classification.NewLLMScorer(client, p.logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", mc.ClassifierProvider)
	}
}

// Close releases model clients and worker pools.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}
