package config

import (
	"sync"
	"time"
)

var (
	modelOnce   sync.Once
	modelConfig *ModelConfig
)

// ModelConfig selects and configures the model providers behind each stage.
type ModelConfig struct {
	// OCRProvider is "tesseract" or "textract".
	OCRProvider string
	// EmbeddingProvider is "ollama", "openai" or "hash".
	EmbeddingProvider string
	// ClassifierProvider is "embedding" or "llm".
	ClassifierProvider string

	OllamaURL        string
	OllamaModel      string
	OllamaPoolSize   int
	OllamaTimeout    time.Duration
	OllamaMaxRetries int

	OpenAIBaseURL        string
	OpenAIToken          string
	OpenAIEmbeddingModel string
	OpenAIChatModel      string

	// ZeroShotTemperature sharpens the softmax of the embedding scorer.
	ZeroShotTemperature float64
}

func GetModelConfig() *ModelConfig {
	modelOnce.Do(func() {
		loadEnv()
		modelConfig = &ModelConfig{
			OCRProvider:          getEnv("OCR_PROVIDER", "tesseract"),
			EmbeddingProvider:    getEnv("EMBEDDING_PROVIDER", "ollama"),
			ClassifierProvider:   getEnv("CLASSIFIER_PROVIDER", "embedding"),
			OllamaURL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("OLLAMA_EMBED_MODEL", "all-minilm"),
			OllamaPoolSize:       getEnvInt("OLLAMA_POOL_SIZE", 4),
			OllamaTimeout:        getEnvDuration("OLLAMA_TIMEOUT", 60*time.Second),
			OllamaMaxRetries:     getEnvInt("OLLAMA_MAX_RETRIES", 0),
			OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
			OpenAIToken:          getEnv("OPENAI_API_KEY", ""),
			OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ZeroShotTemperature:  0.05,
		}
	})
	return modelConfig
}
