package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// OllamaConfig configures the /api/embed client pool.
type OllamaConfig struct {
	Endpoint    string
	Model       string
	MaxPoolSize int
	PoolTimeout time.Duration
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// errRetryable marks failures worth another attempt (transport errors and 5xx).
var errRetryable = errors.New("retryable")

type ollamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

func newOllamaClient(cfg *OllamaConfig) *ollamaClient {
	return &ollamaClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ollamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqData, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embed", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", errRetryable, err)
		}
		return nil, err
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", result.Error)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

func (c *ollamaClient) close() {
	c.httpClient.CloseIdleConnections()
}

// OllamaEncoder embeds text through a fixed pool of HTTP clients so the
// number of in-flight model calls stays bounded.
type OllamaEncoder struct {
	clients chan *ollamaClient
	config  OllamaConfig
	logger  logger.Logger
}

func NewOllamaEncoder(cfg OllamaConfig, log logger.Logger) *OllamaEncoder {
	if cfg.MaxPoolSize < 1 {
		cfg.MaxPoolSize = 1
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	e := &OllamaEncoder{
		clients: make(chan *ollamaClient, cfg.MaxPoolSize),
		config:  cfg,
		logger:  log.Named("ollama"),
	}
	for i := 0; i < cfg.MaxPoolSize; i++ {
		e.clients <- newOllamaClient(&cfg)
	}
	return e
}

func (e *OllamaEncoder) get(ctx context.Context) (*ollamaClient, error) {
	timer := time.NewTimer(e.config.PoolTimeout)
	defer timer.Stop()
	select {
	case c := <-e.clients:
		return c, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for available client")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *OllamaEncoder) put(c *ollamaClient) {
	select {
	case e.clients <- c:
	default:
	}
}

func (e *OllamaEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.get(ctx)
	if err != nil {
		return nil, err
	}
	defer e.put(client)

	delay := e.config.RetryDelay
	for attempt := 0; ; attempt++ {
		vecs, err := client.embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !errors.Is(err, errRetryable) || attempt >= e.config.MaxRetries {
			return nil, err
		}
		e.logger.Warn("Embedding request failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}

func (e *OllamaEncoder) Close() error {
	close(e.clients)
	for c := range e.clients {
		c.close()
	}
	return nil
}
