// Package app wires configuration, stores, model providers and services
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/agent"
	"github.com/feichai0017/document-intelligence/internal/repository"
	badgerstore "github.com/feichai0017/document-intelligence/internal/repository/badger"
	sqlitestore "github.com/feichai0017/document-intelligence/internal/repository/sqlite"
	"github.com/feichai0017/document-intelligence/internal/service/document"
	"github.com/feichai0017/document-intelligence/internal/service/search"
	"github.com/feichai0017/document-intelligence/internal/utils/validator"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
	"github.com/feichai0017/document-intelligence/pkg/storage"
)

// App is a fully wired process.
type App struct {
	Server   *config.ServerConfig
	Pipeline *config.PipelineConfig

	Repo         repository.Repository
	Files        storage.Storage
	Queue        queue.Queue
	Stages       *agent.Pipeline
	Orchestrator *document.Orchestrator
	Documents    *document.Service
	Searcher     *search.Searcher
	Reaper       *document.Reaper

	closers []func() error
	logger  logger.Logger
}

// NewLogger builds the process logger from server configuration.
func NewLogger(sc *config.ServerConfig, name string) (logger.Logger, error) {
	outputs := []string{"stdout"}
	if sc.LogPath != "" {
		dir := filepath.Dir(sc.LogPath)
		outputs = append(outputs, filepath.Join(dir, name+".log"))
	}
	log, err := logger.NewLogger(
		logger.WithLevel(sc.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths(outputs),
	)
	if err != nil {
		return nil, err
	}
	return log.Named(name), nil
}

// OpenStore opens the configured record store.
func OpenStore(ctx context.Context, sc *config.StoreConfig, log logger.Logger) (repository.Repository, error) {
	switch sc.Driver {
	case "badger":
		s, err := badgerstore.Open(sc.Path, sc.InMemory, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		path := sc.Path
		if sc.InMemory {
			path = ":memory:"
		}
		s, err := sqlitestore.Open(ctx, path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// NewQueue builds the configured queue backend. The memory queue is not
// started; callers that consume in process call Start on it.
func NewQueue(sc *config.ServerConfig, rc *config.RedisConfig, pc *config.PipelineConfig, log logger.Logger) (queue.Queue, error) {
	switch sc.QueueBackend {
	case "memory":
		q, err := queue.NewMemoryQueue(pc.QueueCapacity, pc.WorkerConcurrency, pc.HardTimeLimit, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "asynq":
		q, err := queue.NewAsynqQueue(&queue.Config{
			RedisAddr:     rc.Addr,
			RedisPassword: rc.Password,
			RedisDB:       rc.DB,
			HardTimeout:   pc.HardTimeLimit,
		}, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", sc.QueueBackend)
	}
}

// Build wires every component from environment and pipeline config.
func Build(ctx context.Context, log logger.Logger) (*App, error) {
	pc, err := config.GetPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	a := &App{
		Server:   config.GetServerConfig(),
		Pipeline: pc,
		logger:   log,
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	sc, rc, pc, log := a.Server, config.GetRedisConfig(), a.Pipeline, a.logger

	repo, err := OpenStore(ctx, config.GetStoreConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	if a.Files, err = storage.NewStorage(ctx, storage.StorageType(sc.StorageBackend), log); err != nil {
		return fmt.Errorf("failed to create file storage: %w", err)
	}

	var cache redis.UniversalClient
	if rc.CacheDB > 0 {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.CacheDB})
		a.closers = append(a.closers, client.Close)
		cache = client
	}

	if a.Stages, err = agent.NewPipeline(ctx, pc, config.GetModelConfig(), cache, log); err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	a.closers = append(a.closers, a.Stages.Close)

	if a.Queue, err = NewQueue(sc, rc, pc, log); err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	a.closers = append(a.closers, a.Queue.Close)

	opts := []document.OrchestratorOption{
		document.WithSoftTimeLimit(pc.SoftTimeLimit),
		document.WithStatusRecorder(a.Queue),
	}
	if sc.WorkerID != "" {
		opts = append(opts, document.WithWorkerID(sc.WorkerID))
	}
	a.Orchestrator, err = document.NewOrchestrator(a.Repo, a.Files, document.Stages{
		Extractor: a.Stages.Extractor,
		Redactor:  a.Stages.Redactor,
		Embedder:  a.Stages.Embedder,
		Tagger:    a.Stages.Classifier,
	}, log, opts...)
	if err != nil {
		return err
	}

	vcfg := validator.DefaultConfig()
	if pc.MaxFileSize > 0 {
		vcfg.MaxFileSize = pc.MaxFileSize
	}
	a.Documents = document.NewService(a.Repo, a.Files, a.Queue, validator.NewDocumentValidator(log, vcfg), a.Orchestrator, log,
		document.WithExport(pc.ChunkSize, pc.ChunkOverlap, a.Stages.Embedder))

	scfg := search.DefaultConfig()
	scfg.Threshold = pc.SearchThreshold
	scfg.Limit = pc.SearchLimit
	scfg.QATopK = pc.QATopK
	scfg.PrefixChars = pc.QAPrefixChars
	scfg.ChunkSize = pc.ChunkSize
	scfg.ChunkOverlap = pc.ChunkOverlap
	a.Searcher = search.NewSearcher(a.Repo, a.Stages.QueryEncoder, log, search.WithConfig(scfg))

	a.Reaper = document.NewReaper(a.Repo, pc.ReaperTimeout, pc.ReaperInterval, log)
	return nil
}

// Close releases everything Build opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
