// Package worker hosts queue consumers on an asynq server.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
	// ShutdownTimeout is how long running tasks get to finish on Stop.
	ShutdownTimeout time.Duration
	// ReapInterval schedules the stalled document sweep. Zero disables it.
	ReapInterval time.Duration
}

func (cfg *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

type BaseWorker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    logger.Logger
	stopOnce  sync.Once
}

func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		if w.server != nil {
			w.server.Shutdown()
		}
		w.logger.Info("Worker stopped")
	})
	return nil
}
