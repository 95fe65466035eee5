package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
)

// DocumentHandler runs one document job.
type DocumentHandler interface {
	HandleDocument(ctx context.Context, task *queue.Task) error
}

// Sweeper fails stalled documents.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type DocumentWorker struct {
	BaseWorker
	handler DocumentHandler
	sweeper Sweeper
	cfg     Config
}

var _ Worker = (*DocumentWorker)(nil)

// NewDocumentWorker builds the asynq server for document jobs. sweeper
// may be nil, in which case no reap task is scheduled or handled.
func NewDocumentWorker(cfg *Config, handler DocumentHandler, sweeper Sweeper, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("worker concurrency must be positive, got %d", cfg.Concurrency)
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{"default": 1}
	}
	server := asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          queues,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		Logger: &asynqLogger{log: log.Named("asynq")},
	})

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("document-worker"),
		},
		handler: handler,
		sweeper: sweeper,
		cfg:     *cfg,
	}
	if sweeper != nil && cfg.ReapInterval > 0 {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
			Logger: &asynqLogger{log: log.Named("scheduler")},
		})
	}
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentProcess, w.handleDocumentProcess)
	if w.sweeper != nil {
		w.mux.HandleFunc(queue.TaskTypeDocumentReap, w.handleReap)
	}
}

func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" {
		w.logger.Error("Invalid task data", logger.String("payload", string(t.Payload())))
		return fmt.Errorf("invalid task data, missing job id: %w", asynq.SkipRetry)
	}

	w.logger.Info("Processing document task",
		logger.JobID(task.ID),
		logger.DocumentID(task.DocumentID),
	)
	writeResult(t, w.logger, map[string]any{"status": queue.StatusRunning, "progress": 0})

	if err := w.handler.HandleDocument(ctx, &task); err != nil {
		writeResult(t, w.logger, map[string]any{"status": queue.StatusFailed, "error": err.Error()})
		return err
	}
	writeResult(t, w.logger, map[string]any{"status": queue.StatusCompleted, "progress": 100})
	return nil
}

func (w *DocumentWorker) handleReap(ctx context.Context, t *asynq.Task) error {
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("Reap sweep failed", logger.Error(err), logger.Int("reaped", n))
		return err
	}
	writeResult(t, w.logger, map[string]any{"reaped": n})
	return nil
}

// writeResult stores a JSON summary on the task for the inspector.
// Tasks built outside a server have no result writer.
func writeResult(t *asynq.Task, log logger.Logger, v any) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := rw.Write(data); err != nil {
		log.Warn("Failed to write task result", logger.Error(err))
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if w.scheduler != nil {
		spec := fmt.Sprintf("@every %s", w.cfg.ReapInterval)
		entryID, err := w.scheduler.Register(spec, asynq.NewTask(queue.TaskTypeDocumentReap, nil),
			asynq.Queue("default"),
			asynq.MaxRetry(0),
			asynq.Unique(w.cfg.ReapInterval),
		)
		if err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to register reap schedule: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		w.logger.Info("Reap scheduled", logger.String("spec", spec), logger.String("entry", entryID))
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	w.logger.Info("Worker started", logger.Int("concurrency", w.cfg.Concurrency))
	return nil
}

// asynqLogger routes asynq's internal logging through our logger.
type asynqLogger struct {
	log logger.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.log.Fatal(fmt.Sprint(args...)) }
