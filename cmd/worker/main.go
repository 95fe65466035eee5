package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/app"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/worker"
)

func main() {
	sc := config.GetServerConfig()

	// 初始化日志
	log, err := app.NewLogger(sc, "worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if sc.QueueBackend != "asynq" {
		log.Error("Worker requires the asynq queue backend", logger.String("queue", sc.QueueBackend))
		os.Exit(1)
	}

	if driver := config.GetStoreConfig().Driver; driver != "sqlite" {
		log.Warn("Worker store is not shared with the API server", logger.String("driver", driver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建文档服务
	a, err := app.Build(ctx, log)
	if err != nil {
		log.Error("Failed to build application", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	// 创建 worker 配置
	rc := config.GetRedisConfig()
	workerCfg := &worker.Config{
		RedisAddr:     rc.Addr,
		RedisPassword: rc.Password,
		RedisDB:       rc.DB,
		Concurrency:   a.Pipeline.WorkerConcurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		ShutdownTimeout: a.Pipeline.HardTimeLimit,
		ReapInterval:    a.Pipeline.ReaperInterval,
	}

	// 创建 worker
	documentWorker, err := worker.NewDocumentWorker(workerCfg, a.Documents, a.Reaper, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	// 启动 worker
	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
