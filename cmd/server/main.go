package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/api/handlers"
	"github.com/feichai0017/document-intelligence/api/routes"
	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/app"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
)

func main() {
	sc := config.GetServerConfig()

	// init logger
	log, err := app.NewLogger(sc, "server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// init services
	a, err := app.Build(ctx, log)
	if err != nil {
		log.Fatal("Failed to build application", logger.Error(err))
	}
	defer a.Close()

	// in-process consumers: the memory queue drains on an ants pool and the
	// reaper ticks here; with asynq both live in the worker process
	if mq, ok := a.Queue.(*queue.MemoryQueue); ok {
		mq.Start(ctx, a.Documents.HandleDocument)
		go a.Reaper.Run(ctx)
		log.Info("Processing documents in process",
			logger.Int("concurrency", a.Pipeline.WorkerConcurrency),
			logger.Duration("reaper_interval", a.Pipeline.ReaperInterval))
	}

	// init handlers
	gin.SetMode(sc.Mode)
	h := handlers.NewHandlers(a.Documents, a.Searcher, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, sc.AllowedOrigins, log)

	srv := &http.Server{
		Addr:              ":" + sc.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("port", sc.Port), logger.String("queue", sc.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			cancel()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	cancel()
}
