package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/avatarrelay/internal/app"
	"github.com/hszk-dev/avatarrelay/internal/config"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/queue"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(os.Stdout, cfg.Log)

	if !cfg.DID.Enabled() {
		return fmt.Errorf("D_ID_API_KEY is required for the render worker")
	}
	if cfg.Cache.Backend == config.CacheBackendMemory {
		logger.Warn("memory cache backend is not shared with the API server, rendered videos will be lost")
	}

	responseCache, closeStore, err := app.NewResponseCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("cache ready", slog.String("backend", cfg.Cache.Backend))

	qcfg := app.QueueConfig(cfg)
	queueClient, err := queue.NewClient(ctx, qcfg)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ", slog.String("queue", qcfg.QueueName))

	renderSvc := usecase.NewRenderService(
		app.NewAvatarService(cfg),
		responseCache,
		usecase.RenderServiceConfig{MaxRetries: cfg.Worker.MaxRetries},
	)

	if cfg.Worker.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Renders outlive the consumer: on shutdown they get ShutdownTimeout to
	// finish before stopRenders interrupts them.
	renderCtx, stopRenders := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRenders()

	var inFlight sync.WaitGroup
	errCh := make(chan error, 1)
	go func() {
		logger.Info("consuming render tasks", slog.Int("max_retries", cfg.Worker.MaxRetries))
		err := queueClient.ConsumeRenderTasks(ctx, renderHandler(renderCtx, logger, renderSvc, &inFlight))
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Stop taking deliveries, then give running renders time to finish.
	cancel()
	if waitTimeout(&inFlight, cfg.Worker.ShutdownTimeout) {
		logger.Info("all in-flight renders completed")
	} else {
		logger.Warn("shutdown timeout exceeded, requeueing unfinished renders")
		stopRenders()
		if !waitTimeout(&inFlight, requeueTimeout) {
			logger.Warn("unfinished renders could not be requeued, the broker will redeliver them")
		}
	}

	logger.Info("worker stopped")
	return nil
}

// requeueTimeout bounds how long interrupted renders get to republish.
const requeueTimeout = 10 * time.Second

func renderHandler(ctx context.Context, logger *slog.Logger, svc usecase.RenderService, inFlight *sync.WaitGroup) func(repository.RenderTask) error {
	return func(task repository.RenderTask) error {
		inFlight.Add(1)
		defer inFlight.Done()

		log := logger.With(
			slog.String("task_id", task.ID.String()),
			slog.String("cache_key", task.CacheKey),
			slog.Int("retry_count", task.RetryCount),
		)
		start := time.Now()
		if err := svc.ProcessTask(ctx, task); err != nil {
			log.Warn("render attempt failed", slog.String("error", err.Error()))
			return err
		}
		log.Info("render task settled", slog.Duration("duration", time.Since(start)))
		return nil
	}
}

// waitTimeout reports whether wg finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
