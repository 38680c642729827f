package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/avatarrelay/internal/api/handler"
	"github.com/hszk-dev/avatarrelay/internal/api/middleware"
	"github.com/hszk-dev/avatarrelay/internal/app"
	"github.com/hszk-dev/avatarrelay/internal/config"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/queue"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
	"github.com/hszk-dev/avatarrelay/internal/validation"
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

	mode, err := usecase.ParseAvatarMode(cfg.Avatar.Mode)
	if err != nil {
		return err
	}
	if mode == usecase.AvatarModeAsync && !cfg.DID.Enabled() {
		logger.Warn("D_ID_API_KEY is not set, not queueing avatar renders")
		mode = usecase.AvatarModeOff
	}

	responseCache, closeStore, err := app.NewResponseCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("cache ready", slog.String("backend", cfg.Cache.Backend))

	// Drop anything that expired while the relay was down.
	if _, err := responseCache.Cleanup(ctx); err != nil {
		logger.Warn("initial cache cleanup failed", slog.String("error", err.Error()))
	}

	var renderQueue repository.RenderQueue
	if mode == usecase.AvatarModeAsync {
		queueClient, err := queue.NewClient(ctx, app.QueueConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		renderQueue = queueClient
		logger.Info("connected to RabbitMQ")
	}

	archive, err := app.NewSpeechArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		logger.Info("connected to MinIO", slog.String("bucket", cfg.MinIO.Bucket))
	}

	avatarSvc := app.NewAvatarService(cfg)
	chatSvc := usecase.NewChatService(
		responseCache,
		app.NewLanguageModel(cfg.OpenAI),
		avatarSvc,
		renderQueue,
		usecase.ChatServiceConfig{
			TenantID:      cfg.Chat.TenantID,
			SystemPrompt:  cfg.Chat.SystemPrompt,
			AvatarMode:    mode,
			AnswerTimeout: cfg.ChatBudget(),
		},
	)
	speechSvc := app.NewSpeechService(cfg, archive)

	features := handler.Features{
		Chat:   cfg.OpenAI.Enabled(),
		Avatar: cfg.DID.Enabled(),
		Speech: cfg.ElevenLabs.Enabled(),
	}
	if !features.Chat {
		logger.Warn("OPENAI_API_KEY is not set, /chat will answer with an error")
	}
	if !features.Avatar {
		logger.Warn("D_ID_API_KEY is not set, avatar videos are disabled")
	}

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			IdleTimeout:       cfg.RateLimit.IdleTimeout,
		})
	}

	validate := validation.New()
	r := setupRouter(logger, routes{
		health: handler.NewHealthHandler(cfg.Cache.Backend, string(mode), features),
		chat:   handler.NewChatHandler(chatSvc, validate),
		avatar: handler.NewAvatarHandler(avatarSvc, validate),
		speech: handler.NewSpeechHandler(speechSvc, validate),
	}, limiter)

	writeTimeout := cfg.WriteTimeout()
	if writeTimeout != cfg.Server.WriteTimeout {
		logger.Info("write timeout raised to fit the chat budget",
			slog.Duration("configured", cfg.Server.WriteTimeout),
			slog.Duration("effective", writeTimeout),
		)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("avatar_mode", string(mode)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type routes struct {
	health *handler.HealthHandler
	chat   *handler.ChatHandler
	avatar *handler.AvatarHandler
	speech *handler.SpeechHandler
}

func setupRouter(logger *slog.Logger, h routes, limiter *middleware.IPRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", h.health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, "/chat"))
		}
		r.Post("/chat", h.chat.Reply)
	})
	r.Post("/did_video", h.avatar.Generate)
	r.Post("/speech", h.speech.Synthesize)

	return r
}
