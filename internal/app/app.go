// Package app builds the relay's components from configuration.
// It is shared by the API server, the render worker and relayctl.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/avatarrelay/internal/config"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/cache"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/did"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/elevenlabs"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/filestore"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/llm"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/postgres"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/queue"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/sqlite"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/storage"
	"github.com/hszk-dev/avatarrelay/internal/poller"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
)

// NewLogger installs a JSON slog logger writing to w as the default logger.
func NewLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

// Closer releases whatever a backend holds open.
type Closer func()

func noopCloser() {}

// OpenSnapshotStore opens the snapshot store selected by CACHE_BACKEND.
// The returned Closer must be called once the store is no longer used.
func OpenSnapshotStore(ctx context.Context, cfg *config.Config) (repository.SnapshotStore, Closer, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return cache.NewMemoryStore(), noopCloser, nil

	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return cache.NewRedisSnapshotStore(client, cfg.Cache.RedisKey), func() { client.Close() }, nil

	case config.CacheBackendPostgres:
		client, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		repo := postgres.NewSnapshotRepository(client.Pool(), cfg.Cache.Name)
		if err := repo.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to prepare PostgreSQL schema: %w", err)
		}
		return repo, client.Close, nil

	case config.CacheBackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path, cfg.Cache.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("failed to close SQLite", "error", err)
			}
		}, nil

	case config.CacheBackendFile, "":
		return filestore.NewJSONStore(cfg.Cache.File), noopCloser, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// NewResponseCache opens the configured store and wraps it in a ResponseCache.
func NewResponseCache(ctx context.Context, cfg *config.Config) (*usecase.ResponseCache, Closer, error) {
	store, closeStore, err := OpenSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return usecase.NewResponseCache(store, usecase.ResponseCacheConfig{TTL: cfg.Cache.TTL}), closeStore, nil
}

// NewLanguageModel returns nil when no API key is configured.
func NewLanguageModel(cfg config.OpenAIConfig) repository.LanguageModel {
	if !cfg.Enabled() {
		return nil
	}
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
	})
}

// NewAvatarProvider returns nil when no API key is configured.
func NewAvatarProvider(cfg config.DIDConfig) repository.AvatarProvider {
	if !cfg.Enabled() {
		return nil
	}
	return did.NewClient(did.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		VoiceID:   cfg.VoiceID,
		SourceURL: cfg.SourceURL,
		Timeout:   cfg.Timeout,
	})
}

// NewSpeechSynthesizer returns nil when the key or voice is missing.
func NewSpeechSynthesizer(cfg config.ElevenLabsConfig) repository.SpeechSynthesizer {
	if !cfg.Enabled() {
		return nil
	}
	return elevenlabs.NewClient(elevenlabs.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Settings: elevenlabs.VoiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
		},
		Timeout: cfg.Timeout,
	})
}

// NewAvatarService wires the D-ID provider (if any) with the poll settings.
func NewAvatarService(cfg *config.Config) usecase.AvatarService {
	sourceURL := cfg.DID.SourceURL
	if sourceURL == "" {
		sourceURL = did.DefaultSourceURL
	}
	return usecase.NewAvatarService(NewAvatarProvider(cfg.DID), usecase.AvatarServiceConfig{
		Poll: poller.Config{
			MaxWait:      cfg.Poll.MaxWait,
			Interval:     cfg.Poll.Interval,
			QueryTimeout: cfg.Poll.QueryTimeout,
		},
		VoiceID:   cfg.DID.VoiceID,
		SourceURL: sourceURL,
	})
}

// NewSpeechArchive connects to MinIO when ELEVENLABS_ARCHIVE is set.
// It returns nil storage when archiving is disabled.
func NewSpeechArchive(ctx context.Context, cfg *config.Config) (repository.ObjectStorage, error) {
	if !cfg.ElevenLabs.Archive || !cfg.ElevenLabs.Enabled() {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:     cfg.MinIO.Endpoint,
		AccessKey:    cfg.MinIO.AccessKey,
		SecretKey:    cfg.MinIO.SecretKey,
		Bucket:       cfg.MinIO.Bucket,
		UseSSL:       cfg.MinIO.UseSSL,
		CreateBucket: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	return client, nil
}

// NewSpeechService wires the synthesizer with an optional archive.
func NewSpeechService(cfg *config.Config, archive repository.ObjectStorage) usecase.SpeechService {
	modelID := cfg.ElevenLabs.ModelID
	if modelID == "" {
		modelID = elevenlabs.DefaultModelID
	}
	return usecase.NewSpeechService(NewSpeechSynthesizer(cfg.ElevenLabs), archive, usecase.SpeechServiceConfig{
		VoiceID:       cfg.ElevenLabs.VoiceID,
		ModelID:       modelID,
		ArchivePrefix: "speech",
	})
}

// QueueConfig derives the render queue settings. Tasks expire with the
// cache TTL since the answer they render is gone by then.
func QueueConfig(cfg *config.Config) queue.ClientConfig {
	qcfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	if cfg.RabbitMQ.Queue != "" {
		qcfg.QueueName = cfg.RabbitMQ.Queue
		qcfg.DeadLetterQueue = cfg.RabbitMQ.Queue + ".dead"
	}
	qcfg.TaskTTL = cfg.Cache.TTL
	return qcfg
}
