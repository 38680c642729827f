package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Cache backends selectable with CACHE_BACKEND.
const (
	CacheBackendFile     = "file"
	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
	CacheBackendSQLite   = "sqlite"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Cache      CacheConfig
	Chat       ChatConfig
	OpenAI     OpenAIConfig
	DID        DIDConfig
	Poll       PollConfig
	ElevenLabs ElevenLabsConfig
	Avatar     AvatarConfig
	RateLimit  RateLimitConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	SQLite     SQLiteConfig
	MinIO      MinIOConfig
	RabbitMQ   RabbitMQConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"5000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"150s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// SlogLevel converts Level to a slog.Level. Unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type CacheConfig struct {
	Backend  string        `envconfig:"CACHE_BACKEND" default:"file"`
	File     string        `envconfig:"CACHE_FILE" default:"chat_cache.json"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	RedisKey string        `envconfig:"CACHE_REDIS_KEY" default:"avatarrelay:cache"`
	Name     string        `envconfig:"CACHE_SNAPSHOT_NAME" default:"default"`
}

type ChatConfig struct {
	TenantID     string `envconfig:"CHAT_TENANT_ID" default:"default_shop"`
	SystemPrompt string `envconfig:"CHAT_SYSTEM_PROMPT"`
}

type OpenAIConfig struct {
	APIKey      string        `envconfig:"OPENAI_API_KEY"`
	Model       string        `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	MaxTokens   int64         `envconfig:"OPENAI_MAX_TOKENS" default:"100"`
	Temperature float64       `envconfig:"OPENAI_TEMPERATURE" default:"0.7"`
	BaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	Timeout     time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	MaxRetries  int           `envconfig:"OPENAI_MAX_RETRIES" default:"2"`
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

type DIDConfig struct {
	APIKey    string        `envconfig:"D_ID_API_KEY"`
	BaseURL   string        `envconfig:"D_ID_BASE_URL" default:"https://api.d-id.com"`
	VoiceID   string        `envconfig:"D_ID_VOICE_ID" default:"de-DE-KatjaNeural"`
	SourceURL string        `envconfig:"D_ID_SOURCE_URL"`
	Timeout   time.Duration `envconfig:"D_ID_TIMEOUT" default:"30s"`
}

func (c DIDConfig) Enabled() bool {
	return c.APIKey != ""
}

type PollConfig struct {
	MaxWait      time.Duration `envconfig:"POLL_MAX_WAIT" default:"120s"`
	Interval     time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	QueryTimeout time.Duration `envconfig:"POLL_QUERY_TIMEOUT" default:"10s"`
}

type ElevenLabsConfig struct {
	APIKey          string        `envconfig:"ELEVENLABS_API_KEY"`
	BaseURL         string        `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	VoiceID         string        `envconfig:"ELEVENLABS_VOICE_ID"`
	ModelID         string        `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_multilingual_v2"`
	Stability       float64       `envconfig:"ELEVENLABS_STABILITY" default:"0.5"`
	SimilarityBoost float64       `envconfig:"ELEVENLABS_SIMILARITY_BOOST" default:"0.75"`
	Timeout         time.Duration `envconfig:"ELEVENLABS_TIMEOUT" default:"60s"`
	// Archive stores synthesized audio in MinIO and serves repeats from there.
	Archive bool `envconfig:"ELEVENLABS_ARCHIVE" default:"false"`
}

func (c ElevenLabsConfig) Enabled() bool {
	return c.APIKey != "" && c.VoiceID != ""
}

type AvatarConfig struct {
	// Mode is sync, async or off.
	Mode string `envconfig:"AVATAR_MODE" default:"sync"`
}

type RateLimitConfig struct {
	Enabled           bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int           `envconfig:"RATE_LIMIT_RPM" default:"30"`
	Burst             int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	IdleTimeout       time.Duration `envconfig:"RATE_LIMIT_IDLE_TIMEOUT" default:"10m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"avatarrelay"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"avatarrelay"`
	DBName   string `envconfig:"POSTGRES_DB" default:"avatarrelay"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `envconfig:"SQLITE_PATH" default:"avatarrelay.db"`
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"avatarrelay"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"avatarrelay"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"avatarrelay"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"avatar_render_tasks"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type WorkerConfig struct {
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	// MetricsPort serves /metrics from the worker. Zero disables it.
	MetricsPort int `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendMemory, CacheBackendRedis, CacheBackendPostgres, CacheBackendSQLite:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q", c.Cache.Backend)
	}

	c.Avatar.Mode = strings.ToLower(strings.TrimSpace(c.Avatar.Mode))
	switch c.Avatar.Mode {
	case "sync", "async", "off":
	default:
		return fmt.Errorf("invalid AVATAR_MODE %q", c.Avatar.Mode)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Poll.Interval <= 0 || c.Poll.MaxWait <= 0 {
		return errors.New("POLL_INTERVAL and POLL_MAX_WAIT must be positive")
	}
	return nil
}

// responseMargin covers cache I/O, client retry backoff and writing the
// response on top of the provider budgets.
const responseMargin = 15 * time.Second

// ChatBudget is the longest a fresh /chat answer can take: every language
// model attempt and, in sync mode, creating and polling the avatar video.
func (c *Config) ChatBudget() time.Duration {
	budget := c.OpenAI.Timeout * time.Duration(c.OpenAI.MaxRetries+1)
	if c.Avatar.Mode == "sync" || c.Avatar.Mode == "" {
		budget += c.DID.Timeout + c.Poll.MaxWait + c.Poll.Interval + c.Poll.QueryTimeout
	}
	return budget
}

// WriteTimeout returns API_WRITE_TIMEOUT, raised when needed so the slowest
// /chat answer still reaches the client. Zero keeps writes unbounded.
func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeout <= 0 {
		return 0
	}
	return max(c.Server.WriteTimeout, c.ChatBudget()+responseMargin)
}
