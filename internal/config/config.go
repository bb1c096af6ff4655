package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Telemetry TelemetryConfig
	Engine    EngineConfig
}

type APIConfig struct {
	Addr          string
	UserIDHeader  string
	PresignExpiry time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	MaxRetry      int
	TaskTimeout   time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	OutputPrefix   string
	MetricsAddr    string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	Enabled   bool
	Capacity  int
	Window    time.Duration
	KeyPrefix string
}

type WebhookConfig struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type TelemetryConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	// SampleRatio is the fraction of root traces kept.
	SampleRatio float64
}

// EngineConfig tunes the transform stages. Zero values fall back to the
// package defaults.
type EngineConfig struct {
	Strategy      string
	Strength      float64
	SampleStep    int
	BaseThreshold float64
	MaxThreshold  float64
	BlurMax       float64

	InpaintIterations int
	InpaintRadius     int

	CompressStep         int
	CompressFloor        int
	CompressMaxAttempts  int
	CompressMaxDimension int

	MaxPixels int
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:          env("PIXELFORGE_API_ADDR", ":8080"),
			UserIDHeader:  env("PIXELFORGE_USER_ID_HEADER", "X-User-ID"),
			PresignExpiry: envDuration("PIXELFORGE_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
			MaxRetry:      envInt("ASYNC_MAX_RETRY", 5),
			TaskTimeout:   envDuration("ASYNC_TASK_TIMEOUT", 3*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs:  envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			LocalOutputDir: env("WORKER_LOCAL_OUTPUT_DIR", "./.pixelforge-output"),
			OutputPrefix:   env("WORKER_OUTPUT_PREFIX", "outputs"),
			MetricsAddr:    env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "pixelforge-jobs"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:   envBool("RATE_LIMIT_ENABLED", true),
			Capacity:  envInt("RATE_LIMIT_CAPACITY", 60),
			Window:    envDuration("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix: env("RATE_LIMIT_KEY_PREFIX", "pixelforge:ratelimit"),
		},
		Webhook: WebhookConfig{
			SigningSecret:  env("WEBHOOK_SIGNING_SECRET", ""),
			Timeout:        envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:    envInt("WEBHOOK_MAX_ATTEMPTS", 4),
			InitialBackoff: envDuration("WEBHOOK_INITIAL_BACKOFF", time.Second),
			MaxBackoff:     envDuration("WEBHOOK_MAX_BACKOFF", 15*time.Second),
		},
		Telemetry: TelemetryConfig{
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		Engine: EngineConfig{
			Strategy:             env("ENGINE_SEGMENT_STRATEGY", "heuristic"),
			Strength:             envFloat("ENGINE_SEGMENT_STRENGTH", 0.6),
			SampleStep:           envInt("ENGINE_SEGMENT_SAMPLE_STEP", 8),
			BaseThreshold:        envFloat("ENGINE_SEGMENT_BASE_THRESHOLD", 32),
			MaxThreshold:         envFloat("ENGINE_SEGMENT_MAX_THRESHOLD", 180),
			BlurMax:              envFloat("ENGINE_SEGMENT_BLUR_MAX", 18),
			InpaintIterations:    envInt("ENGINE_INPAINT_ITERATIONS", 5),
			InpaintRadius:        envInt("ENGINE_INPAINT_RADIUS", 3),
			CompressStep:         envInt("ENGINE_COMPRESS_STEP", 5),
			CompressFloor:        envInt("ENGINE_COMPRESS_FLOOR", 45),
			CompressMaxAttempts:  envInt("ENGINE_COMPRESS_MAX_ATTEMPTS", 12),
			CompressMaxDimension: envInt("ENGINE_COMPRESS_MAX_DIMENSION", 2000),
			MaxPixels:            envInt("ENGINE_MAX_PIXELS", 100_000_000),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
