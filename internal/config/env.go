package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BlobBackendS3  = "s3"
	BlobBackendAFS = "afs"

	EmbedProviderGemini = "gemini"
	EmbedProviderOpenAI = "openai"
)

type Config struct {
	DatabaseURL string
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	BlobBackend  string
	UploadDir    string

	AIAPIKey      string
	EmbedProvider string
	EmbedModel    string
	EmbedHost     string
	GenModel      string

	Port           string
	JWTSecret      string
	AllowedOrigins []string

	WorkerCount      int
	QueueSize        int
	EnqueueTimeout   time.Duration
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	TaskTimeout      time.Duration
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	RetrievalTopK    int
	AutoConfirm      bool
	UseReadability   bool

	LogLevel string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	return &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docflow-docs"),
		BlobBackend:  strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendS3)),
		UploadDir:    getEnv("UPLOAD_DIR", "file:///tmp/docflow_uploads"),

		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", EmbedProviderGemini)),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedHost:     getEnv("EMBED_HOST", ""),
		GenModel:      getEnv("GEN_MODEL", "gemini-1.5-flash"),

		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),

		WorkerCount:      getEnvInt("WORKER_COUNT", 4),
		QueueSize:        getEnvInt("QUEUE_SIZE", 64),
		EnqueueTimeout:   getEnvDuration("ENQUEUE_TIMEOUT", 2*time.Second),
		MaxAttempts:      getEnvInt("MAX_ATTEMPTS", 4),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		TaskTimeout:      getEnvDuration("TASK_TIMEOUT", 5*time.Minute),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 2),
		RetrievalTopK:    getEnvInt("RETRIEVAL_TOP_K", 5),
		AutoConfirm:      getEnvBool("AUTO_CONFIRM", false),
		UseReadability:   getEnvBool("USE_READABILITY", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every setting the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	} else if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	for key, v := range map[string]int{
		"WORKER_COUNT":      c.WorkerCount,
		"QUEUE_SIZE":        c.QueueSize,
		"MAX_ATTEMPTS":      c.MaxAttempts,
		"EMBED_BATCH_SIZE":  c.EmbedBatchSize,
		"EMBED_CONCURRENCY": c.EmbedConcurrency,
		"RETRIEVAL_TOP_K":   c.RetrievalTopK,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}

	switch c.BlobBackend {
	case BlobBackendS3:
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" || c.BucketName == "" {
			errs = append(errs, errors.New("s3 blob backend needs AWS_ACCESS_KEY, AWS_SECRET_KEY and BUCKET_NAME"))
		}
	case BlobBackendAFS:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("afs blob backend needs UPLOAD_DIR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}

	switch c.EmbedProvider {
	case EmbedProviderGemini, EmbedProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}

	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
