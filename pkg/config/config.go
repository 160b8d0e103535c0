// Package config loads the worker's configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultRedisURL    = "redis://localhost:6379"
	DefaultMinioPort   = 9000
	DefaultMaxFileSize = 150 << 20 // 150 MB
	DefaultConcurrency = 2
)

// Config is the process configuration.
type Config struct {
	RedisURL string

	MinioEndpoint  string
	MinioPort      int
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	UploadBucket  string
	ResultsBucket string

	WorkerConcurrency int
	MaxFileSize       int64
	AdminPassword     string
	JobRetentionHours int
	AllowedOrigins    []string
	RateLimitEnabled  bool

	WorkDir string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisURL:          getenv("REDIS_URL", DefaultRedisURL),
		MinioEndpoint:     getenv("MINIO_ENDPOINT", "localhost"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		UploadBucket:      getenv("UPLOAD_BUCKET", "uploads"),
		ResultsBucket:     getenv("RESULTS_BUCKET", "results"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		WorkDir:           getenv("WORK_DIR", os.TempDir()),
		MinioUseSSL:       boolenv("MINIO_USE_SSL"),
		RateLimitEnabled:  boolenv("RATE_LIMIT_ENABLED"),
		MinioPort:         DefaultMinioPort,
		WorkerConcurrency: DefaultConcurrency,
		MaxFileSize:       DefaultMaxFileSize,
	}

	if v := os.Getenv("MINIO_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 {
			return nil, fmt.Errorf("config: bad MINIO_PORT %q", v)
		}
		cfg.MinioPort = p
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: bad WORKER_CONCURRENCY %q", v)
		}
		cfg.WorkerConcurrency = n
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			return nil, err
		}
		cfg.MaxFileSize = size
	}
	if v := os.Getenv("JOB_RETENTION_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: bad JOB_RETENTION_HOURS %q", v)
		}
		cfg.JobRetentionHours = n
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg, nil
}

// MinioAddr returns the endpoint as host:port.
func (c *Config) MinioAddr() string {
	return fmt.Sprintf("%s:%d", c.MinioEndpoint, c.MinioPort)
}

// ParseSize parses "<number>[B|KB|MB|GB]" into bytes. A bare number is
// bytes.
func ParseSize(s string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "GB"):
		mult = 1 << 30
		v = strings.TrimSuffix(v, "GB")
	case strings.HasSuffix(v, "MB"):
		mult = 1 << 20
		v = strings.TrimSuffix(v, "MB")
	case strings.HasSuffix(v, "KB"):
		mult = 1 << 10
		v = strings.TrimSuffix(v, "KB")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: bad size %q", s)
	}
	return n * mult, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolenv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
