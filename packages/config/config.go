// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Classifier: a local forest export wins over the remote model server.
	ModelPath    string        `yaml:"model_path"`
	MLApiURL     string        `yaml:"ml_api_url"`
	MLApiTimeout time.Duration `yaml:"ml_api_timeout"`

	// Scan history
	DatabaseURL          string        `yaml:"database_url"`
	HistoryBatchInterval time.Duration `yaml:"history_batch_interval"`
	HistoryQueueSize     int           `yaml:"history_queue_size"`
	HistoryRetention     time.Duration `yaml:"history_retention"`
	PruneInterval        time.Duration `yaml:"prune_interval"`

	// Verdict cache
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	CacheKeyPrefix string        `yaml:"cache_key_prefix"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`

	RateLimitQPS   float64 `yaml:"rate_limit_qps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// Page scans
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	FetchAllowPrivate bool          `yaml:"fetch_allow_private"`
	MaxWorkers        int           `yaml:"max_workers"`
	PageScanMaxLinks  int           `yaml:"page_scan_max_links"`
	IgnoreExtensions  []string      `yaml:"ignore_extensions"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		ListenAddr:           ":5000",
		MetricsAddr:          "0.0.0.0:9093",
		MLApiTimeout:         5 * time.Second,
		HistoryBatchInterval: 2 * time.Second,
		HistoryQueueSize:     1000,
		HistoryRetention:     720 * time.Hour,
		PruneInterval:        time.Hour,
		CacheKeyPrefix:       "trinayana:verdict:",
		CacheTTL:             time.Hour,
		RateLimitQPS:         10,
		RateLimitBurst:       20,
		FetchTimeout:         6 * time.Second,
		MaxWorkers:           8,
		PageScanMaxLinks:     100,
		IgnoreExtensions:     strings.Split(".pdf,.jpg,.jpeg,.png,.gif,.svg,.zip,.rar,.exe,.mp3,.mp4,.avi,.mov,.dmg,.iso,.css,.js,.xml,.json,.gz,.tar,.tgz", ","),
		LogLevel:             "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)

	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.MLApiURL = strings.TrimRight(getEnv("ML_API_URL", cfg.MLApiURL), "/")
	cfg.MLApiTimeout = getDuration("ML_API_TIMEOUT", cfg.MLApiTimeout)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HistoryBatchInterval = getDuration("HISTORY_BATCH_INTERVAL", cfg.HistoryBatchInterval)
	cfg.HistoryQueueSize = getInt("HISTORY_QUEUE_SIZE", cfg.HistoryQueueSize)
	cfg.HistoryRetention = getDuration("HISTORY_RETENTION", cfg.HistoryRetention)
	cfg.PruneInterval = getDuration("PRUNE_INTERVAL", cfg.PruneInterval)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword) // No password by default
	cfg.RedisDB = getInt("REDIS_DB", cfg.RedisDB)
	cfg.CacheKeyPrefix = getEnv("CACHE_KEY_PREFIX", cfg.CacheKeyPrefix)
	cfg.CacheTTL = getDuration("CACHE_TTL", cfg.CacheTTL)

	if v := getEnv("RATE_LIMIT_QPS", ""); v != "" {
		qps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("Invalid RATE_LIMIT_QPS", "value", v, "error", err)
		} else {
			cfg.RateLimitQPS = qps
		}
	}
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.FetchTimeout = getDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchAllowPrivate = getBool("FETCH_ALLOW_PRIVATE", cfg.FetchAllowPrivate)
	cfg.MaxWorkers = getInt("MAX_WORKERS", cfg.MaxWorkers)
	cfg.PageScanMaxLinks = getInt("PAGE_SCAN_MAX_LINKS", cfg.PageScanMaxLinks)
	if v := getEnv("IGNORE_EXTENSIONS", ""); v != "" {
		cfg.IgnoreExtensions = strings.Split(v, ",")
	}

	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, cfg.validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	var problems []string
	if c.MaxWorkers < 1 {
		problems = append(problems, "MAX_WORKERS must be at least 1")
	}
	if c.HistoryQueueSize < 1 {
		problems = append(problems, "HISTORY_QUEUE_SIZE must be at least 1")
	}
	if c.HistoryBatchInterval <= 0 {
		problems = append(problems, "HISTORY_BATCH_INTERVAL must be positive")
	}
	if c.RateLimitQPS < 0 {
		problems = append(problems, "RATE_LIMIT_QPS must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer setting", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

func getBool(key string, defaultVal bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean setting", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration setting", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}
