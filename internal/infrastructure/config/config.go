package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Proxy     ProxyConfig
	Workers   WorkerConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowOrigins lists CORS origins; "*" allows any.
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

// BrowserConfig holds launch settings shared by every engine.
type BrowserConfig struct {
	ProfilesDir    string        `envconfig:"BROWSER_PROFILES_DIR" default:"browser_profiles"`
	ExecutablePath string        `envconfig:"CHROME_EXECUTABLE_PATH"`
	Headless       bool          `envconfig:"BROWSER_HEADLESS" default:"false"`
	Engines        []string      `envconfig:"BROWSER_ENGINES" default:"rod,chromedp,playwright"`
	RemoteURL      string        `envconfig:"BROWSER_REMOTE_URL"`
	LaunchTimeout  time.Duration `envconfig:"BROWSER_LAUNCH_TIMEOUT" default:"60s"`
}

// ProxyConfig holds health checker settings.
type ProxyConfig struct {
	ProbeURL      string        `envconfig:"PROXY_PROBE_URL" default:"https://www.google.com/generate_204"`
	Timeout       time.Duration `envconfig:"PROXY_CHECK_TIMEOUT" default:"10s"`
	Concurrency   int           `envconfig:"PROXY_CHECK_CONCURRENCY" default:"8"`
	RatePerSecond float64       `envconfig:"PROXY_CHECK_RPS" default:"5"`
}

// WorkerConfig holds execution pool settings.
type WorkerConfig struct {
	Size          int           `envconfig:"WORKER_POOL_SIZE" default:"4"`
	QueueSize     int           `envconfig:"WORKER_QUEUE_SIZE" default:"100"`
	ActionTimeout time.Duration `envconfig:"WORKER_ACTION_TIMEOUT" default:"60s"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisKey      string        `envconfig:"REDIS_QUEUE_KEY" default:"fleet:executions"`
}

// StorageConfig holds on-disk locations and secrets.
type StorageConfig struct {
	DataFile       string `envconfig:"DATA_FILE" default:"data/store.json"`
	ScreenshotsDir string `envconfig:"SCREENSHOTS_DIR" default:"screenshots"`
	EncryptionKey  string `envconfig:"FILE_ENCRYPTION_KEY"`
	PresetsFile    string `envconfig:"FINGERPRINT_PRESETS_FILE"`
}

// LogConfig holds logging configuration. Outputs are zap sinks added
// next to stdout, typically a log file path.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" default:"info"`
	Development bool     `envconfig:"LOG_DEV" default:"false"`
	Outputs     []string `envconfig:"LOG_OUTPUTS"`
}

// RateLimitConfig holds rate limiting configuration. RequestsPerSecond and
// Burst apply per client IP; GlobalRPS caps the whole server and is off at 0.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	GlobalRPS         int  `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load reads optional dotenv files, then environment variables. With no
// files given it tries ./.env. Variables already set in the environment
// are never overridden by dotenv values.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.Workers.Size < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1, got %d", c.Workers.Size)
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("PROXY_CHECK_TIMEOUT must be positive")
	}
	if len(c.Browser.Engines) == 0 && c.Browser.RemoteURL == "" {
		return fmt.Errorf("BROWSER_ENGINES must name at least one engine")
	}
	if _, err := os.Stat(c.Browser.ExecutablePath); c.Browser.ExecutablePath != "" && err != nil {
		return fmt.Errorf("CHROME_EXECUTABLE_PATH: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			AllowOrigins: []string{"*"},
		},
		Browser: BrowserConfig{
			ProfilesDir:   "browser_profiles",
			Engines:       []string{"rod", "chromedp", "playwright"},
			LaunchTimeout: 60 * time.Second,
		},
		Proxy: ProxyConfig{
			ProbeURL:      "https://www.google.com/generate_204",
			Timeout:       10 * time.Second,
			Concurrency:   8,
			RatePerSecond: 5,
		},
		Workers: WorkerConfig{
			Size:          4,
			QueueSize:     100,
			ActionTimeout: 60 * time.Second,
			RedisKey:      "fleet:executions",
		},
		Storage: StorageConfig{
			DataFile:       "data/store.json",
			ScreenshotsDir: "screenshots",
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
