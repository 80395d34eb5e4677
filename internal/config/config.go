package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. PETAKEU_SERVER_PORT
const EnvPrefix = "PETAKEU"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Uploads   UploadsConfig   `yaml:"uploads" envconfig:"UPLOADS"`
	Reports   ReportsConfig   `yaml:"reports" envconfig:"REPORTS"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths. Relative paths resolve against
// BaseDir, or the working directory when BaseDir is empty.
type PathsConfig struct {
	BaseDir string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// UploadsConfig tunes spreadsheet intake and validation
type UploadsConfig struct {
	MaxSize           int64         `yaml:"max_size" envconfig:"MAX_SIZE"`
	Workers           int           `yaml:"workers" envconfig:"WORKERS"`
	QueueSize         int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	ValidatorWorkers  int           `yaml:"validator_workers" envconfig:"VALIDATOR_WORKERS"`
	ValidationTimeout time.Duration `yaml:"validation_timeout" envconfig:"VALIDATION_TIMEOUT"`
	FileBaseURL       string        `yaml:"file_base_url" envconfig:"FILE_BASE_URL"`
}

// ReportsConfig tunes report jobs
type ReportsConfig struct {
	Async           bool          `yaml:"async" envconfig:"ASYNC"`
	Expiry          time.Duration `yaml:"expiry" envconfig:"EXPIRY"`
	DownloadBaseURL string        `yaml:"download_base_url" envconfig:"DOWNLOAD_BASE_URL"`
}

// CacheConfig sizes the summary and choropleth caches
type CacheConfig struct {
	Size int           `yaml:"size" envconfig:"SIZE"`
	TTL  time.Duration `yaml:"ttl" envconfig:"TTL"`
}

// DatabaseConfig selects the payment and upload storage. An empty DSN keeps
// everything in memory.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" envconfig:"DSN"`
	MigrateOnStart bool   `yaml:"migrate_on_start" envconfig:"MIGRATE_ON_START"`
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

// TelemetryConfig controls OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment   string `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableMetrics bool   `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing bool   `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
}

// Load reads configuration from the first config.yaml found, a .env file
// and PETAKEU_* environment variables, in increasing precedence
func Load() (*Config, error) {
	return LoadFrom(FilePath(), ".env")
}

// LoadFrom is Load with explicit file locations. Empty or missing files are
// skipped.
func LoadFrom(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; absent keys keep their value
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.Uploads.MaxSize <= 0 {
		return fmt.Errorf("uploads max size must be positive")
	}
	if c.Uploads.Workers <= 0 {
		return fmt.Errorf("uploads workers must be positive")
	}
	if c.Uploads.ValidationTimeout < 0 {
		return fmt.Errorf("uploads validation timeout cannot be negative")
	}
	if c.Reports.Expiry <= 0 {
		return fmt.Errorf("reports expiry must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	// logs are always JSON
	c.Logging.Format = "json"
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
	return nil
}

// FilePath returns the config file named by PETAKEU_CONFIG_FILE or the first
// of config.yaml and configs/config.yaml that exists. It returns "" when
// there is none.
func FilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		Uploads: UploadsConfig{
			MaxSize:           10 * 1024 * 1024,
			Workers:           4,
			QueueSize:         256,
			ValidatorWorkers:  4,
			ValidationTimeout: 2 * time.Minute,
			FileBaseURL:       DefaultStorageBaseURL,
		},
		Reports: ReportsConfig{
			Expiry:          24 * time.Hour,
			DownloadBaseURL: DefaultStorageBaseURL,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   AppName,
			Environment:   "development",
			EnableMetrics: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}
