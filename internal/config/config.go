package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Feed    FeedConfig    `yaml:"feed" envconfig:"FEED"`
	Sync    SyncConfig    `yaml:"sync" envconfig:"SYNC"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"25"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// FeedConfig contains defaults for the stock feed source. The URL and
// column bindings are runtime settings (mutable through the API); these
// values seed the settings store on first start.
type FeedConfig struct {
	URL            string        `yaml:"url" envconfig:"URL"`
	SKUColumn      string        `yaml:"sku_column" envconfig:"SKU_COLUMN" default:"sku"`
	QuantityColumn string        `yaml:"quantity_column" envconfig:"QUANTITY_COLUMN" default:"quantity"`
	DisableSSL     bool          `yaml:"disable_ssl" envconfig:"DISABLE_SSL" default:"false"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT" default:"120s"`
	PreviewTimeout time.Duration `yaml:"preview_timeout" envconfig:"PREVIEW_TIMEOUT" default:"30s"`
}

// SyncConfig contains reconciliation engine defaults
type SyncConfig struct {
	BatchSize        int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"100"`
	MissingSKUAction string        `yaml:"missing_sku_action" envconfig:"MISSING_SKU_ACTION" default:"ignore"`
	Interval         string        `yaml:"interval" envconfig:"INTERVAL" default:"hourly"`
	RunLeaseTTL      time.Duration `yaml:"run_lease_ttl" envconfig:"RUN_LEASE_TTL" default:"30m"`
	TickInterval     time.Duration `yaml:"tick_interval" envconfig:"TICK_INTERVAL" default:"30s"`
}

// LicenseConfig contains license API client configuration
type LicenseConfig struct {
	APIURL      string        `yaml:"api_url" envconfig:"API_URL" default:"https://3ag.app/api/v3"`
	ProductSlug string        `yaml:"product_slug" envconfig:"PRODUCT_SLUG" default:"stock-feed-sync"`
	Domain      string        `yaml:"domain" envconfig:"DOMAIN"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	GracePeriod time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD" default:"168h"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	DatabaseFile string `yaml:"database_file" envconfig:"DATABASE_FILE" default:"data/stocksync.db"`
	LicenseFile  string `yaml:"license_file" envconfig:"LICENSE_FILE" default:"data/license.json"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		*cfg = *fileCfg
	}

	if err := envconfig.Process("STOCKSYNC", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file, layered over defaults
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the path to the config file, checking common locations
func findConfigFile() string {
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

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch size must be positive, got %d", c.Sync.BatchSize)
	}

	switch c.Sync.MissingSKUAction {
	case MissingSKUIgnore, MissingSKUZero, MissingSKUPrivate:
	default:
		return fmt.Errorf("invalid missing SKU action: %q", c.Sync.MissingSKUAction)
	}

	if c.License.APIURL == "" {
		return fmt.Errorf("license API URL must not be empty")
	}

	if c.License.GracePeriod <= 0 {
		return fmt.Errorf("license grace period must be positive")
	}

	// Always JSON format for structured log ingestion
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// ensureDirectories creates the data and logs directories if missing
func (c *Config) ensureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogsDir,
		filepath.Dir(c.Paths.DatabaseFile),
		filepath.Dir(c.Paths.LicenseFile),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  25,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Feed: FeedConfig{
			SKUColumn:      "sku",
			QuantityColumn: "quantity",
			FetchTimeout:   120 * time.Second,
			PreviewTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			BatchSize:        100,
			MissingSKUAction: MissingSKUIgnore,
			Interval:         "hourly",
			RunLeaseTTL:      30 * time.Minute,
			TickInterval:     30 * time.Second,
		},
		License: LicenseConfig{
			APIURL:      "https://3ag.app/api/v3",
			ProductSlug: "stock-feed-sync",
			Timeout:     30 * time.Second,
			GracePeriod: 7 * 24 * time.Hour,
		},
		Paths: PathsConfig{
			DataDir:      "data",
			DatabaseFile: "data/stocksync.db",
			LicenseFile:  "data/license.json",
			LogsDir:      "logs",
		},
	}
}
