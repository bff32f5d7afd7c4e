package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	DVF     DVFConfig     `yaml:"dvf" envconfig:"DVF"`
	Geo     GeoConfig     `yaml:"geo" envconfig:"GEO"`
	Scoring ScoringConfig `yaml:"scoring" envconfig:"SCORING"`
	ML      MLConfig      `yaml:"ml" envconfig:"ML"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Jobs    JobsConfig    `yaml:"jobs" envconfig:"JOBS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// DVFConfig controls the government transaction data refresher.
type DVFConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	Year           string        `yaml:"year" envconfig:"YEAR"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	Concurrency    int64         `yaml:"concurrency" envconfig:"CONCURRENCY"`
	MinSamples     int           `yaml:"min_samples" envconfig:"MIN_SAMPLES"`
	MinPerLotPrice float64       `yaml:"min_per_lot_price" envconfig:"MIN_PER_LOT_PRICE"`
	MaxPerLotPrice float64       `yaml:"max_per_lot_price" envconfig:"MAX_PER_LOT_PRICE"`
	TypicalSurface float64       `yaml:"typical_surface" envconfig:"TYPICAL_SURFACE"`
}

// GeoConfig controls the Overpass demand fetcher.
type GeoConfig struct {
	Endpoint       string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
}

// ScoringConfig holds the edge score component weights.
// The five weights must sum to 1.0; Load only warns when they do not,
// the composer clamps its output either way.
type ScoringConfig struct {
	WeightPriceDeviation float64 `yaml:"weight_price_deviation" envconfig:"WEIGHT_PRICE_DEVIATION"`
	WeightYield          float64 `yaml:"weight_yield" envconfig:"WEIGHT_YIELD"`
	WeightStorage        float64 `yaml:"weight_storage" envconfig:"WEIGHT_STORAGE"`
	WeightDemand         float64 `yaml:"weight_demand" envconfig:"WEIGHT_DEMAND"`
	WeightLiquidity      float64 `yaml:"weight_liquidity" envconfig:"WEIGHT_LIQUIDITY"`
}

// MLConfig points at the external price prediction service.
type MLConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"ENABLED"`
	ServiceURL     string        `yaml:"service_url" envconfig:"SERVICE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// StorageConfig contains persistence configuration
type StorageConfig struct {
	DSN string `yaml:"dsn" envconfig:"DSN"`
}

// JobsConfig controls the background refresh/enrichment cadence.
type JobsConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	DVFRefreshEvery time.Duration `yaml:"dvf_refresh_every" envconfig:"DVF_REFRESH_EVERY"`
	EnrichEvery     time.Duration `yaml:"enrich_every" envconfig:"ENRICH_EVERY"`
	EnrichBatchSize int           `yaml:"enrich_batch_size" envconfig:"ENRICH_BATCH_SIZE"`
}

// Default returns the configuration with all documented defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  50,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		DVF: DVFConfig{
			BaseURL:        "https://files.data.gouv.fr/geo-dvf/latest/csv",
			Year:           "2024",
			RequestTimeout: 45 * time.Second,
			Concurrency:    4,
			MinSamples:     5,
			MinPerLotPrice: 1500,
			MaxPerLotPrice: 150000,
			TypicalSurface: 12.0,
		},
		Geo: GeoConfig{
			Endpoint:       "https://overpass-api.de/api/interpreter",
			RequestTimeout: 20 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     10 * time.Second,
		},
		Scoring: ScoringConfig{
			WeightPriceDeviation: 0.30,
			WeightYield:          0.25,
			WeightStorage:        0.20,
			WeightDemand:         0.15,
			WeightLiquidity:      0.10,
		},
		ML: MLConfig{
			Enabled:        false,
			ServiceURL:     "http://localhost:8500",
			RequestTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DSN: "boxinvest.db",
		},
		Jobs: JobsConfig{
			Enabled:         true,
			DVFRefreshEvery: 7 * 24 * time.Hour,
			EnrichEvery:     time.Hour,
			EnrichBatchSize: 50,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("BOX_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process("BOX", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays configuration from a YAML file
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks configuration invariants that would make the service
// unable to start. Soft contracts (weight sum) are reported by WeightSum
// and logged by the caller instead.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.DVF.Concurrency < 1 {
		return fmt.Errorf("dvf concurrency must be at least 1, got %d", c.DVF.Concurrency)
	}
	if c.DVF.MinSamples < 1 {
		return fmt.Errorf("dvf min samples must be at least 1, got %d", c.DVF.MinSamples)
	}
	if c.DVF.MinPerLotPrice >= c.DVF.MaxPerLotPrice {
		return fmt.Errorf("dvf per-lot price bounds inverted: min=%.0f max=%.0f",
			c.DVF.MinPerLotPrice, c.DVF.MaxPerLotPrice)
	}
	if c.DVF.TypicalSurface <= 0 {
		return fmt.Errorf("dvf typical surface must be positive, got %.2f", c.DVF.TypicalSurface)
	}
	if c.Geo.MaxAttempts < 1 {
		return fmt.Errorf("geo max attempts must be at least 1, got %d", c.Geo.MaxAttempts)
	}
	return nil
}

// WeightSum returns the sum of the five edge score weights.
func (c *Config) WeightSum() float64 {
	return c.Scoring.WeightPriceDeviation +
		c.Scoring.WeightYield +
		c.Scoring.WeightStorage +
		c.Scoring.WeightDemand +
		c.Scoring.WeightLiquidity
}
