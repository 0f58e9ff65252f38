package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig selects and configures the record sinks.
type OutputConfig struct {
	// Mode is postgres, csv, or both.
	Mode      string `yaml:"mode" mapstructure:"mode"`
	CSVDir    string `yaml:"csv_dir" mapstructure:"csv_dir"`
	CSVHeader bool   `yaml:"csv_header" mapstructure:"csv_header"`
}

// ArchiveConfig configures the bulk archive source.
type ArchiveConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	MetadataURL  string `yaml:"metadata_url" mapstructure:"metadata_url"`
	RegionSuffix string `yaml:"region_suffix" mapstructure:"region_suffix"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutMins  int    `yaml:"timeout_mins" mapstructure:"timeout_mins"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`

	// RPS is the fixed request rate toward the archive host.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// GeocodeConfig configures the postcode resolver.
type GeocodeConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// RPS is the fixed request rate toward the geocoding host.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// ScrapeConfig configures ingestion behavior.
type ScrapeConfig struct {
	// BackfillMonths bounds a backfill to the chronologically last N
	// months; 0 means the whole archive.
	BackfillMonths int `yaml:"backfill_months" mapstructure:"backfill_months"`

	// RunOnStartup triggers a backfill when the server starts.
	RunOnStartup bool `yaml:"run_on_startup" mapstructure:"run_on_startup"`

	// MaxConcurrentJobs bounds triggered ingestion jobs in flight.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
}

// QueryConfig holds defaults for the geo query surface.
type QueryConfig struct {
	DefaultRadiusMeters   float64 `yaml:"default_radius_meters" mapstructure:"default_radius_meters"`
	DefaultLookbackMonths int     `yaml:"default_lookback_months" mapstructure:"default_lookback_months"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("output.mode", "postgres")
	v.SetDefault("output.csv_dir", "out")
	v.SetDefault("output.csv_header", true)
	v.SetDefault("archive.url", "https://data.police.uk/data/archive/latest.zip")
	v.SetDefault("archive.metadata_url", "https://data.police.uk/api/crimes-street-dates")
	v.SetDefault("archive.region_suffix", "-northern-ireland-street.csv")
	v.SetDefault("archive.user_agent", "property-intel-crime-scraper/1.0")
	v.SetDefault("archive.timeout_mins", 30)
	v.SetDefault("archive.max_retries", 3)
	v.SetDefault("archive.rps", 1)
	v.SetDefault("geocode.base_url", "https://api.postcodes.io")
	v.SetDefault("geocode.rps", 5)
	v.SetDefault("scrape.backfill_months", 0)
	v.SetDefault("scrape.run_on_startup", false)
	v.SetDefault("scrape.max_concurrent_jobs", 2)
	v.SetDefault("query.default_radius_meters", 1000)
	v.SetDefault("query.default_lookback_months", 6)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields a command mode depends on are set.
// Modes: "scrape", "query", "serve", "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string

	needsDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "migrate":
		needsDB()
	case "scrape":
		switch c.Output.Mode {
		case "postgres", "both":
			needsDB()
		case "csv":
			if c.Output.CSVDir == "" {
				problems = append(problems, "output.csv_dir is required in csv mode")
			}
		default:
			problems = append(problems, "output.mode must be postgres, csv, or both")
		}
		if c.Archive.URL == "" {
			problems = append(problems, "archive.url is required")
		}
		if c.Archive.RegionSuffix == "" {
			problems = append(problems, "archive.region_suffix is required")
		}
	case "query":
		needsDB()
		if c.Query.DefaultRadiusMeters <= 0 {
			problems = append(problems, "query.default_radius_meters must be > 0")
		}
		if c.Query.DefaultLookbackMonths <= 0 {
			problems = append(problems, "query.default_lookback_months must be > 0")
		}
	case "serve":
		needsDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Scrape.MaxConcurrentJobs < 1 || c.Scrape.MaxConcurrentJobs > 16 {
			problems = append(problems, "scrape.max_concurrent_jobs must be between 1 and 16")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
