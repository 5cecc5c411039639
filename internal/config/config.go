package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SS"

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	SourceType string `mapstructure:"source_type"`
	InputPath  string `mapstructure:"input_path"`
	FeedURL    string `mapstructure:"feed_url"`
	ReportPath string `mapstructure:"report_path"`
	DryRun     bool   `mapstructure:"dry_run"`

	Handle   string `mapstructure:"handle"`
	Password string `mapstructure:"password"`

	CatalogBaseURL string        `mapstructure:"catalog_base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	CatalogRPS     float64       `mapstructure:"catalog_rps"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`

	CatalogFailThreshold int           `mapstructure:"catalog_fail_threshold"`
	CatalogCooldown      time.Duration `mapstructure:"catalog_cooldown"`

	IdentityURL string `mapstructure:"identity_url"`
	PLCURL      string `mapstructure:"plc_url"`
	DefaultPDS  string `mapstructure:"default_pds"`
	Collection  string `mapstructure:"collection"`

	LedgerPath string `mapstructure:"ledger_path"`
}

var defaults = map[string]any{
	"log_level":              "info",
	"log_format":             "text",
	"source_type":            "csv",
	"input_path":             "",
	"feed_url":               "",
	"report_path":            "goodreads-import-report.csv",
	"dry_run":                false,
	"handle":                 "",
	"password":               "",
	"catalog_base_url":       "https://openlibrary.org",
	"user_agent":             "shelfsync/1.0",
	"catalog_rps":            2.0,
	"http_timeout":           30 * time.Second,
	"max_retries":            2,
	"catalog_fail_threshold": 5,
	"catalog_cooldown":       30 * time.Second,
	"identity_url":           "https://public.api.bsky.app",
	"plc_url":                "https://plc.directory",
	"default_pds":            "https://bsky.social",
	"collection":             "my.skylights.rel",
	"ledger_path":            "shelfsync.db",
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"source":    "source_type",
	"input":     "input_path",
	"feed":      "feed_url",
	"report":    "report_path",
	"dry-run":   "dry_run",
	"handle":    "handle",
	"password":  "password",
	"ledger":    "ledger_path",
	"log-level": "log_level",
}

// Load builds the configuration from defaults, an optional config file,
// SS_* environment variables (a .env file is honoured) and any flags that
// were set, in increasing order of precedence.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the import command depends on. Credentials
// and the input path are checked later because they may still be prompted for.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.SourceType, validation.Required, validation.In("csv", "rss")),
		validation.Field(&c.ReportPath, validation.Required),
		validation.Field(&c.CatalogBaseURL, validation.Required, is.URL),
		validation.Field(&c.IdentityURL, validation.Required, is.URL),
		validation.Field(&c.PLCURL, validation.Required, is.URL),
		validation.Field(&c.DefaultPDS, validation.Required, is.URL),
		validation.Field(&c.Collection, validation.Required),
		validation.Field(&c.CatalogRPS, validation.Required, validation.Min(0.1)),
		validation.Field(&c.HTTPTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.CatalogFailThreshold, validation.Min(0)),
		validation.Field(&c.CatalogCooldown, validation.Min(time.Duration(0))),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
	)
	if err != nil {
		return err
	}

	if c.SourceType == "rss" && c.FeedURL == "" {
		return errors.New("SS_FEED_URL is required when SS_SOURCE_TYPE is rss")
	}
	return nil
}
