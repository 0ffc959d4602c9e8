package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LINKKEEPER_HTTP_ADDR.
const EnvPrefix = "LINKKEEPER"

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig configures the record store.
type StorageConfig struct {
	Path        string        `mapstructure:"path"`
	InMemory    bool          `mapstructure:"in_memory"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// ReconcileConfig configures the background reconcile loop.
type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// IntakeConfig configures intake garbage collection. A zero retention
// keeps processed intake records forever.
type IntakeConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// TelegramConfig configures the Telegram intake. An empty token disables it.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// ScraperConfig enables on-demand page enrichment.
type ScraperConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"log_level":            "info",
	"http.addr":            ":8080",
	"storage.path":         "./linkkeeper_data",
	"storage.in_memory":    false,
	"storage.open_timeout": 5 * time.Second,
	"reconcile.interval":   30 * time.Second,
	"intake.retention":     30 * 24 * time.Hour,
	"telegram.token":       "",
	"scraper.enabled":      false,
	"scraper.timeout":      30 * time.Second,
}

// Load reads configuration from file and environment. When file is empty
// config.yaml is looked up in ./configs and the working directory, and a
// missing file is not an error.
func Load(file string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required, validation.By(validLevel)),
	); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Reconcile,
		validation.Field(&c.Reconcile.Interval, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Intake,
		validation.Field(&c.Intake.Retention, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Scraper,
		validation.Field(&c.Scraper.Timeout, validation.When(c.Scraper.Enabled, validation.Required)),
	)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
	)
}

// Validate validates the storage configuration. A path is only needed
// when the store is persistent.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(!c.InMemory, validation.Required)),
		validation.Field(&c.OpenTimeout, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// Level returns the parsed logrus level.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func validLevel(value any) error {
	s, _ := value.(string)
	if _, err := logrus.ParseLevel(s); err != nil {
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}
