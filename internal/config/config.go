// Package config loads application configuration from file and
// environment and initializes the global logger.
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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Salesforce  SalesforceConfig  `yaml:"salesforce" mapstructure:"salesforce"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" mapstructure:"scheduler"`
	Forms       FormsConfig       `yaml:"forms" mapstructure:"forms"`
	Sync        SyncConfig        `yaml:"sync" mapstructure:"sync"`
	Touchpoints TouchpointConfig  `yaml:"touchpoints" mapstructure:"touchpoints"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds CRM client-credentials auth settings.
type SalesforceConfig struct {
	Domain         string  `yaml:"domain" mapstructure:"domain"`
	ConsumerKey    string  `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string  `yaml:"consumer_secret" mapstructure:"consumer_secret"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SchedulerConfig holds the booking platform API settings.
type SchedulerConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Token     string  `yaml:"token" mapstructure:"token"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// FormsConfig holds the Notion submissions database settings.
type FormsConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// SyncConfig configures sync run behavior.
type SyncConfig struct {
	PageSize      int    `yaml:"page_size" mapstructure:"page_size"`
	RetryAttempts int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// TouchpointConfig configures touchpoint classification.
type TouchpointConfig struct {
	// RulesPath points at a YAML file of classification rules that
	// replaces the built-in rule set. Empty keeps the defaults.
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// AttributionConfig selects the credit weighting strategy.
type AttributionConfig struct {
	Strategy     string  `yaml:"strategy" mapstructure:"strategy"`
	HalfLifeDays float64 `yaml:"half_life_days" mapstructure:"half_life_days"`
}

// AuditConfig configures the completeness trust gate and the agreement
// score below which a field is flagged as inconsistent.
type AuditConfig struct {
	MinCoverage          float64 `yaml:"min_coverage" mapstructure:"min_coverage"`
	ConsistencyThreshold float64 `yaml:"consistency_threshold" mapstructure:"consistency_threshold"`
}

// CacheConfig configures report cache invalidation.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
}

// ServerConfig configures the reporting API server.
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
	v.SetEnvPrefix("ATTRIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "attribution.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("scheduler.base_url", "https://api.scheduler.example.com/v2")
	v.SetDefault("scheduler.rate_limit", 3)
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_backoff", "2s")
	v.SetDefault("attribution.strategy", "even_split")
	v.SetDefault("attribution.half_life_days", 30)
	v.SetDefault("audit.min_coverage", 0.6)
	v.SetDefault("audit.consistency_threshold", 0.8)

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
